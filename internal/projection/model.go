package projection

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// PlatformConfig is the session baseline of an acquisition channel.
type PlatformConfig struct {
	ID             string          `json:"id"`
	DisplayName    string          `json:"display_name"`
	BaselineRoas   decimal.Decimal `json:"baseline_roas"`
	BaselineBudget decimal.Decimal `json:"baseline_budget"`
	ColorHint      string          `json:"color_hint,omitempty"`
}

// BaselineRevenue is what the channel yields at its own baseline budget.
func (c PlatformConfig) BaselineRevenue() decimal.Decimal {
	return c.BaselineBudget.Mul(c.BaselineRoas)
}

// Allocation maps channel id to a user-chosen budget.
type Allocation map[string]decimal.Decimal

// Clone returns an independent copy of a.
func (a Allocation) Clone() Allocation {
	out := make(Allocation, len(a))
	for id, v := range a {
		out[id] = v
	}
	return out
}

// With returns a copy of a with id set to budget.
func (a Allocation) With(id string, budget decimal.Decimal) Allocation {
	out := a.Clone()
	out[id] = budget
	return out
}

// BaselineAllocation allocates every channel its baseline budget.
func BaselineAllocation(configs map[string]PlatformConfig) Allocation {
	out := make(Allocation, len(configs))
	for id, cfg := range configs {
		out[id] = cfg.BaselineBudget
	}
	return out
}

// ChannelProjection is the per-channel breakdown of a projection.
type ChannelProjection struct {
	ID              string          `json:"id"`
	Budget          decimal.Decimal `json:"budget"`
	BaselineBudget  decimal.Decimal `json:"baseline_budget"`
	EffectiveRoas   decimal.Decimal `json:"effective_roas"`
	Revenue         decimal.Decimal `json:"revenue"`
	BaselineRevenue decimal.Decimal `json:"baseline_revenue"`
	Saturated       bool            `json:"saturated"`
}

// ProjectionResult is the outcome of projecting an allocation.
type ProjectionResult struct {
	TotalBudget     decimal.Decimal     `json:"total_budget"`
	TotalRevenue    decimal.Decimal     `json:"total_revenue"`
	RevenueLift     decimal.Decimal     `json:"revenue_lift"`
	ImpliedRoas     decimal.Decimal     `json:"implied_roas"`
	BaselineBudget  decimal.Decimal     `json:"baseline_budget"`
	BaselineRevenue decimal.Decimal     `json:"baseline_revenue"`
	Channels        []ChannelProjection `json:"channels"`
	// Unknown lists allocation ids with no matching PlatformConfig; they
	// contribute nothing to the totals.
	Unknown []string `json:"unknown,omitempty"`
}

// Model projects revenue for an allocation under a saturation model.
type Model struct {
	Saturation SaturationModel
	// Strict panics on allocations for unknown channels instead of skipping them.
	Strict bool
}

// Project runs the default flat-penalty model.
func Project(allocation Allocation, configs map[string]PlatformConfig) ProjectionResult {
	return Model{}.Project(allocation, configs)
}

// Project computes projected revenue and lift against the baseline. Channels
// without an allocation entry are projected at zero budget. Monetary totals are
// rounded to whole units and ImpliedRoas to two places.
func (m Model) Project(allocation Allocation, configs map[string]PlatformConfig) ProjectionResult {
	sat := m.saturation()

	ids := make([]string, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var unknown []string
	for id := range allocation {
		if _, ok := configs[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	if m.Strict && len(unknown) > 0 {
		panic(fmt.Sprintf("projection: allocation references unknown channel %q", unknown[0]))
	}

	var totalBudget, totalRevenue, baselineBudget, baselineRevenue decimal.Decimal
	channels := make([]ChannelProjection, 0, len(ids))
	for _, id := range ids {
		cfg := configs[id]
		budget := allocation[id]
		roas, saturated := sat.EffectiveRoas(cfg, budget)
		revenue := budget.Mul(roas)

		totalBudget = totalBudget.Add(budget)
		totalRevenue = totalRevenue.Add(revenue)
		baselineBudget = baselineBudget.Add(cfg.BaselineBudget)
		baselineRevenue = baselineRevenue.Add(cfg.BaselineRevenue())

		channels = append(channels, ChannelProjection{
			ID:              id,
			Budget:          budget,
			BaselineBudget:  cfg.BaselineBudget,
			EffectiveRoas:   roas.Round(4),
			Revenue:         revenue.Round(0),
			BaselineRevenue: cfg.BaselineRevenue().Round(0),
			Saturated:       saturated,
		})
	}

	totalBudget = totalBudget.Round(0)
	totalRevenue = totalRevenue.Round(0)
	baselineRevenue = baselineRevenue.Round(0)

	implied := decimal.Zero
	if totalBudget.Sign() > 0 {
		implied = totalRevenue.Div(totalBudget).Round(2)
	}

	return ProjectionResult{
		TotalBudget:     totalBudget,
		TotalRevenue:    totalRevenue,
		RevenueLift:     totalRevenue.Sub(baselineRevenue),
		ImpliedRoas:     implied,
		BaselineBudget:  baselineBudget.Round(0),
		BaselineRevenue: baselineRevenue,
		Channels:        channels,
		Unknown:         unknown,
	}
}

// Name reports the saturation model in use.
func (m Model) Name() string {
	return m.saturation().Name()
}

func (m Model) saturation() SaturationModel {
	if m.Saturation == nil {
		return DefaultFlatPenalty()
	}
	return m.Saturation
}

// QuickForecast is the single-channel planner: revenue = budget × roas with no
// saturation, and profit = revenue − budget.
func QuickForecast(budget, roas decimal.Decimal) (revenue, profit decimal.Decimal) {
	revenue = budget.Mul(roas).Round(0)
	return revenue, revenue.Sub(budget)
}
