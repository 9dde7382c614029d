package projection

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scenario is an applied projection. Scenarios are appended, never updated.
type Scenario struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Allocation       Allocation      `json:"allocation"`
	Model            string          `json:"model"`
	TotalBudget      decimal.Decimal `json:"total_budget"`
	ProjectedRevenue decimal.Decimal `json:"projected_revenue"`
	ProjectedRoas    decimal.Decimal `json:"projected_roas"`
	RevenueLift      decimal.Decimal `json:"revenue_lift"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewScenario snapshots an allocation and its projection.
func NewScenario(name string, allocation Allocation, result ProjectionResult, model string, at time.Time) Scenario {
	if name == "" {
		name = "Scenario - " + at.UTC().Format("2006-01-02 15:04:05")
	}
	return Scenario{
		ID:               uuid.New(),
		Name:             name,
		Allocation:       allocation.Clone(),
		Model:            model,
		TotalBudget:      result.TotalBudget,
		ProjectedRevenue: result.TotalRevenue,
		ProjectedRoas:    result.ImpliedRoas,
		RevenueLift:      result.RevenueLift,
		CreatedAt:        at.UTC(),
	}
}

// DefaultConfigs is the stock channel set used when none is configured.
func DefaultConfigs() map[string]PlatformConfig {
	return map[string]PlatformConfig{
		"meta":    {ID: "meta", DisplayName: "Meta", BaselineRoas: decimal.NewFromFloat(3.5), BaselineBudget: decimal.NewFromInt(15000), ColorHint: "#3b82f6"},
		"google":  {ID: "google", DisplayName: "Google", BaselineRoas: decimal.NewFromFloat(4.2), BaselineBudget: decimal.NewFromInt(12000), ColorHint: "#ea4335"},
		"youtube": {ID: "youtube", DisplayName: "YouTube", BaselineRoas: decimal.NewFromFloat(1.5), BaselineBudget: decimal.NewFromInt(8000), ColorHint: "#ff0000"},
		"tiktok":  {ID: "tiktok", DisplayName: "TikTok", BaselineRoas: decimal.NewFromFloat(2.8), BaselineBudget: decimal.NewFromInt(10000), ColorHint: "#000000"},
	}
}
