package advisory

import (
	"github.com/shopspring/decimal"

	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

// Category tags the severity of a recommendation.
type Category string

const (
	CategoryOpportunity Category = "opportunity"
	CategoryWarning     Category = "warning"
	CategoryAlert       Category = "alert"
	CategoryInfo        Category = "info"
)

// RuleID identifies the rule that produced a recommendation.
type RuleID string

const (
	RuleShiftToOrganic RuleID = "shift-to-organic"
	RuleRaiseAOV       RuleID = "raise-aov"
	RuleWinBack        RuleID = "win-back"
	RuleSteadyState    RuleID = "steady-state"
)

var (
	// AOVThreshold is the average order value below which the raise-aov rule fires.
	AOVThreshold = decimal.NewFromInt(150)
	// ChurnThreshold is the churn percentage above which the win-back rule fires.
	ChurnThreshold = decimal.NewFromInt(10)
)

// Recommendation is one piece of advice. The wording is presentation only;
// callers should key on Rule.
type Recommendation struct {
	Rule     RuleID   `json:"rule"`
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
	Impact   string   `json:"impact"`
}

// SourcePerformance compares owned/organic efficiency against paid channels.
type SourcePerformance struct {
	OrganicRoas decimal.Decimal `json:"organic_roas"`
	PaidRoas    decimal.Decimal `json:"paid_roas"`
}

type rule struct {
	matches func(metrics.KpiSnapshot, SourcePerformance) bool
	rec     Recommendation
}

// rules are evaluated in order and every match fires.
var rules = []rule{
	{
		matches: func(_ metrics.KpiSnapshot, p SourcePerformance) bool {
			return p.OrganicRoas.GreaterThan(p.PaidRoas)
		},
		rec: Recommendation{
			Rule:     RuleShiftToOrganic,
			Category: CategoryOpportunity,
			Title:    "Shift budget toward organic",
			Message:  "Organic channels are returning more per unit of spend than paid media. Move budget into content and programmatic SEO.",
			Action:   "Shift budget to content.",
			Impact:   "Expected ~15% lower blended CAC",
		},
	},
	{
		matches: func(k metrics.KpiSnapshot, _ SourcePerformance) bool {
			return k.AverageOrderValue.LessThan(AOVThreshold)
		},
		rec: Recommendation{
			Rule:     RuleRaiseAOV,
			Category: CategoryWarning,
			Title:    "Average order value is low",
			Message:  "Pause broad social targeting and move spend to high-intent search terms such as competitor alternatives.",
			Action:   "Target high-intent keywords.",
			Impact:   "Lift AOV above 200",
		},
	},
	{
		matches: func(k metrics.KpiSnapshot, _ SourcePerformance) bool {
			return k.ChurnRate.GreaterThan(ChurnThreshold)
		},
		rec: Recommendation{
			Rule:     RuleWinBack,
			Category: CategoryAlert,
			Title:    "Churn is above target",
			Message:  "Too many customers are at risk. Run a remarketing and email sequence aimed at high-value customers first.",
			Action:   "Activate a win-back campaign.",
			Impact:   "Bring churn below 5%",
		},
	},
}

var steadyState = Recommendation{
	Rule:     RuleSteadyState,
	Category: CategoryInfo,
	Title:    "Steady growth",
	Message:  "All tracked indicators are healthy. Keep the current allocation and rotate creatives to avoid fatigue.",
	Action:   "Refresh creatives.",
	Impact:   "Hold blended ROAS around 3.5x",
}

// Advise runs every rule against the snapshot. It always returns at least one
// recommendation: the steady-state advice when nothing else fires.
func Advise(kpis metrics.KpiSnapshot, perf SourcePerformance) []Recommendation {
	out := make([]Recommendation, 0, len(rules))
	for _, r := range rules {
		if r.matches(kpis, perf) {
			out = append(out, r.rec)
		}
	}
	if len(out) == 0 {
		out = append(out, steadyState)
	}
	return out
}

// Actionable reports whether any recommendation other than steady state fired.
func Actionable(recs []Recommendation) bool {
	for _, r := range recs {
		if r.Rule != RuleSteadyState {
			return true
		}
	}
	return false
}

// Rules lists the rule ids in evaluation order.
func Rules(recs []Recommendation) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, string(r.Rule))
	}
	return ids
}
