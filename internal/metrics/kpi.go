package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpendEstimation selects how advertising spend is estimated for KPIs.
type SpendEstimation string

const (
	// SpendFromIntegrations sums spend from the blended platform series.
	SpendFromIntegrations SpendEstimation = "integrations"
	// SpendFromIndustryRoas divides revenue by an industry-average ROAS.
	SpendFromIndustryRoas SpendEstimation = "industry_roas"
)

// DefaultIndustryRoas is the industry-average ROAS divisor.
var DefaultIndustryRoas = decimal.NewFromFloat(3.5)

// KpiSnapshot holds lifetime KPIs for one aggregation pass.
type KpiSnapshot struct {
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	TotalSpendEstimate decimal.Decimal `json:"total_spend_estimate"`
	CustomerCount      int             `json:"customer_count"`
	AtRiskCount        int             `json:"at_risk_count"`
	AverageOrderValue  decimal.Decimal `json:"average_order_value"`
	ChurnRate          decimal.Decimal `json:"churn_rate"`
	BlendedRoas        decimal.Decimal `json:"blended_roas"`
	CAC                decimal.Decimal `json:"cac"`
	LtvToCac           decimal.Decimal `json:"ltv_to_cac"`
}

// PeriodComparison compares the current calendar month with the one before.
type PeriodComparison struct {
	CurrentStart     time.Time       `json:"current_start"`
	PriorStart       time.Time       `json:"prior_start"`
	CurrentRevenue   decimal.Decimal `json:"current_revenue"`
	PriorRevenue     decimal.Decimal `json:"prior_revenue"`
	CurrentCustomers int             `json:"current_customers"`
	PriorCustomers   int             `json:"prior_customers"`
	RevenueGrowth    decimal.Decimal `json:"revenue_growth"`
	CustomerGrowth   decimal.Decimal `json:"customer_growth"`
}

// KPIReport is the output of DeriveKPIs.
type KPIReport struct {
	Snapshot KpiSnapshot      `json:"snapshot"`
	Growth   PeriodComparison `json:"growth"`
}

// KPIOptions parameterise DeriveKPIs.
type KPIOptions struct {
	Filter       CustomerFilter
	Now          time.Time
	Spend        SpendEstimation
	IndustryRoas decimal.Decimal
}

// DeriveKPIs computes the lifetime snapshot over the filtered record set and a
// month-over-month comparison. blended supplies spend when Spend is
// SpendFromIntegrations.
func DeriveKPIs(records []CustomerRecord, blended []DailyMetric, opts KPIOptions) KPIReport {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	filtered := FilterCustomers(records, opts.Filter, now)

	curStart := monthStart(now)
	priorStart := curStart.AddDate(0, -1, 0)
	nextStart := curStart.AddDate(0, 1, 0)

	growth := PeriodComparison{CurrentStart: curStart, PriorStart: priorStart}
	var revenue decimal.Decimal
	atRisk := 0
	for _, c := range filtered {
		r := c.Revenue()
		revenue = revenue.Add(r)
		if c.Status == StatusAtRisk {
			atRisk++
		}

		at := c.ActivityDate(now).UTC()
		switch {
		case !at.Before(curStart) && at.Before(nextStart):
			growth.CurrentRevenue = growth.CurrentRevenue.Add(r)
			growth.CurrentCustomers++
		case !at.Before(priorStart) && at.Before(curStart):
			growth.PriorRevenue = growth.PriorRevenue.Add(r)
			growth.PriorCustomers++
		}
	}
	growth.RevenueGrowth = GrowthRate(growth.CurrentRevenue, growth.PriorRevenue)
	growth.CustomerGrowth = GrowthRate(decimal.NewFromInt(int64(growth.CurrentCustomers)), decimal.NewFromInt(int64(growth.PriorCustomers)))

	count := decimal.NewFromInt(int64(len(filtered)))
	spend := estimateSpend(revenue, blended, opts)
	aov := Ratio(revenue, count, 2)
	cac := Ratio(spend, count, 2)

	return KPIReport{
		Snapshot: KpiSnapshot{
			TotalRevenue:       revenue,
			TotalSpendEstimate: spend,
			CustomerCount:      len(filtered),
			AtRiskCount:        atRisk,
			AverageOrderValue:  aov,
			ChurnRate:          Percent(decimal.NewFromInt(int64(atRisk)), count),
			BlendedRoas:        Ratio(revenue, spend, 2),
			CAC:                cac,
			LtvToCac:           Ratio(aov, cac, 2),
		},
		Growth: growth,
	}
}

func estimateSpend(revenue decimal.Decimal, blended []DailyMetric, opts KPIOptions) decimal.Decimal {
	if opts.Spend == SpendFromIndustryRoas {
		divisor := opts.IndustryRoas
		if divisor.Sign() <= 0 {
			divisor = DefaultIndustryRoas
		}
		return revenue.Div(divisor).Round(0)
	}
	return Totals(blended).Spend
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
