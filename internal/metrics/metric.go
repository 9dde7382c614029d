package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DailyMetric is one calendar day of performance for a single channel or a
// blend of channels. ROAS and CPA are always derived from the summed
// numerators and denominators, never stored independently.
type DailyMetric struct {
	Date        time.Time       `json:"date"`
	Spend       decimal.Decimal `json:"spend"`
	Revenue     decimal.Decimal `json:"revenue"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	ROAS        decimal.Decimal `json:"roas"`
	CPA         decimal.Decimal `json:"cpa"`
}

// NewDailyMetric builds a metric for the given day. Negative inputs are
// clamped to zero.
func NewDailyMetric(date time.Time, spend, revenue decimal.Decimal, impressions, clicks, conversions int64) DailyMetric {
	m := DailyMetric{
		Date:        Day(date),
		Spend:       NonNegative(spend),
		Revenue:     NonNegative(revenue),
		Impressions: max0(impressions),
		Clicks:      max0(clicks),
		Conversions: max0(conversions),
	}
	return m.withDerived()
}

func (m DailyMetric) withDerived() DailyMetric {
	m.ROAS = Ratio(m.Revenue, m.Spend, 2)
	m.CPA = Ratio(m.Spend, decimal.NewFromInt(m.Conversions), 2)
	return m
}

// add accumulates o into m without re-deriving ratios.
func (m *DailyMetric) add(o DailyMetric) {
	m.Spend = m.Spend.Add(NonNegative(o.Spend))
	m.Revenue = m.Revenue.Add(NonNegative(o.Revenue))
	m.Impressions += max0(o.Impressions)
	m.Clicks += max0(o.Clicks)
	m.Conversions += max0(o.Conversions)
}

// Series is the daily history of one named channel.
type Series struct {
	Channel string        `json:"channel"`
	Metrics []DailyMetric `json:"metrics"`
}

// Totals sums the series over its full window.
func (s Series) Totals() DailyMetric {
	return Totals(s.Metrics)
}

// Ratio divides num by den rounded to places. A zero or negative denominator
// yields zero.
func Ratio(num, den decimal.Decimal, places int32) decimal.Decimal {
	if den.Sign() <= 0 {
		return decimal.Zero
	}
	return num.Div(den).Round(places)
}

// Percent returns part/whole*100 rounded to two places, zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.Sign() <= 0 {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

// GrowthRate is (current-prior)/prior*100, defined as zero when prior is zero.
func GrowthRate(current, prior decimal.Decimal) decimal.Decimal {
	if prior.IsZero() {
		return decimal.Zero
	}
	return current.Sub(prior).Div(prior).Mul(hundred).Round(2)
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.Zero
	}
	return d
}

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LastNDays returns the inclusive day window of length days ending on now.
func LastNDays(now time.Time, days int) (from, to time.Time) {
	if days < 1 {
		days = 1
	}
	to = Day(now)
	from = to.AddDate(0, 0, -(days - 1))
	return from, to
}

func max0(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
