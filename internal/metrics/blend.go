package metrics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Blend merges channel series into a single series keyed by day. Volumes are
// summed across every channel present on a day and ROAS/CPA are recomputed
// from the sums. The result is sorted ascending by date.
func Blend(series ...Series) []DailyMetric {
	byDay := make(map[time.Time]*DailyMetric)
	for _, s := range series {
		for _, m := range s.Metrics {
			day := Day(m.Date)
			acc, ok := byDay[day]
			if !ok {
				acc = &DailyMetric{Date: day}
				byDay[day] = acc
			}
			acc.add(m)
		}
	}

	out := make([]DailyMetric, 0, len(byDay))
	for _, acc := range byDay {
		out = append(out, acc.withDerived())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Totals sums metrics over their full window. The returned Date is the latest
// day seen.
func Totals(metrics []DailyMetric) DailyMetric {
	var total DailyMetric
	for _, m := range metrics {
		total.add(m)
		if m.Date.After(total.Date) {
			total.Date = Day(m.Date)
		}
	}
	return total.withDerived()
}

// Contiguous returns one metric per day in [from, to]. Days missing from
// metrics are zero-activity days; duplicate days are summed.
func Contiguous(metrics []DailyMetric, from, to time.Time) []DailyMetric {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return []DailyMetric{}
	}

	byDay := make(map[time.Time]*DailyMetric, len(metrics))
	for _, m := range metrics {
		day := Day(m.Date)
		acc, ok := byDay[day]
		if !ok {
			acc = &DailyMetric{Date: day}
			byDay[day] = acc
		}
		acc.add(m)
	}

	out := make([]DailyMetric, 0, int(to.Sub(from).Hours()/24)+1)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if acc, ok := byDay[day]; ok {
			out = append(out, acc.withDerived())
			continue
		}
		out = append(out, NewDailyMetric(day, decimal.Zero, decimal.Zero, 0, 0, 0))
	}
	return out
}

// SourceROAS splits channels into organic and paid using isOrganic and returns
// the blended ROAS of each group over the full window.
func SourceROAS(series []Series, isOrganic func(channel string) bool) (organic, paid decimal.Decimal) {
	var organicTotal, paidTotal DailyMetric
	for _, s := range series {
		t := s.Totals()
		if isOrganic != nil && isOrganic(s.Channel) {
			organicTotal.add(t)
		} else {
			paidTotal.add(t)
		}
	}
	return organicTotal.withDerived().ROAS, paidTotal.withDerived().ROAS
}
