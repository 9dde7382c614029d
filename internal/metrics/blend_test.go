package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestBlendSumsAndRecomputesRatios(t *testing.T) {
	meta := Series{Channel: "meta", Metrics: []DailyMetric{
		NewDailyMetric(day("2025-08-01"), dec(100), dec(400), 1000, 20, 2),
		NewDailyMetric(day("2025-08-02"), dec(100), dec(100), 1000, 20, 1),
	}}
	google := Series{Channel: "google", Metrics: []DailyMetric{
		NewDailyMetric(day("2025-08-02"), dec(300), dec(300), 3000, 60, 4),
		NewDailyMetric(day("2025-08-03"), dec(50), dec(200), 500, 10, 0),
	}}

	blended := Blend(meta, google)
	require.Len(t, blended, 3)

	require.True(t, blended[0].Date.Equal(day("2025-08-01")))
	require.True(t, blended[1].Date.Equal(day("2025-08-02")))
	require.True(t, blended[2].Date.Equal(day("2025-08-03")))

	aug2 := blended[1]
	require.Equal(t, "400", aug2.Spend.String())
	require.Equal(t, "400", aug2.Revenue.String())
	require.Equal(t, int64(4000), aug2.Impressions)
	require.Equal(t, int64(80), aug2.Clicks)
	require.Equal(t, int64(5), aug2.Conversions)
	// averaging the per-channel ROAS (1.0 and 1.0) agrees here, the CPA check
	// below does not: (100/1 + 300/4)/2 = 87.5 vs 400/5 = 80
	require.Equal(t, "1", aug2.ROAS.String())
	require.Equal(t, "80", aug2.CPA.String())

	aug3 := blended[2]
	require.Equal(t, "4", aug3.ROAS.String())
	require.True(t, aug3.CPA.IsZero(), "no conversions must yield zero CPA")
}

func TestBlendPreservesChannelTotals(t *testing.T) {
	g := NewGenerator(WithSeed(7), WithClock(func() time.Time { return day("2025-09-30") }))
	series := []Series{
		{Channel: "google", Metrics: g.Generate(30, 500, RoasRange{Min: 3.5, Max: 5})},
		{Channel: "meta", Metrics: g.Generate(30, 800, RoasRange{Min: 2, Max: 3.5})},
		{Channel: "tiktok", Metrics: g.Generate(12, 300, RoasRange{Min: 1.5, Max: 4})},
	}

	var want DailyMetric
	for _, s := range series {
		want.add(s.Totals())
	}
	got := Totals(Blend(series...))

	require.True(t, want.Spend.Equal(got.Spend), "spend %s vs %s", want.Spend, got.Spend)
	require.True(t, want.Revenue.Equal(got.Revenue), "revenue %s vs %s", want.Revenue, got.Revenue)
	require.Equal(t, want.Impressions, got.Impressions)
	require.Equal(t, want.Clicks, got.Clicks)
	require.Equal(t, want.Conversions, got.Conversions)
}

func TestBlendEmpty(t *testing.T) {
	require.Empty(t, Blend())
	require.Empty(t, Blend(Series{Channel: "meta"}))
}

func TestZeroSpendYieldsZeroRoas(t *testing.T) {
	m := NewDailyMetric(day("2025-08-01"), decimal.Zero, dec(250), 10, 1, 0)
	require.True(t, m.ROAS.IsZero())
	require.True(t, m.CPA.IsZero())

	total := Totals([]DailyMetric{m})
	require.True(t, total.ROAS.IsZero())
}

func TestNewDailyMetricClampsNegatives(t *testing.T) {
	m := NewDailyMetric(day("2025-08-01"), dec(-10), dec(-5), -1, -2, -3)
	require.True(t, m.Spend.IsZero())
	require.True(t, m.Revenue.IsZero())
	require.Zero(t, m.Impressions)
	require.Zero(t, m.Clicks)
	require.Zero(t, m.Conversions)
}

func TestContiguousFillsGapsWithZeroDays(t *testing.T) {
	in := []DailyMetric{
		NewDailyMetric(day("2025-08-01"), dec(10), dec(20), 1, 1, 1),
		NewDailyMetric(day("2025-08-04"), dec(30), dec(60), 1, 1, 1),
		NewDailyMetric(day("2025-08-04"), dec(10), dec(20), 1, 1, 1),
		NewDailyMetric(day("2025-09-01"), dec(99), dec(99), 1, 1, 1),
	}

	out := Contiguous(in, day("2025-08-01"), day("2025-08-05"))
	require.Len(t, out, 5)
	require.Equal(t, "10", out[0].Spend.String())
	require.True(t, out[1].Spend.IsZero())
	require.True(t, out[2].Revenue.IsZero())
	require.Equal(t, "40", out[3].Spend.String())
	require.Equal(t, "2", out[3].ROAS.String())
	require.True(t, out[4].Date.Equal(day("2025-08-05")))

	require.Empty(t, Contiguous(in, day("2025-08-05"), day("2025-08-01")))
}

func TestSourceROAS(t *testing.T) {
	series := []Series{
		{Channel: "seo", Metrics: []DailyMetric{NewDailyMetric(day("2025-08-01"), dec(100), dec(1200), 0, 0, 0)}},
		{Channel: "meta", Metrics: []DailyMetric{NewDailyMetric(day("2025-08-01"), dec(100), dec(300), 0, 0, 0)}},
		{Channel: "google", Metrics: []DailyMetric{NewDailyMetric(day("2025-08-01"), dec(100), dec(500), 0, 0, 0)}},
	}

	organic, paid := SourceROAS(series, func(ch string) bool { return ch == "seo" })
	require.Equal(t, "12", organic.String())
	require.Equal(t, "4", paid.String())

	organic, paid = SourceROAS(series, nil)
	require.True(t, organic.IsZero())
	require.Equal(t, "6.67", paid.String())
}

func TestGrowthRate(t *testing.T) {
	require.Equal(t, "50", GrowthRate(dec(150), dec(100)).String())
	require.Equal(t, "-25", GrowthRate(dec(75), dec(100)).String())
	require.True(t, GrowthRate(dec(75), decimal.Zero).IsZero())
}
