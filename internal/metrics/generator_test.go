package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestGenerateWindowEndsToday(t *testing.T) {
	now := time.Date(2025, 10, 15, 17, 45, 0, 0, time.UTC)
	g := NewGenerator(WithSeed(42), WithClock(func() time.Time { return now }))

	out := g.Generate(30, 500, RoasRange{Min: 3.5, Max: 5})
	require.Len(t, out, 30)
	require.True(t, out[29].Date.Equal(day("2025-10-15")))
	require.True(t, out[0].Date.Equal(day("2025-09-16")))

	for i := 1; i < len(out); i++ {
		require.True(t, out[i].Date.Equal(out[i-1].Date.AddDate(0, 0, 1)), "dates must be contiguous")
	}
}

func TestGenerateBounds(t *testing.T) {
	g := NewGenerator(WithSeed(1))
	low := decimal.NewFromInt(800)
	high := decimal.NewFromInt(1200)

	for _, m := range g.Generate(200, 1000, RoasRange{Min: 2, Max: 2}) {
		require.False(t, m.Spend.LessThan(low), "spend %s below -20%%", m.Spend)
		require.False(t, m.Spend.GreaterThan(high), "spend %s above +20%%", m.Spend)
		require.Equal(t, "2", m.ROAS.String())
		require.True(t, m.Spend.Equal(m.Spend.Round(0)), "spend must be whole units")
		require.True(t, m.Revenue.Equal(m.Revenue.Round(0)), "revenue must be whole units")

		require.Positive(t, m.Impressions)
		require.LessOrEqual(t, float64(m.Clicks), float64(m.Impressions)*0.03+1)
		require.GreaterOrEqual(t, float64(m.Clicks), float64(m.Impressions)*0.01-1)
		require.LessOrEqual(t, float64(m.Conversions), float64(m.Clicks)*0.10+1)
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	clock := WithClock(func() time.Time { return day("2025-01-31") })
	a := NewGenerator(WithSeed(99), clock).Generate(10, 300, RoasRange{Min: 1.5, Max: 4})
	b := NewGenerator(WithSeed(99), clock).Generate(10, 300, RoasRange{Min: 1.5, Max: 4})
	require.Equal(t, len(a), len(b))
	for i := range a {
		require.True(t, a[i].Spend.Equal(b[i].Spend))
		require.True(t, a[i].Revenue.Equal(b[i].Revenue))
		require.Equal(t, a[i].Clicks, b[i].Clicks)
	}
}

func TestGenerateDegenerateInputs(t *testing.T) {
	g := NewGenerator(WithSeed(3))
	require.Empty(t, g.Generate(0, 100, RoasRange{Min: 1, Max: 2}))

	for _, m := range g.Generate(5, 0, RoasRange{Min: 0, Max: 0}) {
		require.True(t, m.Spend.IsZero())
		require.True(t, m.ROAS.IsZero())
		require.Zero(t, m.Impressions)
	}

	for _, m := range g.Generate(5, 100, RoasRange{Min: 3, Max: 1}) {
		require.False(t, m.ROAS.LessThan(decimal.NewFromFloat(0.95)))
		require.False(t, m.ROAS.GreaterThan(decimal.NewFromFloat(3.05)))
	}
}
