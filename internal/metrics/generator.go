package metrics

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	spendVolatility = 0.20

	// cost per thousand impressions, in currency units
	minCPM = 8.0
	maxCPM = 20.0

	minCTR = 0.01
	maxCTR = 0.03

	minCVR = 0.05
	maxCVR = 0.10
)

// RoasRange bounds the uniformly drawn daily ROAS.
type RoasRange struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// Generator produces synthetic daily series standing in for a live platform
// feed. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// GeneratorOption customises a Generator.
type GeneratorOption func(*Generator)

// WithSeed makes the generator deterministic.
func WithSeed(seed int64) GeneratorOption {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithClock overrides the reference "today".
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator constructs a Generator seeded from the wall clock unless
// WithSeed is given.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns days metrics ending today, oldest first. Spend is drawn
// within ±20% of baseSpend and ROAS uniformly within roas; impressions, clicks
// and conversions cascade from spend through randomised CPM, CTR and CVR.
func (g *Generator) Generate(days int, baseSpend float64, roas RoasRange) []DailyMetric {
	if days <= 0 {
		return []DailyMetric{}
	}
	if baseSpend < 0 || math.IsNaN(baseSpend) {
		baseSpend = 0
	}
	if roas.Max < roas.Min {
		roas.Min, roas.Max = roas.Max, roas.Min
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	today := Day(g.now())
	out := make([]DailyMetric, 0, days)
	for i := days - 1; i >= 0; i-- {
		spend := baseSpend * g.uniform(1-spendVolatility, 1+spendVolatility)
		revenue := spend * g.uniform(roas.Min, roas.Max)
		impressions := math.Round(spend / g.uniform(minCPM, maxCPM) * 1000)
		clicks := math.Round(impressions * g.uniform(minCTR, maxCTR))
		conversions := math.Round(clicks * g.uniform(minCVR, maxCVR))

		out = append(out, NewDailyMetric(
			today.AddDate(0, 0, -i),
			decimal.NewFromFloat(math.Round(spend)),
			decimal.NewFromFloat(math.Round(revenue)),
			int64(impressions),
			int64(clicks),
			int64(conversions),
		))
	}
	return out
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
