package projection

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// SaturationThresholdMultiplier is the budget multiple of baseline above
	// which a channel saturates.
	SaturationThresholdMultiplier = 1.5
	// SaturationPenalty is the flat ROAS multiplier applied past the threshold.
	SaturationPenalty = 0.78

	// decay variant: 5% ROAS lost per 100% of baseline spent past the
	// threshold, capped at 40%
	decayPerExcess = 0.05
	maxDecay       = 0.4
)

const (
	ModelFlat  = "flat"
	ModelDecay = "decay"
)

// SaturationModel maps a channel and its new budget to an effective ROAS.
type SaturationModel interface {
	EffectiveRoas(cfg PlatformConfig, budget decimal.Decimal) (roas decimal.Decimal, saturated bool)
	Name() string
}

// FlatPenalty multiplies ROAS by Penalty once budget exceeds
// Multiplier × baseline.
type FlatPenalty struct {
	Multiplier decimal.Decimal
	Penalty    decimal.Decimal
}

// DefaultFlatPenalty uses the 1.5× threshold and 0.78 penalty.
func DefaultFlatPenalty() FlatPenalty {
	return FlatPenalty{
		Multiplier: decimal.NewFromFloat(SaturationThresholdMultiplier),
		Penalty:    decimal.NewFromFloat(SaturationPenalty),
	}
}

func (f FlatPenalty) EffectiveRoas(cfg PlatformConfig, budget decimal.Decimal) (decimal.Decimal, bool) {
	if budget.GreaterThan(cfg.BaselineBudget.Mul(f.Multiplier)) {
		return cfg.BaselineRoas.Mul(f.Penalty), true
	}
	return cfg.BaselineRoas, false
}

func (f FlatPenalty) Name() string { return ModelFlat }

// LinearDecay degrades ROAS continuously past the threshold:
// decay = min((budget − Multiplier×baseline) / baseline × PerExcess, Max).
type LinearDecay struct {
	Multiplier decimal.Decimal
	PerExcess  decimal.Decimal
	Max        decimal.Decimal
}

// DefaultLinearDecay uses the 1.5× threshold, 5% per 100% excess and a 40% cap.
func DefaultLinearDecay() LinearDecay {
	return LinearDecay{
		Multiplier: decimal.NewFromFloat(SaturationThresholdMultiplier),
		PerExcess:  decimal.NewFromFloat(decayPerExcess),
		Max:        decimal.NewFromFloat(maxDecay),
	}
}

func (l LinearDecay) EffectiveRoas(cfg PlatformConfig, budget decimal.Decimal) (decimal.Decimal, bool) {
	threshold := cfg.BaselineBudget.Mul(l.Multiplier)
	if !budget.GreaterThan(threshold) {
		return cfg.BaselineRoas, false
	}

	decay := l.Max
	if cfg.BaselineBudget.Sign() > 0 {
		decay = decimal.Min(budget.Sub(threshold).Div(cfg.BaselineBudget).Mul(l.PerExcess), l.Max)
	}
	return cfg.BaselineRoas.Mul(decimal.NewFromInt(1).Sub(decay)), true
}

func (l LinearDecay) Name() string { return ModelDecay }

// ModelByName resolves a configured model name.
func ModelByName(name string) (SaturationModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ModelFlat:
		return DefaultFlatPenalty(), nil
	case ModelDecay:
		return DefaultLinearDecay(), nil
	}
	return nil, fmt.Errorf("unknown saturation model %q", name)
}

var (
	_ SaturationModel = FlatPenalty{}
	_ SaturationModel = LinearDecay{}
)
