package source

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

// Synthetic generates one series per profile.
type Synthetic struct {
	gen      *metrics.Generator
	profiles []Profile
	logger   zerolog.Logger
}

// NewSynthetic constructs a synthetic source. Profiles without a daily spend
// are skipped.
func NewSynthetic(gen *metrics.Generator, profiles []Profile, logger zerolog.Logger) *Synthetic {
	if gen == nil {
		gen = metrics.NewGenerator()
	}
	active := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.DailySpend > 0 {
			active = append(active, p)
		}
	}
	return &Synthetic{
		gen:      gen,
		profiles: active,
		logger:   logger.With().Str("component", "synthetic_source").Logger(),
	}
}

// FetchSeries generates days of data for every profile.
func (s *Synthetic) FetchSeries(ctx context.Context, days int) ([]metrics.Series, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	if len(s.profiles) == 0 {
		return nil, ErrEmptyFeed
	}

	out := make([]metrics.Series, 0, len(s.profiles))
	for _, p := range s.profiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, metrics.Series{
			Channel: p.Channel,
			Metrics: s.gen.Generate(days, p.DailySpend, p.Roas),
		})
	}

	s.logger.Debug().Int("days", days).Int("channels", len(out)).Msg("synthetic series generated")
	return out, nil
}

var _ MetricsSource = (*Synthetic)(nil)
