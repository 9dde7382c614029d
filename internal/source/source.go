package source

import (
	"context"
	"errors"
	"time"

	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

// ErrEmptyFeed indicates a source returned no series at all.
var ErrEmptyFeed = errors.New("source: no series returned")

// MetricsSource supplies per-channel daily series for the trailing window
// ending today.
type MetricsSource interface {
	FetchSeries(ctx context.Context, days int) ([]metrics.Series, error)
}

// CustomerSource supplies CRM customer records. source filters by acquisition
// source; "" or "all" returns everything.
type CustomerSource interface {
	ListCustomers(ctx context.Context, source string) ([]metrics.CustomerRecord, error)
}

// DailyMetricReader reads persisted channel series.
type DailyMetricReader interface {
	ListDailyMetrics(ctx context.Context, from, to time.Time) ([]metrics.Series, error)
}

// Profile describes one channel for synthetic generation.
type Profile struct {
	Channel    string
	DailySpend float64
	Roas       metrics.RoasRange
	Organic    bool
}

// OrganicSet returns a predicate matching organic channel ids.
func OrganicSet(profiles []Profile) func(string) bool {
	set := make(map[string]struct{})
	for _, p := range profiles {
		if p.Organic {
			set[p.Channel] = struct{}{}
		}
	}
	return func(channel string) bool {
		_, ok := set[channel]
		return ok
	}
}
