package source

import (
	"context"
	"fmt"
	"time"

	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

// StoreSource serves series previously persisted by backfill or ingestion.
type StoreSource struct {
	reader DailyMetricReader
	now    func() time.Time
}

// NewStoreSource wraps a persisted series reader.
func NewStoreSource(reader DailyMetricReader) *StoreSource {
	return &StoreSource{reader: reader, now: time.Now}
}

// FetchSeries reads the trailing window and zero-fills missing days so every
// channel covers the same dates.
func (s *StoreSource) FetchSeries(ctx context.Context, days int) ([]metrics.Series, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("metrics store not configured")
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	from, to := metrics.LastNDays(s.now(), days)
	series, err := s.reader.ListDailyMetrics(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily metrics: %w", err)
	}
	if len(series) == 0 {
		return nil, ErrEmptyFeed
	}

	for i := range series {
		series[i].Metrics = metrics.Contiguous(series[i].Metrics, from, to)
	}
	return series, nil
}

var _ MetricsSource = (*StoreSource)(nil)
