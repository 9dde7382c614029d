package storage

import (
	"time"

	"github.com/fromlifetolines/lumina-ados/internal/advisory"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

// SnapshotRecord is a persisted KPI aggregation pass.
type SnapshotRecord struct {
	ID        int64
	Source    string
	Snapshot  metrics.KpiSnapshot
	Growth    metrics.PeriodComparison
	CreatedAt time.Time
}

// AdviceRecord captures a fired recommendation for auditing.
type AdviceRecord struct {
	ID             int64
	SnapshotID     int64
	Recommendation advisory.Recommendation
	CreatedAt      time.Time
}
