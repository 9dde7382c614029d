package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fromlifetolines/lumina-ados/internal/advisory"
	"github.com/fromlifetolines/lumina-ados/internal/alerting"
	"github.com/fromlifetolines/lumina-ados/internal/config"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
	"github.com/fromlifetolines/lumina-ados/internal/scheduler"
	"github.com/fromlifetolines/lumina-ados/internal/source"
	"github.com/fromlifetolines/lumina-ados/internal/storage"
	"github.com/fromlifetolines/lumina-ados/internal/telemetry"
)

// Query narrows one KPI computation. Zero values fall back to configuration.
type Query struct {
	At     time.Time
	Source string
	Days   int
	From   *time.Time
	To     *time.Time
}

// Result is one full aggregation pass: raw channel series, the blend, KPIs,
// and the advice derived from them.
type Result struct {
	At          time.Time                  `json:"at"`
	Source      string                     `json:"source"`
	Days        int                        `json:"days"`
	Series      []metrics.Series           `json:"series"`
	Blended     []metrics.DailyMetric      `json:"blended"`
	Totals      metrics.DailyMetric        `json:"totals"`
	Report      metrics.KPIReport          `json:"report"`
	Performance advisory.SourcePerformance `json:"performance"`
	Advice      []advisory.Recommendation  `json:"advice"`
	// CustomerDaily is CRM revenue per activity day over the window.
	CustomerDaily []metrics.DailyMetric    `json:"customer_daily"`
	Customers     []metrics.CustomerRecord `json:"-"`
}

// Service orchestrates fetching, aggregation, persistence, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	series    source.MetricsSource
	customers source.CustomerSource
	store     storage.SnapshotStore
	notifier  alerting.Notifier
	collector *telemetry.Collector
	logger    zerolog.Logger

	days         int
	kpiSource    string
	spend        metrics.SpendEstimation
	industryRoas decimal.Decimal
	organic      func(string) bool
	alertsOn     bool
	cooldown     time.Duration
	retention    time.Duration
	locker       storage.AdvisoryLocker
	lockKey      int64
	now          func() time.Time

	mu        sync.RWMutex
	latest    *Result
	lastRules string
	lastSent  time.Time
}

// New constructs the refresh service. store, notifier, and collector may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, series source.MetricsSource, customers source.CustomerSource, store storage.SnapshotStore, notifier alerting.Notifier, collector *telemetry.Collector, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	profiles := make([]source.Profile, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		profiles = append(profiles, source.Profile{Channel: ch.ID, Organic: ch.Organic})
	}

	return &Service{
		scheduler:    sched,
		series:       series,
		customers:    customers,
		store:        store,
		notifier:     notifier,
		collector:    collector,
		logger:       logger.With().Str("component", "service").Logger(),
		days:         cfg.Source.Days,
		kpiSource:    cfg.KPI.Source,
		spend:        metrics.SpendEstimation(cfg.KPI.SpendEstimation),
		industryRoas: decimal.NewFromFloat(cfg.KPI.IndustryRoas),
		organic:      source.OrganicSet(profiles),
		alertsOn:     cfg.Alerting.Enabled,
		cooldown:     cfg.Alerting.Cooldown,
		retention:    cfg.Database.AdviceRetention,
		locker:       locker,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
		now:          time.Now,
	}
}

// Run begins the scheduled refresh loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Refresh)
}

// Latest returns the result of the most recent scheduled refresh.
func (s *Service) Latest() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Result{}, false
	}
	return *s.latest, true
}

// Compute runs one aggregation pass without persisting or notifying.
func (s *Service) Compute(ctx context.Context, q Query) (Result, error) {
	at := q.At
	if at.IsZero() {
		at = s.now()
	}
	days := q.Days
	if days <= 0 {
		days = s.days
	}
	src := strings.TrimSpace(q.Source)
	if src == "" {
		src = s.kpiSource
	}
	if src == "" {
		src = metrics.SourceAll
	}

	series, err := s.series.FetchSeries(ctx, days)
	if err != nil && !errors.Is(err, source.ErrEmptyFeed) {
		return Result{}, fmt.Errorf("fetch series: %w", err)
	}

	var records []metrics.CustomerRecord
	if s.customers != nil {
		records, err = s.customers.ListCustomers(ctx, src)
		if err != nil {
			return Result{}, fmt.Errorf("list customers: %w", err)
		}
	}

	blended := metrics.Blend(series...)
	filter := metrics.CustomerFilter{Source: src, From: q.From, To: q.To}
	report := metrics.DeriveKPIs(records, blended, metrics.KPIOptions{
		Filter:       filter,
		Now:          at,
		Spend:        s.spend,
		IndustryRoas: s.industryRoas,
	})

	organicRoas, paidRoas := metrics.SourceROAS(series, s.organic)
	perf := advisory.SourcePerformance{OrganicRoas: organicRoas, PaidRoas: paidRoas}

	customers := metrics.FilterCustomers(records, filter, at)
	return Result{
		At:            at,
		Source:        src,
		Days:          days,
		Series:        series,
		Blended:       blended,
		Totals:        metrics.Totals(blended),
		Report:        report,
		Performance:   perf,
		Advice:        advisory.Advise(report.Snapshot, perf),
		CustomerDaily: metrics.CustomerDaily(customers, days, at),
		Customers:     customers,
	}, nil
}

// Refresh 执行单次调度刷新。
func (s *Service) Refresh(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip refresh because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	res, err := s.Compute(ctx, Query{At: bucket})
	s.collector.ObserveRefresh(time.Since(started), err)
	if err != nil {
		return err
	}

	s.record(ctx, res)
	return nil
}

func (s *Service) record(ctx context.Context, res Result) {
	snap := res.Report.Snapshot
	rules := advisory.Rules(res.Advice)

	s.collector.SetKPIs(snap)
	s.collector.ObserveRecommendations(rules)

	s.mu.Lock()
	s.latest = &res
	s.mu.Unlock()

	if s.store != nil {
		rec := storage.SnapshotRecord{
			Source:    res.Source,
			Snapshot:  snap,
			Growth:    res.Report.Growth,
			CreatedAt: res.At,
		}
		if _, err := s.store.InsertSnapshot(ctx, rec, res.Advice); err != nil {
			s.logger.Error().Err(err).Time("bucket", res.At).Msg("failed to persist snapshot")
		}
		if s.retention > 0 {
			if err := s.store.DeleteAdviceBefore(ctx, res.At.Add(-s.retention)); err != nil {
				s.logger.Error().Err(err).Msg("failed to prune advice history")
			}
		}
	}

	s.logger.Info().Time("bucket", res.At).
		Str("source", res.Source).
		Str("revenue", snap.TotalRevenue.String()).
		Str("blended_roas", snap.BlendedRoas.String()).
		Str("churn_rate", snap.ChurnRate.String()).
		Strs("rules", rules).
		Msg("kpi snapshot recorded")

	s.maybeNotify(ctx, res, rules)
}

// maybeNotify sends a digest when advice is actionable, unless the same rule
// set was already sent within the cooldown.
func (s *Service) maybeNotify(ctx context.Context, res Result, rules []string) {
	if !s.alertsOn || s.notifier == nil || !advisory.Actionable(res.Advice) {
		return
	}

	fingerprint := strings.Join(rules, ",")
	s.mu.RLock()
	suppressed := fingerprint == s.lastRules && s.cooldown > 0 && res.At.Sub(s.lastSent) < s.cooldown
	s.mu.RUnlock()
	if suppressed {
		s.collector.ObserveNotification("suppressed")
		s.logger.Debug().Strs("rules", rules).Msg("digest suppressed by cooldown")
		return
	}

	note := alerting.Notification{
		At:              res.At,
		Source:          res.Source,
		Snapshot:        res.Report.Snapshot,
		Recommendations: res.Advice,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.collector.ObserveNotification("failed")
		s.logger.Error().Err(err).Time("bucket", res.At).Msg("failed to dispatch digest")
		return
	}
	s.collector.ObserveNotification("sent")

	s.mu.Lock()
	s.lastRules = fingerprint
	s.lastSent = res.At
	s.mu.Unlock()
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
