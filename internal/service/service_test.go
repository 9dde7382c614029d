package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fromlifetolines/lumina-ados/internal/advisory"
	"github.com/fromlifetolines/lumina-ados/internal/alerting"
	"github.com/fromlifetolines/lumina-ados/internal/config"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
	"github.com/fromlifetolines/lumina-ados/internal/source"
	"github.com/fromlifetolines/lumina-ados/internal/storage"
	"github.com/fromlifetolines/lumina-ados/internal/telemetry"
)

var bucket = time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)

type fakeSeries struct {
	series []metrics.Series
	err    error
	days   int
}

func (f *fakeSeries) FetchSeries(_ context.Context, days int) ([]metrics.Series, error) {
	f.days = days
	return f.series, f.err
}

type fakeCustomers struct {
	records []metrics.CustomerRecord
	asked   string
}

func (f *fakeCustomers) ListCustomers(_ context.Context, src string) ([]metrics.CustomerRecord, error) {
	f.asked = src
	return f.records, nil
}

type fakeStore struct {
	mu        sync.Mutex
	snapshots []storage.SnapshotRecord
	advice    [][]advisory.Recommendation
	pruned    []time.Time
	lockBusy  bool
	unlocked  int
}

func (f *fakeStore) InsertSnapshot(_ context.Context, rec storage.SnapshotRecord, advice []advisory.Recommendation) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, rec)
	f.advice = append(f.advice, advice)
	return int64(len(f.snapshots)), nil
}

func (f *fakeStore) LatestSnapshot(context.Context, string) (storage.SnapshotRecord, error) {
	return storage.SnapshotRecord{}, errors.New("not implemented")
}

func (f *fakeStore) ListRecentAdvice(context.Context, int) ([]storage.AdviceRecord, error) {
	return nil, nil
}

func (f *fakeStore) DeleteAdviceBefore(_ context.Context, olderThan time.Time) error {
	f.pruned = append(f.pruned, olderThan)
	return nil
}

func (f *fakeStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if f.lockBusy {
		return nil, false, nil
	}
	return func() { f.unlocked++ }, true, nil
}

type fakeNotifier struct {
	notes []alerting.Notification
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.notes = append(f.notes, note)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{AdvisoryLockKey: 42},
		Source:    config.SourceConfig{Days: 7},
		Channels: []config.ChannelConfig{
			{ID: "meta", BaselineRoas: 3.5, BaselineBudget: 15000},
			{ID: "seo", Organic: true},
		},
		KPI:      config.KPIConfig{SpendEstimation: "integrations", IndustryRoas: 3.5, Source: metrics.SourceAll},
		Alerting: config.AlertingConfig{Enabled: true, Cooldown: time.Hour},
		Database: config.DatabaseConfig{AdviceRetention: 24 * time.Hour},
	}
}

func channelSeries() []metrics.Series {
	day := bucket.AddDate(0, 0, -1)
	return []metrics.Series{
		{Channel: "meta", Metrics: []metrics.DailyMetric{
			metrics.NewDailyMetric(day, decimal.NewFromInt(1000), decimal.NewFromInt(2000), 50000, 1000, 20),
		}},
		{Channel: "seo", Metrics: []metrics.DailyMetric{
			metrics.NewDailyMetric(day, decimal.NewFromInt(100), decimal.NewFromInt(1000), 8000, 400, 10),
		}},
	}
}

// ten customers at 100 each, two of them at risk
func crm() []metrics.CustomerRecord {
	out := make([]metrics.CustomerRecord, 0, 10)
	for i := 0; i < 10; i++ {
		status := metrics.StatusPromising
		if i < 2 {
			status = metrics.StatusAtRisk
		}
		last := bucket.AddDate(0, 0, -i)
		out = append(out, metrics.CustomerRecord{
			ID:           fmt.Sprintf("c%d", i),
			TotalSpent:   decimal.NewNullDecimal(decimal.NewFromInt(100)),
			Status:       status,
			LastPurchase: &last,
			Source:       "meta",
		})
	}
	return out
}

type harness struct {
	svc       *Service
	series    *fakeSeries
	customers *fakeCustomers
	store     *fakeStore
	notifier  *fakeNotifier
}

func newHarness(cfg *config.Config) *harness {
	h := &harness{
		series:    &fakeSeries{series: channelSeries()},
		customers: &fakeCustomers{records: crm()},
		store:     &fakeStore{},
		notifier:  &fakeNotifier{},
	}
	h.svc = New(cfg, nil, h.series, h.customers, h.store, h.notifier, telemetry.New(), zerolog.Nop())
	return h
}

func TestComputeDerivesKPIsAndAdvice(t *testing.T) {
	h := newHarness(testConfig())

	res, err := h.svc.Compute(context.Background(), Query{At: bucket})
	if err != nil {
		t.Fatalf("计算失败: %v", err)
	}
	if h.series.days != 7 {
		t.Fatalf("期望使用配置窗口 7 天, 实际 %d", h.series.days)
	}
	if h.customers.asked != metrics.SourceAll {
		t.Fatalf("期望来源 all, 实际 %q", h.customers.asked)
	}

	snap := res.Report.Snapshot
	if !snap.TotalRevenue.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("总收入不符: %s", snap.TotalRevenue)
	}
	if !snap.TotalSpendEstimate.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("花费应来自渠道汇总: %s", snap.TotalSpendEstimate)
	}
	if !snap.ChurnRate.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("流失率不符: %s", snap.ChurnRate)
	}
	if !res.Performance.OrganicRoas.Equal(decimal.NewFromInt(10)) || !res.Performance.PaidRoas.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("自然/付费 ROAS 不符: %+v", res.Performance)
	}
	if !res.Totals.Revenue.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("混合收入不符: %s", res.Totals.Revenue)
	}

	want := []string{"shift-to-organic", "raise-aov", "win-back"}
	got := advisory.Rules(res.Advice)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("期望规则 %v, 实际 %v", want, got)
	}
	if len(res.Customers) != 10 {
		t.Fatalf("期望 10 位客户, 实际 %d", len(res.Customers))
	}
	if len(res.CustomerDaily) != 7 {
		t.Fatalf("客户日收入应覆盖 7 天, 实际 %d", len(res.CustomerDaily))
	}
}

func TestComputeQueryOverrides(t *testing.T) {
	h := newHarness(testConfig())
	from := bucket.AddDate(0, 0, -3)

	res, err := h.svc.Compute(context.Background(), Query{At: bucket, Source: "tiktok", Days: 14, From: &from})
	if err != nil {
		t.Fatal(err)
	}
	if h.series.days != 14 || h.customers.asked != "tiktok" {
		t.Fatalf("查询参数未生效: days=%d source=%q", h.series.days, h.customers.asked)
	}
	if res.Report.Snapshot.CustomerCount != 0 {
		t.Fatalf("tiktok 来源应无客户, 实际 %d", res.Report.Snapshot.CustomerCount)
	}
}

func TestComputeEmptyFeedIsNotAnError(t *testing.T) {
	h := newHarness(testConfig())
	h.series.series = nil
	h.series.err = fmt.Errorf("wrap: %w", source.ErrEmptyFeed)

	res, err := h.svc.Compute(context.Background(), Query{At: bucket})
	if err != nil {
		t.Fatalf("空数据源不应报错: %v", err)
	}
	if !res.Totals.Spend.IsZero() || len(res.Blended) != 0 {
		t.Fatalf("空数据源应得到零值汇总: %+v", res.Totals)
	}
}

func TestRefreshPersistsAndNotifies(t *testing.T) {
	h := newHarness(testConfig())

	if err := h.svc.Refresh(context.Background(), bucket); err != nil {
		t.Fatalf("刷新失败: %v", err)
	}

	if len(h.store.snapshots) != 1 || len(h.store.advice[0]) != 3 {
		t.Fatalf("期望持久化 1 个快照和 3 条建议: %+v", h.store.advice)
	}
	if !h.store.snapshots[0].CreatedAt.Equal(bucket) {
		t.Fatalf("快照时间应为桶时间: %s", h.store.snapshots[0].CreatedAt)
	}
	if len(h.store.pruned) != 1 || !h.store.pruned[0].Equal(bucket.Add(-24*time.Hour)) {
		t.Fatalf("应按保留期清理建议: %v", h.store.pruned)
	}
	if h.store.unlocked != 1 {
		t.Fatalf("刷新结束后应释放锁, 实际 %d", h.store.unlocked)
	}
	if len(h.notifier.notes) != 1 || h.notifier.notes[0].Source != metrics.SourceAll {
		t.Fatalf("期望推送 1 次摘要: %+v", h.notifier.notes)
	}

	latest, ok := h.svc.Latest()
	if !ok || !latest.At.Equal(bucket) {
		t.Fatalf("Latest 未更新: %v %+v", ok, latest.At)
	}
}

func TestNotificationCooldown(t *testing.T) {
	h := newHarness(testConfig())
	ctx := context.Background()

	for _, at := range []time.Time{bucket, bucket.Add(30 * time.Minute), bucket.Add(2 * time.Hour)} {
		if err := h.svc.Refresh(ctx, at); err != nil {
			t.Fatal(err)
		}
	}
	if len(h.notifier.notes) != 2 {
		t.Fatalf("冷却期内相同规则应被抑制, 期望 2 次推送, 实际 %d", len(h.notifier.notes))
	}

	// a different rule set is sent immediately
	h.customers.records = h.customers.records[2:]
	if err := h.svc.Refresh(ctx, bucket.Add(150*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if len(h.notifier.notes) != 3 {
		t.Fatalf("规则变化应立即推送, 实际 %d", len(h.notifier.notes))
	}
}

func TestNotificationFailureRetriesNextBucket(t *testing.T) {
	h := newHarness(testConfig())
	h.notifier.err = errors.New("telegram down")
	ctx := context.Background()

	if err := h.svc.Refresh(ctx, bucket); err != nil {
		t.Fatalf("推送失败不应中断刷新: %v", err)
	}
	h.notifier.err = nil
	if err := h.svc.Refresh(ctx, bucket.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if len(h.notifier.notes) != 1 {
		t.Fatalf("失败后下一次应重试, 实际推送 %d", len(h.notifier.notes))
	}
}

func TestSteadyStateDoesNotNotify(t *testing.T) {
	h := newHarness(testConfig())
	h.series.series = channelSeries()[:1]
	records := make([]metrics.CustomerRecord, 0, 10)
	for _, c := range crm() {
		c.Status = metrics.StatusHighValue
		c.TotalSpent = decimal.NewNullDecimal(decimal.NewFromInt(300))
		records = append(records, c)
	}
	h.customers.records = records

	if err := h.svc.Refresh(context.Background(), bucket); err != nil {
		t.Fatal(err)
	}
	if len(h.notifier.notes) != 0 {
		t.Fatalf("稳定状态不应推送: %+v", h.notifier.notes)
	}
	if len(h.store.snapshots) != 1 {
		t.Fatal("稳定状态仍应持久化快照")
	}
}

func TestRefreshSkipsWhenLockHeld(t *testing.T) {
	h := newHarness(testConfig())
	h.store.lockBusy = true

	if err := h.svc.Refresh(context.Background(), bucket); err != nil {
		t.Fatal(err)
	}
	if len(h.store.snapshots) != 0 || len(h.notifier.notes) != 0 {
		t.Fatal("锁被占用时不应执行刷新")
	}
	if _, ok := h.svc.Latest(); ok {
		t.Fatal("锁被占用时 Latest 不应更新")
	}
}

func TestRefreshFetchError(t *testing.T) {
	h := newHarness(testConfig())
	h.series.err = errors.New("feed timeout")

	if err := h.svc.Refresh(context.Background(), bucket); err == nil {
		t.Fatal("数据源错误应返回")
	}
	if len(h.store.snapshots) != 0 {
		t.Fatal("失败时不应持久化")
	}
}

func TestAlertsDisabledWithoutStore(t *testing.T) {
	cfg := testConfig()
	cfg.Alerting.Enabled = false
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, &fakeSeries{series: channelSeries()}, &fakeCustomers{records: crm()}, nil, notifier, nil, zerolog.Nop())

	if err := svc.Refresh(context.Background(), bucket); err != nil {
		t.Fatal(err)
	}
	if len(notifier.notes) != 0 {
		t.Fatal("告警关闭时不应推送")
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("未配置调度器时 Run 应报错")
	}
}
