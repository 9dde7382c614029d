package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fromlifetolines/lumina-ados/internal/advisory"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
	"github.com/fromlifetolines/lumina-ados/internal/projection"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
)

const (
	listCustomersSQL = `SELECT
        id,
        name,
        email,
        total_spent,
        status,
        last_purchase_date,
        source,
        created_at
    FROM customers
    WHERE ($1 = '' OR source = $1)
    ORDER BY created_at, id;`

	upsertCustomerSQL = `INSERT INTO customers (
        id,
        name,
        email,
        total_spent,
        status,
        last_purchase_date,
        source,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (id) DO UPDATE
    SET
        name               = EXCLUDED.name,
        email              = EXCLUDED.email,
        total_spent        = EXCLUDED.total_spent,
        status             = EXCLUDED.status,
        last_purchase_date = EXCLUDED.last_purchase_date,
        source             = EXCLUDED.source;`

	upsertDailyMetricSQL = `INSERT INTO daily_metrics (
        channel,
        day,
        spend,
        revenue,
        impressions,
        clicks,
        conversions
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (channel, day) DO UPDATE
    SET
        spend       = EXCLUDED.spend,
        revenue     = EXCLUDED.revenue,
        impressions = EXCLUDED.impressions,
        clicks      = EXCLUDED.clicks,
        conversions = EXCLUDED.conversions,
        updated_at  = NOW();`

	listDailyMetricsSQL = `SELECT
        channel,
        day,
        spend,
        revenue,
        impressions,
        clicks,
        conversions
    FROM daily_metrics
    WHERE day >= $1
      AND day <= $2
    ORDER BY channel, day;`

	countDailyMetricsSQL = `SELECT COUNT(*) FROM daily_metrics;`

	insertScenarioSQL = `INSERT INTO budget_scenarios (
        id,
        name,
        allocations,
        model,
        total_budget,
        projected_revenue,
        projected_roas,
        revenue_lift,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`

	listRecentScenariosSQL = `SELECT
        id,
        name,
        allocations,
        model,
        total_budget,
        projected_revenue,
        projected_roas,
        revenue_lift,
        created_at
    FROM budget_scenarios
    ORDER BY created_at DESC
    LIMIT $1;`

	insertSnapshotSQL = `INSERT INTO kpi_snapshots (
        source,
        total_revenue,
        total_spend_estimate,
        customer_count,
        at_risk_count,
        average_order_value,
        churn_rate,
        blended_roas,
        cac,
        ltv_to_cac,
        revenue_growth,
        customer_growth,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    RETURNING id;`

	latestSnapshotSQL = `SELECT
        id,
        source,
        total_revenue,
        total_spend_estimate,
        customer_count,
        at_risk_count,
        average_order_value,
        churn_rate,
        blended_roas,
        cac,
        ltv_to_cac,
        revenue_growth,
        customer_growth,
        created_at
    FROM kpi_snapshots
    WHERE source = $1
    ORDER BY created_at DESC
    LIMIT 1;`

	insertAdviceSQL = `INSERT INTO advisories (
        snapshot_id,
        rule,
        category,
        title,
        message,
        action,
        impact,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	listRecentAdviceSQL = `SELECT
        id,
        snapshot_id,
        rule,
        category,
        title,
        message,
        action,
        impact,
        created_at
    FROM advisories
    ORDER BY created_at DESC, id
    LIMIT $1;`

	deleteAdviceBeforeSQL = `DELETE FROM advisories WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// CustomerStore defines CRM customer persistence.
type CustomerStore interface {
	ListCustomers(ctx context.Context, source string) ([]metrics.CustomerRecord, error)
	UpsertCustomers(ctx context.Context, records []metrics.CustomerRecord) error
}

// DailyMetricStore defines per-channel daily metric persistence.
type DailyMetricStore interface {
	UpsertDailyMetrics(ctx context.Context, series []metrics.Series) (int, error)
	ListDailyMetrics(ctx context.Context, from, to time.Time) ([]metrics.Series, error)
	CountDailyMetrics(ctx context.Context) (int64, error)
}

// ScenarioStore defines append-only scenario persistence.
type ScenarioStore interface {
	InsertScenario(ctx context.Context, scenario projection.Scenario) error
	ListRecentScenarios(ctx context.Context, limit int) ([]projection.Scenario, error)
}

// SnapshotStore defines KPI snapshot and advice auditing.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, rec SnapshotRecord, advice []advisory.Recommendation) (int64, error)
	LatestSnapshot(ctx context.Context, source string) (SnapshotRecord, error)
	ListRecentAdvice(ctx context.Context, limit int) ([]AdviceRecord, error)
	DeleteAdviceBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to every table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock dies with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListCustomers lists customers, optionally restricted to one acquisition source.
func (s *Store) ListCustomers(ctx context.Context, source string) ([]metrics.CustomerRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	source = strings.TrimSpace(source)
	if strings.EqualFold(source, metrics.SourceAll) {
		source = ""
	}

	rows, queryErr := pool.Query(ctx, listCustomersSQL, source)
	if queryErr != nil {
		return nil, fmt.Errorf("list customers: %w", queryErr)
	}
	defer rows.Close()

	records := make([]metrics.CustomerRecord, 0)
	for rows.Next() {
		rec, scanErr := scanCustomer(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// UpsertCustomers writes customers in one batch.
func (s *Store) UpsertCustomers(ctx context.Context, records []metrics.CustomerRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		var spent interface{}
		if rec.TotalSpent.Valid {
			spent = rec.TotalSpent.Decimal.String()
		}
		var lastPurchase interface{}
		if rec.LastPurchase != nil {
			lastPurchase = rec.LastPurchase.UTC()
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(upsertCustomerSQL,
			rec.ID,
			rec.Name,
			rec.Email,
			spent,
			string(rec.Status),
			lastPurchase,
			rec.Source,
			createdAt,
		)
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert customers: %w", err)
	}
	return nil
}

// UpsertDailyMetrics persists every day of every series. A re-ingested day
// replaces the stored row.
func (s *Store) UpsertDailyMetrics(ctx context.Context, series []metrics.Series) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, ser := range series {
		for _, m := range ser.Metrics {
			batch.Queue(upsertDailyMetricSQL,
				ser.Channel,
				metrics.Day(m.Date),
				m.Spend.String(),
				m.Revenue.String(),
				m.Impressions,
				m.Clicks,
				m.Conversions,
			)
		}
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upsert daily metrics: %w", err)
	}
	return batch.Len(), nil
}

// ListDailyMetrics returns one series per channel for the inclusive day window.
func (s *Store) ListDailyMetrics(ctx context.Context, from, to time.Time) ([]metrics.Series, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailyMetricsSQL, metrics.Day(from), metrics.Day(to))
	if queryErr != nil {
		return nil, fmt.Errorf("list daily metrics: %w", queryErr)
	}
	defer rows.Close()

	byChannel := make(map[string][]metrics.DailyMetric)
	for rows.Next() {
		var (
			channel              string
			day                  time.Time
			spendStr, revenueStr string
			impressions, clicks  int64
			conversions          int64
		)
		if err := rows.Scan(&channel, &day, &spendStr, &revenueStr, &impressions, &clicks, &conversions); err != nil {
			return nil, err
		}
		spend, err := decimal.NewFromString(spendStr)
		if err != nil {
			return nil, fmt.Errorf("parse spend: %w", err)
		}
		revenue, err := decimal.NewFromString(revenueStr)
		if err != nil {
			return nil, fmt.Errorf("parse revenue: %w", err)
		}
		byChannel[channel] = append(byChannel[channel], metrics.NewDailyMetric(day, spend, revenue, impressions, clicks, conversions))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	channels := make([]string, 0, len(byChannel))
	for ch := range byChannel {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	out := make([]metrics.Series, 0, len(channels))
	for _, ch := range channels {
		out = append(out, metrics.Series{Channel: ch, Metrics: byChannel[ch]})
	}
	return out, nil
}

// CountDailyMetrics counts stored channel-days.
func (s *Store) CountDailyMetrics(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countDailyMetricsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count daily metrics: %w", scanErr)
	}
	return count, nil
}

// InsertScenario appends an applied scenario.
func (s *Store) InsertScenario(ctx context.Context, scenario projection.Scenario) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	alloc, err := json.Marshal(scenario.Allocation)
	if err != nil {
		return fmt.Errorf("marshal allocation: %w", err)
	}

	_, execErr := pool.Exec(ctx, insertScenarioSQL,
		scenario.ID.String(),
		scenario.Name,
		alloc,
		scenario.Model,
		scenario.TotalBudget.String(),
		scenario.ProjectedRevenue.String(),
		scenario.ProjectedRoas.String(),
		scenario.RevenueLift.String(),
		scenario.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert scenario: %w", execErr)
	}
	return nil
}

// ListRecentScenarios lists the newest scenarios first.
func (s *Store) ListRecentScenarios(ctx context.Context, limit int) ([]projection.Scenario, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentScenariosSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent scenarios: %w", queryErr)
	}
	defer rows.Close()

	scenarios := make([]projection.Scenario, 0, limit)
	for rows.Next() {
		sc, scanErr := scanScenario(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		scenarios = append(scenarios, sc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return scenarios, nil
}

// InsertSnapshot persists a snapshot and the advice derived from it in one
// transaction, returning the snapshot id.
func (s *Store) InsertSnapshot(ctx context.Context, rec SnapshotRecord, advice []advisory.Recommendation) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	txErr := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		snap := rec.Snapshot
		if err := tx.QueryRow(ctx, insertSnapshotSQL,
			rec.Source,
			snap.TotalRevenue.String(),
			snap.TotalSpendEstimate.String(),
			snap.CustomerCount,
			snap.AtRiskCount,
			snap.AverageOrderValue.String(),
			snap.ChurnRate.String(),
			snap.BlendedRoas.String(),
			snap.CAC.String(),
			snap.LtvToCac.String(),
			rec.Growth.RevenueGrowth.String(),
			rec.Growth.CustomerGrowth.String(),
			createdAt,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}

		for _, r := range advice {
			if _, err := tx.Exec(ctx, insertAdviceSQL,
				id,
				string(r.Rule),
				string(r.Category),
				r.Title,
				r.Message,
				r.Action,
				r.Impact,
				createdAt,
			); err != nil {
				return fmt.Errorf("insert advice: %w", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return id, nil
}

// LatestSnapshot returns the newest snapshot for source, or ErrNotFound.
func (s *Store) LatestSnapshot(ctx context.Context, source string) (SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return SnapshotRecord{}, err
	}

	var (
		rec  SnapshotRecord
		nums [9]string
	)
	if scanErr := pool.QueryRow(ctx, latestSnapshotSQL, source).Scan(
		&rec.ID,
		&rec.Source,
		&nums[0],
		&nums[1],
		&rec.Snapshot.CustomerCount,
		&rec.Snapshot.AtRiskCount,
		&nums[2],
		&nums[3],
		&nums[4],
		&nums[5],
		&nums[6],
		&nums[7],
		&nums[8],
		&rec.CreatedAt,
	); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return SnapshotRecord{}, ErrNotFound
		}
		return SnapshotRecord{}, fmt.Errorf("latest snapshot: %w", scanErr)
	}

	targets := []*decimal.Decimal{
		&rec.Snapshot.TotalRevenue,
		&rec.Snapshot.TotalSpendEstimate,
		&rec.Snapshot.AverageOrderValue,
		&rec.Snapshot.ChurnRate,
		&rec.Snapshot.BlendedRoas,
		&rec.Snapshot.CAC,
		&rec.Snapshot.LtvToCac,
		&rec.Growth.RevenueGrowth,
		&rec.Growth.CustomerGrowth,
	}
	for i, target := range targets {
		v, convErr := decimal.NewFromString(nums[i])
		if convErr != nil {
			return SnapshotRecord{}, fmt.Errorf("parse snapshot column %d: %w", i, convErr)
		}
		*target = v
	}
	return rec, nil
}

// ListRecentAdvice lists most recent recommendations.
func (s *Store) ListRecentAdvice(ctx context.Context, limit int) ([]AdviceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAdviceSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent advice: %w", queryErr)
	}
	defer rows.Close()

	out := make([]AdviceRecord, 0, limit)
	for rows.Next() {
		var (
			rec            AdviceRecord
			rule, category string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.SnapshotID,
			&rule,
			&category,
			&rec.Recommendation.Title,
			&rec.Recommendation.Message,
			&rec.Recommendation.Action,
			&rec.Recommendation.Impact,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Recommendation.Rule = advisory.RuleID(rule)
		rec.Recommendation.Category = advisory.Category(category)
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DeleteAdviceBefore deletes historical recommendations.
func (s *Store) DeleteAdviceBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAdviceBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete advice before: %w", execErr)
	}
	return nil
}

func scanCustomer(rows pgx.Rows) (metrics.CustomerRecord, error) {
	var (
		rec          metrics.CustomerRecord
		spent        sql.NullString
		status       string
		lastPurchase sql.NullTime
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Email,
		&spent,
		&status,
		&lastPurchase,
		&rec.Source,
		&rec.CreatedAt,
	); err != nil {
		return metrics.CustomerRecord{}, err
	}

	if spent.Valid {
		v, err := decimal.NewFromString(spent.String)
		if err != nil {
			return metrics.CustomerRecord{}, fmt.Errorf("parse total spent: %w", err)
		}
		rec.TotalSpent = decimal.NewNullDecimal(v)
	}
	if lastPurchase.Valid {
		t := lastPurchase.Time.UTC()
		rec.LastPurchase = &t
	}
	rec.Status = metrics.ParseStatus(status)
	return rec, nil
}

func scanScenario(rows pgx.Rows) (projection.Scenario, error) {
	var (
		sc                             projection.Scenario
		idStr                          string
		alloc                          []byte
		budgetStr, revenueStr, roasStr string
		liftStr                        string
	)

	if err := rows.Scan(
		&idStr,
		&sc.Name,
		&alloc,
		&sc.Model,
		&budgetStr,
		&revenueStr,
		&roasStr,
		&liftStr,
		&sc.CreatedAt,
	); err != nil {
		return projection.Scenario{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return projection.Scenario{}, fmt.Errorf("parse scenario id: %w", err)
	}
	sc.ID = id

	if err := json.Unmarshal(alloc, &sc.Allocation); err != nil {
		return projection.Scenario{}, fmt.Errorf("decode allocation: %w", err)
	}

	for _, f := range []struct {
		raw    string
		target *decimal.Decimal
		name   string
	}{
		{budgetStr, &sc.TotalBudget, "total budget"},
		{revenueStr, &sc.ProjectedRevenue, "projected revenue"},
		{roasStr, &sc.ProjectedRoas, "projected roas"},
		{liftStr, &sc.RevenueLift, "revenue lift"},
	} {
		v, convErr := decimal.NewFromString(f.raw)
		if convErr != nil {
			return projection.Scenario{}, fmt.Errorf("parse %s: %w", f.name, convErr)
		}
		*f.target = v
	}
	return sc, nil
}

var (
	_ CustomerStore    = (*Store)(nil)
	_ DailyMetricStore = (*Store)(nil)
	_ ScenarioStore    = (*Store)(nil)
	_ SnapshotStore    = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)
