package app

import (
	"context"
	"errors"

	"github.com/fromlifetolines/lumina-ados/internal/config"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
	"github.com/fromlifetolines/lumina-ados/internal/storage"
)

// Backfill copies the configured source's trailing window into daily_metrics
// and, optionally, the customer file into the customers table.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if a.Config.Source.Kind == config.SourceDatabase {
		return errors.New("source.kind=database 不能作为回填来源")
	}
	days := a.Config.ResolveDays(opts.Days)

	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		var closeStore func()
		var err error
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法回填")
		}
		defer closeStore()
	}

	src, err := a.newSource(nil)
	if err != nil {
		return err
	}
	series, err := src.FetchSeries(ctx, days)
	if err != nil {
		return err
	}

	points := 0
	for _, s := range series {
		points += len(s.Metrics)
		t := s.Totals()
		a.Logger.Info().Str("channel", s.Channel).
			Int("days", len(s.Metrics)).
			Str("spend", t.Spend.StringFixed(2)).
			Str("revenue", t.Revenue.StringFixed(2)).
			Msg("回填渠道")
	}

	var records []metrics.CustomerRecord
	if opts.Customers {
		if a.Config.Customers.Kind == config.CustomersDatabase {
			return errors.New("customers.kind=database 不能作为回填来源")
		}
		customers, err := a.newCustomers(nil)
		if err != nil {
			return err
		}
		records, err = customers.ListCustomers(ctx, metrics.SourceAll)
		if err != nil {
			return err
		}
	}

	if store == nil {
		a.Logger.Info().Int("channels", len(series)).Int("points", points).Int("customers", len(records)).Msg("dry-run 完成")
		return nil
	}

	written, err := store.UpsertDailyMetrics(ctx, series)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		if err := store.UpsertCustomers(ctx, records); err != nil {
			return err
		}
	}

	total, err := store.CountDailyMetrics(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("count daily metrics failed")
	}
	a.Logger.Info().Int("written", written).Int("customers", len(records)).Int64("stored", total).Msg("回填完成")
	return nil
}
