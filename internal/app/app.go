package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fromlifetolines/lumina-ados/internal/alerting"
	"github.com/fromlifetolines/lumina-ados/internal/config"
	"github.com/fromlifetolines/lumina-ados/internal/currency"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
	"github.com/fromlifetolines/lumina-ados/internal/projection"
	"github.com/fromlifetolines/lumina-ados/internal/scheduler"
	"github.com/fromlifetolines/lumina-ados/internal/service"
	"github.com/fromlifetolines/lumina-ados/internal/source"
	"github.com/fromlifetolines/lumina-ados/internal/storage"
	"github.com/fromlifetolines/lumina-ados/internal/telemetry"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives tables and reports. Defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// platformConfigs returns the projection baselines of every paid channel.
func (a *App) platformConfigs() map[string]projection.PlatformConfig {
	out := make(map[string]projection.PlatformConfig, len(a.Config.Channels))
	for _, ch := range a.Config.Channels {
		if ch.Organic {
			continue
		}
		name := ch.DisplayName
		if name == "" {
			name = ch.ID
		}
		out[ch.ID] = projection.PlatformConfig{
			ID:             ch.ID,
			DisplayName:    name,
			BaselineRoas:   decimal.NewFromFloat(ch.BaselineRoas),
			BaselineBudget: decimal.NewFromFloat(ch.BaselineBudget),
			ColorHint:      ch.ColorHint,
		}
	}
	return out
}

func (a *App) profiles() []source.Profile {
	out := make([]source.Profile, 0, len(a.Config.Channels))
	for _, ch := range a.Config.Channels {
		out = append(out, source.Profile{
			Channel:    ch.ID,
			DailySpend: ch.DailySpend,
			Roas:       ch.Roas,
			Organic:    ch.Organic,
		})
	}
	return out
}

func (a *App) projectionModel(name string) (projection.Model, error) {
	if name == "" {
		name = a.Config.Projection.Model
	}
	sat, err := projection.ModelByName(name)
	if err != nil {
		return projection.Model{}, err
	}
	return projection.Model{Saturation: sat, Strict: a.Config.Projection.Strict}, nil
}

func (a *App) formatter() (*currency.Formatter, error) {
	return currency.NewFormatter(a.Config.Currency.Code)
}

// newSource builds the configured channel series source. store is only
// consulted for the database kind.
func (a *App) newSource(store *storage.Store) (source.MetricsSource, error) {
	switch a.Config.Source.Kind {
	case config.SourceFeed:
		feed := a.Config.Source.Feed
		return source.NewFeed(source.FeedOptions{
			BaseURL:   feed.BaseURL,
			APIKey:    feed.APIKey,
			Timeout:   feed.RequestTimeout,
			UserAgent: feed.UserAgent,
		}, a.Logger), nil
	case config.SourceDatabase:
		if store == nil {
			return nil, errors.New("source.kind=database requires database.dsn")
		}
		return source.NewStoreSource(store), nil
	default:
		var opts []metrics.GeneratorOption
		if a.Config.Source.Seed != 0 {
			opts = append(opts, metrics.WithSeed(a.Config.Source.Seed))
		}
		return source.NewSynthetic(metrics.NewGenerator(opts...), a.profiles(), a.Logger), nil
	}
}

func (a *App) newCustomers(store *storage.Store) (source.CustomerSource, error) {
	if a.Config.Customers.Kind == config.CustomersDatabase {
		if store == nil {
			return nil, errors.New("customers.kind=database requires database.dsn")
		}
		return store, nil
	}
	return source.NewFileCustomers(a.Config.Customers.File, a.Logger), nil
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	if !a.Config.Alerting.Telegram.Enabled {
		return nil, nil
	}
	formatter, err := a.formatter()
	if err != nil {
		return nil, err
	}
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, formatter, a.Logger), nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// buildService wires sources, persistence, and notification into a service.
// A nil store disables persistence.
func (a *App) buildService(store *storage.Store, sched *scheduler.Scheduler, collector *telemetry.Collector) (*service.Service, error) {
	series, err := a.newSource(store)
	if err != nil {
		return nil, err
	}
	customers, err := a.newCustomers(store)
	if err != nil {
		return nil, err
	}
	notifier, err := a.newNotifier()
	if err != nil {
		return nil, err
	}

	var snapshots storage.SnapshotStore
	if store != nil {
		snapshots = store
	}
	return service.New(a.Config, sched, series, customers, snapshots, notifier, collector, a.Logger), nil
}

func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Cron:         a.Config.Scheduler.Cron,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
}

// Run executes the long-running refresh service. With once set it performs a
// single refresh immediately and returns.
func (a *App) Run(ctx context.Context, once bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}
	svc, err := a.buildService(store, sched, telemetry.New())
	if err != nil {
		return err
	}

	if once {
		bucket := time.Now().UTC().Truncate(time.Minute)
		if err := svc.Refresh(ctx, bucket); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		if latest, ok := svc.Latest(); ok {
			return a.printDashboard(latest, a.Config.Export.TopCustomers)
		}
		return nil
	}

	a.Logger.Info().Msg("starting refresh service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("refresh service stopped")
	return nil
}

// Migrate applies the SQL migrations in database.migrations_path.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn 未配置，无法执行迁移")
	}
	defer closeStore()

	n, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("applied", n).Str("dir", a.Config.Database.MigrationsPath).Msg("migrations applied")
	return nil
}

// Window selects the KPI aggregation window shared by report and export.
type Window struct {
	Source string
	Days   int
	From   *time.Time
	To     *time.Time
}

func (w Window) query() service.Query {
	return service.Query{Source: w.Source, Days: w.Days, From: w.From, To: w.To}
}

// ExportOptions hold parameters for exporting the KPI window.
type ExportOptions struct {
	Window
	PNGPath   string
	CSVPath   string
	XLSXPath  string
	MaxPoints int
}

// ReportOptions configure the report command.
type ReportOptions struct {
	Window
	Top int
}

// SimulateOptions configure a budget projection.
type SimulateOptions struct {
	Set     map[string]decimal.Decimal
	Model   string
	Apply   bool
	Name    string
	PNGPath string
}

// ForecastOptions configure the single-channel quick forecast.
type ForecastOptions struct {
	Budget decimal.Decimal
	Roas   decimal.Decimal
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Days      int
	DryRun    bool
	Customers bool
}

// ServeOptions configure the HTTP API.
type ServeOptions struct {
	Addr      string
	Scheduler bool
}
