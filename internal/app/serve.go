package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fromlifetolines/lumina-ados/internal/httpapi"
	"github.com/fromlifetolines/lumina-ados/internal/scheduler"
	"github.com/fromlifetolines/lumina-ados/internal/storage"
	"github.com/fromlifetolines/lumina-ados/internal/telemetry"
)

// Serve runs the HTTP API until interrupted. With opts.Scheduler the refresh
// loop runs in the same process.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; scenarios and history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var sched *scheduler.Scheduler
	if opts.Scheduler {
		if sched, err = a.newScheduler(); err != nil {
			return err
		}
	}

	collector := telemetry.New()
	svc, err := a.buildService(store, sched, collector)
	if err != nil {
		return err
	}
	model, err := a.projectionModel("")
	if err != nil {
		return err
	}

	routerOpts := httpapi.Options{
		KPIs:      svc,
		Platforms: a.platformConfigs(),
		Model:     model,
		Collector: collector,
		Logger:    a.Logger,
	}
	if store != nil {
		routerOpts.Scenarios = store
		routerOpts.History = store
	}

	addr := opts.Addr
	if addr == "" {
		addr = a.Config.Server.Addr
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(routerOpts),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info().Str("addr", addr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if sched != nil {
		g.Go(func() error {
			if err := svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("http api terminated with error")
		return err
	}
	a.Logger.Info().Msg("http api stopped")
	return nil
}

var _ httpapi.AdviceHistory = (*storage.Store)(nil)
