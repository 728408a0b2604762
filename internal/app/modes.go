package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ftarb/internal/server"
	"github.com/alanyoungcy/ftarb/internal/server/handler"
)

// OnceMode runs a single snapshot, scan or full cycle.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies, mode string) error {
	a.logger.InfoContext(ctx, "starting one-shot run", slog.String("mode", mode))
	if err := deps.Orchestrator.RunOnce(ctx, mode); err != nil {
		return fmt.Errorf("app: %s: %w", mode, err)
	}
	return nil
}

// WatchMode runs a full cycle every scan interval until ctx is cancelled. If
// the server is enabled the read API runs alongside and can request an
// immediate cycle.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.Duration("interval", a.cfg.Scan.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)

	var trigger chan struct{}
	if deps.Hub != nil {
		trigger = make(chan struct{}, 1)
		a.startHTTPServer(ctx, g, deps, trigger)
	}

	g.Go(func() error {
		return deps.Orchestrator.RunLoop(ctx, a.cfg.Scan.Interval.Duration, trigger)
	})

	return g.Wait()
}

// ServerMode serves the read API only. Results come from the cache, the
// output directory and scan history written by other instances.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to g. The
// server is shut down gracefully when ctx is cancelled. trigger is optional;
// without it the trigger endpoint answers 503.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, trigger chan<- struct{}) {
	latest := make([]handler.LatestSource, 0, 2)
	if deps.ScanCache != nil {
		latest = append(latest, deps.ScanCache)
	}
	latest = append(latest, handler.LatestFunc(deps.Snapshots.LatestScan))

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: &handler.StatusHandler{
			Mode:      a.cfg.Mode,
			Method:    a.cfg.Scan.Method,
			Threshold: a.cfg.Scan.Threshold,
			StartedAt: time.Now().UTC(),
		},
		Scans:    handler.NewScanHandler(latest, deps.ScanStore, a.logger),
		Pipeline: handler.NewPipelineHandler(trigger, a.logger),
		Metrics:  deps.Metrics.Handler(),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.APILimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.Hub, a.logger)

	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
