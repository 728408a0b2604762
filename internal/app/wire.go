package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	s3blob "github.com/alanyoungcy/ftarb/internal/blob/s3"
	"github.com/alanyoungcy/ftarb/internal/cache/redis"
	"github.com/alanyoungcy/ftarb/internal/config"
	"github.com/alanyoungcy/ftarb/internal/domain"
	"github.com/alanyoungcy/ftarb/internal/matcher"
	"github.com/alanyoungcy/ftarb/internal/metrics"
	"github.com/alanyoungcy/ftarb/internal/notify"
	"github.com/alanyoungcy/ftarb/internal/pipeline"
	"github.com/alanyoungcy/ftarb/internal/platform/fortytwo"
	"github.com/alanyoungcy/ftarb/internal/platform/polymarket"
	"github.com/alanyoungcy/ftarb/internal/report"
	"github.com/alanyoungcy/ftarb/internal/retry"
	"github.com/alanyoungcy/ftarb/internal/server/handler"
	"github.com/alanyoungcy/ftarb/internal/server/ws"
	"github.com/alanyoungcy/ftarb/internal/service"
	"github.com/alanyoungcy/ftarb/internal/snapshot"
	"github.com/alanyoungcy/ftarb/internal/store/postgres"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Upstreams
	FortyTwo *fortytwo.Client
	Gamma    *polymarket.GammaClient

	// Scan pipeline; nil in server mode.
	Matcher      *matcher.Matcher
	Scanner      *service.ScanService
	Scraper      *pipeline.MarketScraper
	Orchestrator *pipeline.Orchestrator

	Snapshots *snapshot.Store
	Reporter  *report.Reporter

	// Caches
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	ScanCache   domain.ScanCache
	// UpstreamLimiter paces GraphQL requests; APILimiter caps read API
	// clients. Each is nil when Redis or its rate_limit is off.
	UpstreamLimiter domain.RateLimiter
	APILimiter      domain.RateLimiter

	// Stores
	ScanStore  domain.ScanStore
	AuditStore domain.AuditStore

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Hub is set when the read API runs.
	Hub *ws.Hub
	// Checks are the dependency pings served by the health endpoint.
	Checks map[string]handler.Pinger
}

// needsServer reports whether the read API runs in this configuration.
func needsServer(cfg *config.Config) bool {
	return cfg.Mode == "server" || (cfg.Mode == "watch" && cfg.Server.Enabled)
}

// needsPipeline reports whether the mode fetches and scans markets.
func needsPipeline(mode string) bool {
	return mode != "server"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Pinger),
	}

	// --- Redis (locks, latest-result cache, rate limiting, fan-out) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.ScanCache = redis.NewScanCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.FortyTwo.RateLimit > 0 {
			deps.UpstreamLimiter = redis.NewRateLimiter(redisClient, cfg.FortyTwo.RateLimit, cfg.FortyTwo.RateWindow.Duration)
		}
		if cfg.Server.RateLimit > 0 {
			deps.APILimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		}
		deps.Checks["redis"] = redisClient
	}

	// --- PostgreSQL (scan history and audit log) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.ScanStore = postgres.NewScanStore(pgClient.DB())
		deps.AuditStore = postgres.NewAuditStore(pgClient.DB())
		deps.Checks["postgres"] = pgClient
	}

	// --- S3 (snapshot mirror and remote fallback) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = handler.PingFunc(s3Client.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, deps.Metrics, logger)

	deps.Snapshots = snapshot.NewStore(snapshot.StoreConfig{
		Fs:     afero.NewOsFs(),
		Dir:    cfg.Snapshot.Dir,
		Mirror: deps.BlobWriter,
		Remote: deps.BlobReader,
		Prefix: cfg.S3.Prefix,
	}, logger)

	// --- Live API hub ---
	if needsServer(cfg) {
		hubCfg := ws.Config{Mode: cfg.Mode, StartedAt: time.Now()}
		if deps.SignalBus != nil {
			hubCfg.Channel = report.ScanChannel
		}
		deps.Hub = ws.NewHub(deps.SignalBus, hubCfg, logger)
	}

	sinks := report.Sinks{
		Artifacts: deps.Snapshots,
		Cache:     deps.ScanCache,
		Store:     deps.ScanStore,
		Audit:     deps.AuditStore,
		Bus:       deps.SignalBus,
		Notifier:  deps.Notifier,
	}
	// With a bus the hub relays what the reporter publishes; broadcasting
	// directly as well would deliver every result twice.
	if deps.Hub != nil && deps.SignalBus == nil {
		sinks.Hub = deps.Hub
	}
	deps.Reporter = report.NewReporter(sinks, logger)

	if !needsPipeline(cfg.Mode) {
		return deps, cleanup, nil
	}

	// --- Scan pipeline ---
	table, err := matcher.LoadTable(afero.NewOsFs(), cfg.Scan.ComparablesFile)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: comparables: %w", err)
	}
	deps.Matcher = matcher.New(table, logger)

	deps.Scanner, err = service.NewScanService(service.ScanConfig{
		Threshold:    cfg.Scan.Threshold,
		MinLiquidity: cfg.Scan.MinLiquidity,
		Method:       domain.EstimationMethod(cfg.Scan.Method),
	}, deps.Matcher, deps.Metrics, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: scan service: %w", err)
	}

	deps.FortyTwo = fortytwo.NewClient(fortytwo.ClientConfig{
		Endpoint: cfg.FortyTwo.Endpoint,
		Origin:   cfg.FortyTwo.Origin,
		Timeout:  cfg.FortyTwo.Timeout.Duration,
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Duration,
			MaxDelay:    cfg.Retry.MaxDelay.Duration,
			Kind:        retry.Kind(cfg.Retry.Backoff),
		},
		Limiter: deps.UpstreamLimiter,
		Metrics: deps.Metrics,
	}, logger)

	scraperCfg := pipeline.ScraperConfig{
		PageSize:     cfg.FortyTwo.PageSize,
		Limit:        cfg.FortyTwo.Limit,
		Offset:       cfg.FortyTwo.Offset,
		RequestDelay: cfg.FortyTwo.RequestDelay.Duration,
		DetailDelay:  cfg.FortyTwo.DetailDelay.Duration,
		Strategy:     cfg.FortyTwo.Strategy,
		Fs:           afero.NewOsFs(),
	}
	orchCfg := pipeline.OrchestratorConfig{
		Output:  opts.Output,
		LockTTL: cfg.Redis.LockTTL.Duration,
	}
	// -input is a snapshot for scan and a raw market list for the modes
	// that fetch.
	switch cfg.Mode {
	case "scan":
		orchCfg.Input = opts.Input
	case "snapshot", "full":
		scraperCfg.Input = opts.Input
	}
	deps.Scraper = pipeline.NewMarketScraper(deps.FortyTwo, scraperCfg, logger)

	pdeps := pipeline.Deps{
		Scraper:   deps.Scraper,
		Snapshots: deps.Snapshots,
		Scanner:   deps.Scanner,
		Reporter:  deps.Reporter,
		Locks:     deps.LockManager,
	}
	if cfg.Polymarket.RefreshComparables {
		deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
		pdeps.Refresher = deps.Matcher
		pdeps.Events = deps.Gamma
	}
	deps.Orchestrator = pipeline.NewOrchestrator(pdeps, orchCfg, logger)

	return deps, cleanup, nil
}
