package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portstats/pkg/async"
	"github.com/platinummonkey/portstats/pkg/cache"
	"github.com/platinummonkey/portstats/pkg/catalog"
	"github.com/platinummonkey/portstats/pkg/config"
	"github.com/platinummonkey/portstats/pkg/middleware"
	"github.com/platinummonkey/portstats/pkg/observability"
	"github.com/platinummonkey/portstats/pkg/stats"
	"github.com/platinummonkey/portstats/pkg/storage"
	"github.com/platinummonkey/portstats/pkg/storage/postgres"
)

// App holds the collaborators shared by the portstats binaries.
type App struct {
	Config   *config.Config
	Logger   logrus.FieldLogger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	DB      *sql.DB
	Dialect storage.Dialect
	// Conns is set for PostgreSQL deployments and routes aggregation reads to replicas.
	Conns *postgres.ConnectionManager
	// Redis and Archive are nil when not configured.
	Redis   *postgres.RedisClient
	Archive *postgres.S3Client

	Catalog    *catalog.Store
	Cache      *cache.TieredCache
	Aggregator *stats.Aggregator
	Ingestor   *stats.Ingestor
	Service    *stats.Service
	// Limiter is nil when submission rate limiting is disabled.
	Limiter middleware.Limiter
	// TrustedProxies may set the client address seen by Limiter.
	TrustedProxies middleware.TrustedProxies

	closers []func() error
}

// New opens storage, connects the optional cache and archive, and wires the
// statistics services. The caller must Close the result.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxyList())
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	a := &App{
		Config:         cfg,
		Logger:         logger,
		Registry:       registry,
		Metrics:        observability.NewMetrics(registry),
		TrustedProxies: proxies,
	}
	async.SetLogger(logger)

	if err := a.openDatabase(ctx); err != nil {
		return nil, err
	}

	if cfg.Storage.RedisURL != "" && cfg.Storage.CacheEnabled {
		redisClient, err := postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			// The shared cache is an optimisation; serve from L1 and the database.
			logger.WithError(err).Warn("redis unavailable, continuing without shared cache")
		} else {
			a.Redis = redisClient
			a.closers = append(a.closers, redisClient.Close)
		}
	}

	if cfg.Storage.S3Bucket != "" {
		archive, err := postgres.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to submission archive: %w", err)
		}
		a.Archive = archive
	}

	a.wireServices()
	return a, nil
}

func (a *App) openDatabase(ctx context.Context) error {
	cfg := a.Config.Storage
	if cfg.Driver != storage.DriverPostgres {
		db, dialect, err := storage.Open(ctx, cfg)
		if err != nil {
			return err
		}
		a.DB, a.Dialect = db, dialect
		a.closers = append(a.closers, db.Close)
		return nil
	}

	conns, err := postgres.NewConnectionManager(ctx, postgres.ConfigFromStorage(cfg), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := storage.Migrate(ctx, conns.Primary(), storage.Postgres); err != nil {
		conns.Close()
		return err
	}
	a.Conns = conns
	a.DB, a.Dialect = conns.Primary(), storage.Postgres
	a.closers = append(a.closers, conns.Close)
	return nil
}

func (a *App) wireServices() {
	cfg := a.Config
	opts := stats.Options{Metrics: a.Metrics, Logger: a.Logger}

	a.Catalog = catalog.NewStore(a.DB, catalog.Options{
		Metrics:  a.Metrics,
		Logger:   a.Logger,
		CacheTTL: cfg.Storage.TTL(storage.TTLCatalog, 5*time.Minute),
	})

	a.Aggregator = stats.NewAggregator(a.DB, a.Dialect, opts)
	if a.Conns != nil {
		a.Aggregator.WithReplicas(a.Conns.Reader)
	}

	a.Ingestor = stats.NewIngestor(a.DB, a.Dialect, opts)
	if a.Archive != nil {
		a.Ingestor.WithArchiver(a.Archive, cfg.Storage.S3Prefix)
	}

	var results stats.ResultCache
	if cfg.Storage.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		if cfg.Storage.L1CacheSize > 0 {
			cacheCfg.MaxEntries = cfg.Storage.L1CacheSize
		}
		var remote cache.Remote
		if a.Redis != nil {
			remote = a.Redis
		}
		a.Cache = cache.NewTieredCache(cacheCfg, remote, a.Metrics, a.Logger)
		results = a.Cache
	}

	if cfg.Server.SubmitRateLimit > 0 {
		limits := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.SubmitRateLimit,
			WindowDuration:    cfg.Server.SubmitRateWindow,
			BurstSize:         cfg.Server.SubmitRateBurst,
		}
		if a.Redis != nil {
			a.Limiter = middleware.NewDistributedRateLimiter(a.Redis.GetClient(), limits, "")
		} else {
			a.Limiter = middleware.NewRateLimiter(limits, nil)
		}
	}

	port, ecosystem, general, top := cfg.CacheTTLs()
	a.Service = stats.NewService(a.Aggregator, a.Catalog, results, stats.CacheTTLs{
		PortStats:      port,
		EcosystemStats: ecosystem,
		GeneralStats:   general,
		TopPorts:       top,
	})
}

// HealthChecker reports the database as critical and the cache, archive,
// replicas and shared rate limiter as optional.
func (a *App) HealthChecker(version string) *observability.HealthChecker {
	health := observability.NewHealthChecker(a.DB, a.redisClient()).WithVersion(version)
	if a.Archive != nil {
		health.AddCheck("archive", a.Archive.HealthCheck)
	}
	if a.Conns != nil {
		health.AddCheck("replicas", a.Conns.HealthCheck)
	}
	if shared, ok := a.Limiter.(*middleware.DistributedRateLimiter); ok {
		health.AddCheck("ratelimit", shared.HealthCheck)
	}
	return health
}

func (a *App) redisClient() *redis.Client {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.GetClient()
}

// StartBackground runs replica pruning, rate limiter cleanup and pool metrics
// until ctx is done.
func (a *App) StartBackground(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if a.Conns != nil {
		a.Conns.StartHealthCheckRoutine(ctx, interval)
	}
	if local, ok := a.Limiter.(*middleware.RateLimiter); ok {
		local.StartCleanup(ctx)
	}

	a.Metrics.UpdateDBStats(a.DB.Stats())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Metrics.UpdateDBStats(a.DB.Stats())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close releases every connection opened by New, in reverse order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
