package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portstats/pkg/api"
	"github.com/platinummonkey/portstats/pkg/app"
	"github.com/platinummonkey/portstats/pkg/async"
	"github.com/platinummonkey/portstats/pkg/catalog"
	"github.com/platinummonkey/portstats/pkg/config"
	"github.com/platinummonkey/portstats/pkg/observability"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	obs := cfg.Observability
	logger := observability.NewLogger(observability.ParseLogLevel(obs.LogLevel), obs.LogFormat, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        obs.OTelEnabled,
		Endpoint:       obs.OTelEndpoint,
		ServiceName:    obs.OTelServiceName,
		ServiceVersion: obs.OTelServiceVersion,
		Insecure:       obs.OTelInsecure,
	}, logger)
	if err != nil {
		// Tracing is optional; keep serving without it.
		logger.WithError(err).Warn("Failed to initialize OpenTelemetry")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	a.StartBackground(ctx, 0)

	if path := cfg.Catalog.PortindexPath; path != "" {
		if _, err := a.Catalog.LoadFile(ctx, path); err != nil {
			logger.WithError(err).WithField("path", path).Error("Failed to load port catalog")
		}
		if cfg.Catalog.Watch {
			watcher := catalog.NewWatcher(a.Catalog, path, cfg.Catalog.WatchDelay, logger)
			async.SafeGo(ctx, 0, "catalog watcher", watcher.Run)
		}
	}

	registry := a.Registry
	if !obs.MetricsEnabled {
		registry = nil
	}
	handler := api.NewServer(api.Options{
		Stats:          a.Service,
		Ingestor:       a.Ingestor,
		Health:         a.HealthChecker(version),
		Metrics:        a.Metrics,
		Registry:       registry,
		Logger:         logger,
		QueryTimeout:   cfg.Server.QueryTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		SubmitLimiter:  a.Limiter,
		TrustedProxies: a.TrustedProxies,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return a.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    server.Addr,
			"driver":  cfg.Storage.Driver,
			"version": version,
		}).Info("Starting portstats server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
