// Package observability provides structured logging, Prometheus metrics, health checks,
// graceful shutdown and OpenTelemetry tracing for the statistics service.
//
// # Structured Logging
//
// Loggers are logrus loggers carried through the request context:
//
//	logger := observability.NewLogger(observability.InfoLevel, observability.FormatJSON, os.Stdout)
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).WithField("port", name).Info("stats served")
//
// FromContext adds the request ID and, when a span is recording, trace_id and span_id.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// Domain counters cover submissions, installation facts, skipped entries, identity
// creation races, facet aggregation latency and cache hit rates. All recording
// helpers are nil-safe so components can run without metrics in tests.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	checker.AddCheck("archive", archiver.HealthCheck)
//
// The database is critical; Redis and extra checks only degrade readiness.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
