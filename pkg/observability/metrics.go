package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Ingestion metrics
	SubmissionsTotal          *prometheus.CounterVec
	InstallationsTotal        prometheus.Counter
	InstallationsSkippedTotal prometheus.Counter
	IdentitiesCreatedTotal    prometheus.Counter
	IdentityRacesTotal        prometheus.Counter
	ArchiveUploadsTotal       *prometheus.CounterVec
	RateLimitedTotal          *prometheus.CounterVec

	// Aggregation metrics
	AggregationDuration    *prometheus.HistogramVec
	AggregationErrorsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge

	// Catalog metrics
	CatalogPortsTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portstats_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portstats_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portstats_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portstats_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		// Ingestion metrics
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portstats_submissions_total",
				Help: "Total number of usage submissions by outcome",
			},
			[]string{"status"},
		),
		InstallationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portstats_installations_total",
				Help: "Total number of installation facts recorded",
			},
		),
		InstallationsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portstats_installations_skipped_total",
				Help: "Total number of malformed active port entries skipped",
			},
		),
		IdentitiesCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portstats_identities_created_total",
				Help: "Total number of new client identities",
			},
		),
		IdentityRacesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portstats_identity_races_total",
				Help: "Total number of concurrent identity creations resolved by re-reading",
			},
		),
		ArchiveUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portstats_archive_uploads_total",
				Help: "Total number of raw submission archive uploads",
			},
			[]string{"status"},
		),

		// Aggregation metrics
		AggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portstats_aggregation_duration_seconds",
				Help:    "Facet aggregation duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"facet", "scope"},
		),
		AggregationErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portstats_aggregation_errors_total",
				Help: "Total number of failed facet aggregations",
			},
			[]string{"facet", "scope"},
		),

		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portstats_rate_limited_total",
				Help: "Total number of rate limiter interventions by outcome",
			},
			[]string{"outcome"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portstats_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portstats_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"tier"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portstats_db_connections_active",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portstats_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portstats_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),

		CatalogPortsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portstats_catalog_ports_total",
				Help: "Number of ports in the catalog",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.SubmissionsTotal,
		m.InstallationsTotal,
		m.InstallationsSkippedTotal,
		m.IdentitiesCreatedTotal,
		m.IdentityRacesTotal,
		m.ArchiveUploadsTotal,
		m.RateLimitedTotal,
		m.AggregationDuration,
		m.AggregationErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.CatalogPortsTotal,
	)

	return m
}

// ObserveAggregation records one facet evaluation.
func (m *Metrics) ObserveAggregation(facet, scope string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.AggregationDuration.WithLabelValues(facet, scope).Observe(duration.Seconds())
	if err != nil {
		m.AggregationErrorsTotal.WithLabelValues(facet, scope).Inc()
	}
}

// RecordSubmission records the outcome of one ingestion attempt.
func (m *Metrics) RecordSubmission(status string, installations, skipped int) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(status).Inc()
	m.InstallationsTotal.Add(float64(installations))
	m.InstallationsSkippedTotal.Add(float64(skipped))
}

// RecordRateLimit records a limiter decision: "rejected", or "failed_open"
// when the limiter backend errored and the request was let through.
func (m *Metrics) RecordRateLimit(outcome string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(outcome).Inc()
}

// RecordCache records a cache lookup result for a tier ("l1" or "l2").
func (m *Metrics) RecordCache(tier string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(tier).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

// UpdateDBStats copies connection pool statistics into the database gauges.
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the matched mux route template so that port names
// in paths do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// It is installed with mux.Router.Use so the matched route is available.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeLabel(r)

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, route).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler returns the /metrics endpoint handler for registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
