package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portstats/pkg/httputil"
	"github.com/platinummonkey/portstats/pkg/middleware"
	"github.com/platinummonkey/portstats/pkg/observability"
)

// Options configures a Server. Stats and Ingestor are required; the rest may be
// left zero.
type Options struct {
	Stats    StatsService
	Ingestor Submitter
	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Logger   logrus.FieldLogger

	// QueryTimeout bounds every request. Zero disables the deadline.
	QueryTimeout time.Duration
	// MaxBodyBytes caps submission bodies. Zero disables the limit.
	MaxBodyBytes int64
	// SubmitLimiter throttles submissions per client when set.
	SubmitLimiter middleware.Limiter
	// TrustedProxies may name the submitting client through forwarding headers.
	TrustedProxies middleware.TrustedProxies
}

// Server represents our API server
type Server struct {
	opts    Options
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	s := &Server{
		opts:   opts,
		router: mux.NewRouter(),
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware(opts.Logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
	)(s.router)
	s.handler = observability.InstrumentHandler(s.handler, "portstats")
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Not found.")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(httputil.WriteMethodNotAllowed)

	if s.opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}
	if s.opts.QueryTimeout > 0 {
		s.router.Use(httputil.TimeoutMiddleware(s.opts.QueryTimeout))
	}

	// Submission
	submit := http.Handler(http.HandlerFunc(s.submit))
	if s.opts.MaxBodyBytes > 0 {
		submit = httputil.MaxBytesMiddleware(s.opts.MaxBodyBytes)(submit)
	}
	if s.opts.SubmitLimiter != nil {
		submit = middleware.RateLimit(s.opts.SubmitLimiter, s.opts.TrustedProxies, s.opts.Metrics)(submit)
	}
	s.router.Handle("/statistics/submit/", submit).Methods(http.MethodPost)

	// Statistics
	s.router.HandleFunc("/api/v1/ports/{name}/stats/", s.portStats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/statistics/general/", s.generalStats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/statistics/system/", s.systemStats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/statistics/ports/top/", s.topPorts).Methods(http.MethodGet)

	// Operations
	if s.opts.Health != nil {
		s.router.HandleFunc("/healthz", s.opts.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/readyz", s.opts.Health.Readiness).Methods(http.MethodGet)
	}
	if s.opts.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.opts.Registry)).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
