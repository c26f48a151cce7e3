// Package httpserver exposes the scan service over HTTP.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"aiscout/internal/engine"
)

// Metrics receives per-request observations.
type Metrics interface {
	ObserveHTTP(method, route string, code int, elapsed time.Duration)
	QueueRejected()
}

type Router struct {
	svc         *engine.Service
	logger      *slog.Logger
	metrics     Metrics
	metricsView http.Handler
	corsOrigins []string
	checks      map[string]HealthChecker
	validate    *validator.Validate
}

type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records request metrics and serves h on /metrics.
func WithMetrics(m Metrics, h http.Handler) Option {
	return func(r *Router) {
		r.metrics = m
		r.metricsView = h
	}
}

// WithCORS allows the given browser origins.
func WithCORS(origins []string) Option {
	return func(r *Router) { r.corsOrigins = origins }
}

// WithHealthCheck adds a named dependency check to /health.
func WithHealthCheck(name string, c HealthChecker) Option {
	return func(r *Router) {
		if c != nil {
			r.checks[name] = c
		}
	}
}

func NewRouter(svc *engine.Service, opts ...Option) http.Handler {
	r := &Router{
		svc:      svc,
		logger:   slog.Default(),
		checks:   map[string]HealthChecker{},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, apply := range opts {
		if apply != nil {
			apply(r)
		}
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(accessLog(r.logger, r.metrics))
	if len(r.corsOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: r.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", healthHandler(r.checks))
	if r.metricsView != nil {
		mux.Method(http.MethodGet, "/metrics", r.metricsView)
	}

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Post("/scan-configs", r.wrap(r.handleCreateConfig))
		rt.Get("/scan-configs", r.wrap(r.handleListConfigs))
		rt.Get("/scan-configs/{id}", r.wrap(r.handleGetConfig))
		rt.Post("/scan-configs/{id}/start", r.wrap(r.handleStart))
		rt.Get("/scan-results", r.wrap(r.handleListResults))
		rt.Post("/scan-results/{id}/track", r.wrap(r.handleTrack))
		rt.Get("/scan-summaries", r.wrap(r.handleListSummaries))
	})

	return mux
}
