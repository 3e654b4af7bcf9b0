// Package web provides the HTTP API of the picking service.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikhailFrushkin/Lenanad-site/internal/config"
	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
	"github.com/MikhailFrushkin/Lenanad-site/internal/web/middleware"
)

// Pinger reports storage reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server of the picking service.
type Server struct {
	service  *core.Service
	cfg      *config.Config
	db       Pinger
	gatherer prometheus.Gatherer
	router   *chi.Mux
	server   *http.Server

	limiters []*middleware.RateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithPinger enables the storage check of /healthz.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.db = p }
}

// WithGatherer sets the registry served on the metrics path. Without it the
// default Prometheus registry is served.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a Server and its routes.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service:  service,
		cfg:      cfg,
		gatherer: prometheus.DefaultGatherer,
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(middleware.SecurityHeaders)
}

// rateLimit returns a per-IP limiter middleware, or a pass-through when rate
// limiting is disabled.
func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	rl := middleware.NewRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl.Handler
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/particles", func(r chi.Router) {
		// Ingestion is bounded by the service's own timeout and limiter.
		r.With(s.rateLimit(s.cfg.Rate.IngestLimit)).
			Post("/partially_picked_assemblies/", s.handleIngest)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute))
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/partially_picked_list/", s.handleListAssemblies)
			r.Get("/today_stats/", s.handleTodayStats)
			r.Get("/assembly/{id}/", s.handleGetAssembly)
			r.Post("/assembly/{id}/black_list", s.handleSetBlackList)
			r.Delete("/products/{id}/", s.handleDeleteProduct)
			r.Delete("/clear_old_data/", s.handleClearOldData)
			r.Get("/batches/", s.handleListBatches)
			r.Get("/ingest_status/", s.handleIngestStatus)
		})
	})
}

// Start listens on the configured address. It returns nil after Shutdown.
// ctx bounds background housekeeping only; in-flight requests are drained
// by Shutdown.
func (s *Server) Start(ctx context.Context) error {
	for _, rl := range s.limiters {
		go rl.RunCleanup(ctx)
	}

	slog.Info("server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
