package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/trader-ops/internal/alerts"
	"github.com/aristath/trader-ops/internal/history"
	"github.com/aristath/trader-ops/internal/quality"
	"github.com/aristath/trader-ops/internal/scheduler"
	"github.com/aristath/trader-ops/internal/triggers"
)

// Config holds server configuration
type Config struct {
	Port       int
	Log        zerolog.Logger
	DevMode    bool
	Registry   *scheduler.Registry
	Dispatcher *scheduler.Dispatcher
	Recorder   *history.Recorder
	Quality    *quality.Repository
	Digest     *quality.DigestQueue
	Baselines  *triggers.BaselineRepository
	Alerts     *alerts.Manager
}

// Server is the read-only observability surface for the dashboard plus
// the digest flush endpoint for the notification collaborator.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	registry   *scheduler.Registry
	dispatcher *scheduler.Dispatcher
	recorder   *history.Recorder
	quality    *quality.Repository
	digest     *quality.DigestQueue
	baselines  *triggers.BaselineRepository
	alerts     *alerts.Manager
	startedAt  time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		registry:   cfg.Registry,
		dispatcher: cfg.Dispatcher,
		recorder:   cfg.Recorder,
		quality:    cfg.Quality,
		digest:     cfg.Digest,
		baselines:  cfg.Baselines,
		alerts:     cfg.Alerts,
		startedAt:  time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/{id}/run", s.handleRunJob)
			r.Get("/{id}/executions", s.handleJobExecutions)
		})

		r.Get("/executions", s.handleExecutions)
		r.Get("/streaks", s.handleStreaks)
		r.Get("/baselines", s.handleBaselines)
		r.Get("/alerts", s.handleAlerts)

		r.Route("/quality", func(r chi.Router) {
			r.Get("/results", s.handleQualityResults)
			r.Get("/issues", s.handleQualityIssues)
			r.Get("/rollups", s.handleQualityRollups)
		})

		r.Post("/digest/flush", s.handleDigestFlush)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs each request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
