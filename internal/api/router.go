// Package api provides the HTTP API for RouteTrack.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/actor"
	"github.com/routetrack/routetrack/internal/api/handler"
	"github.com/routetrack/routetrack/internal/api/middleware"
	"github.com/routetrack/routetrack/internal/orchestrator"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version      string
	BuildTime    string
	Logger       zerolog.Logger
	ServiceName  string
	Metrics      *middleware.Metrics
	ActorService *actor.Service
	Scheduler    *orchestrator.Scheduler

	// DB is pinged by the readiness and status endpoints; may be nil in tests.
	DB handler.Pinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "routetrack-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.DB, cfg.Scheduler)
	runsHandler := handler.NewRunsHandler(cfg.Scheduler, cfg.Logger)

	// Actor middleware attributes manual progress actions
	actorMiddleware := middleware.Actor(cfg.ActorService)

	// Rate limit middleware for different endpoint categories
	actionRateLimit := middleware.RateLimitByActor(middleware.ActionRateLimit)    // 10 req/min
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires an actor token
			r.With(actorMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Run tracking views (public) - polling clients
		r.Route("/runs/{runID}", func(r chi.Router) {
			r.With(standardRateLimit).Get("/progress", runsHandler.Progress)
			r.With(expensiveRateLimit).Get("/eta", runsHandler.Eta)

			// Manual progress actions (authenticated) - actor-based rate limiting
			r.Group(func(r chi.Router) {
				r.Use(actorMiddleware)
				r.Use(actionRateLimit)
				r.Post("/stops/{stopID}/complete", runsHandler.CompleteStop)
				r.Delete("/stops/{stopID}/complete", runsHandler.UndoStop)
				r.Post("/progress/reset", runsHandler.ResetProgress)
			})
		})
	})

	return r
}
