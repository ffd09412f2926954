// Package main provides the entrypoint for the RouteTrack API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/actor"
	"github.com/routetrack/routetrack/internal/api"
	"github.com/routetrack/routetrack/internal/api/middleware"
	"github.com/routetrack/routetrack/internal/database"
	"github.com/routetrack/routetrack/internal/directions"
	directionsors "github.com/routetrack/routetrack/internal/directions/ors"
	"github.com/routetrack/routetrack/internal/eta"
	"github.com/routetrack/routetrack/internal/geocode"
	geocodeors "github.com/routetrack/routetrack/internal/geocode/ors"
	"github.com/routetrack/routetrack/internal/orchestrator"
	"github.com/routetrack/routetrack/internal/position/fleettrack"
	"github.com/routetrack/routetrack/internal/progress"
	"github.com/routetrack/routetrack/internal/provider/resilience"
	"github.com/routetrack/routetrack/internal/run"
	"github.com/routetrack/routetrack/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "routetrack-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting RouteTrack API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Provider health registry shared by all outbound clients
	registry := resilience.NewRegistry()

	// Geocoding: ORS client behind a memoizing service with a shared cache
	geocodeService := geocode.NewService(geocode.ServiceConfig{
		Provider: geocodeors.NewClient(geocodeors.ClientConfig{
			APIKey:      os.Getenv("ORS_API_KEY"),
			BaseURL:     os.Getenv("ORS_BASE_URL"),
			CountryCode: "GB",
			Registry:    registry,
			Logger:      log,
		}),
		Shared: geocode.NewPostgresCache(pool),
		Logger: log,
	})

	// Directions: ORS client behind the normalizing service
	directionsService := directions.NewService(directions.ServiceConfig{
		Provider: directionsors.NewClient(directionsors.ClientConfig{
			APIKey:   os.Getenv("ORS_API_KEY"),
			BaseURL:  os.Getenv("ORS_BASE_URL"),
			Registry: registry,
			Logger:   log,
		}),
		Logger: log,
	})

	// Vehicle positions
	positionClient := fleettrack.NewClient(fleettrack.ClientConfig{
		APIKey:   os.Getenv("FLEETTRACK_API_KEY"),
		BaseURL:  os.Getenv("FLEETTRACK_BASE_URL"),
		Registry: registry,
		Logger:   log,
	})

	// Progress tracking
	runRepo := run.NewPostgresRepository(pool)
	store := progress.NewStore(progress.StoreConfig{
		Repository: progress.NewPostgresRepository(pool, log),
		Logger:     log,
	})
	tracker := progress.NewTracker(progress.TrackerConfig{})
	chainBuilder := eta.NewBuilder(eta.BuilderConfig{
		Resolver: directionsService,
		Logger:   log,
	})

	// One orchestrator per observed run, sharing the adapters
	factory := func(runID string) *orchestrator.Orchestrator {
		return orchestrator.New(orchestrator.Config{
			RunID:     runID,
			Runs:      runRepo,
			Positions: positionClient,
			Geocoder:  geocodeService,
			Chains:    chainBuilder,
			Tracker:   tracker,
			Store:     store,
			Logger:    log,
		})
	}

	scheduler := orchestrator.NewScheduler(orchestrator.SchedulerConfig{
		Factory: factory,
		Logger:  log,
	})
	defer scheduler.Close()
	log.Info().Msg("run scheduler initialized")

	// Actor token service (get signing key from environment)
	signingKey := os.Getenv("JWT_SIGNING_KEY")
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	actorService := actor.NewService(actor.Config{
		SigningKey: signingKey,
	})

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		ActorService: actorService,
		Scheduler:    scheduler,
		DB:           pool,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	// Flush any debounced progress writes before exit.
	if err := store.FlushAll(ctx); err != nil {
		log.Error().Err(err).Msg("failed to flush pending progress")
	}

	log.Info().Msg("server stopped")
}
