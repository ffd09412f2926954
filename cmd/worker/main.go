// Package main provides the entrypoint for the RouteTrack sweep worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

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
	"github.com/routetrack/routetrack/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "routetrack-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting RouteTrack worker")

	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	cfg := worker.ConfigFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Str("database", dbConfig.Database).
		Msg("database connected")

	registry := resilience.NewRegistry()

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

	directionsService := directions.NewService(directions.ServiceConfig{
		Provider: directionsors.NewClient(directionsors.ClientConfig{
			APIKey:   os.Getenv("ORS_API_KEY"),
			BaseURL:  os.Getenv("ORS_BASE_URL"),
			Registry: registry,
			Logger:   log,
		}),
		Logger: log,
	})

	positionClient := fleettrack.NewClient(fleettrack.ClientConfig{
		APIKey:   os.Getenv("FLEETTRACK_API_KEY"),
		BaseURL:  os.Getenv("FLEETTRACK_BASE_URL"),
		Registry: registry,
		Logger:   log,
	})

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

	sweep := orchestrator.NewSweep(orchestrator.SweepConfig{
		Runs:        runRepo,
		Factory:     factory,
		Store:       store,
		Logger:      log,
		Concurrency: cfg.Concurrency,
		RunTimeout:  cfg.RunTimeout,
	})

	// Fixed-interval sweep loop
	job := worker.NewJob(worker.JobConfig{
		Sweeper:  sweep,
		Logger:   log,
		Interval: cfg.SweepInterval,
	})
	go job.Start(ctx)

	// Optional Pub/Sub trigger alongside the ticker
	if cfg.PubSubProjectID != "" && cfg.PubSubSubscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Sweeper:          sweep,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
		log.Info().
			Str("subscription", cfg.PubSubSubscription).
			Msg("pubsub sweep trigger enabled")
	}

	// Health check server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	// Flush any debounced progress writes before exit
	if err := store.FlushAll(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush progress store")
	}

	log.Info().Msg("worker stopped")
}
