// Package worker provides the background sweep job that re-evaluates every
// active run, covering runs nobody is watching live.
package worker

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the sweep worker.
type Config struct {
	// SweepInterval is how often the fallback ticker triggers a sweep when no
	// Pub/Sub message arrives. Default: 2 minutes.
	SweepInterval time.Duration

	// Concurrency is the number of runs evaluated in parallel. Default: 4.
	Concurrency int

	// RunTimeout bounds one run's evaluation within a sweep. Default: 30 seconds.
	RunTimeout time.Duration

	// PubSubProjectID is the GCP project for the trigger subscription.
	// Empty disables Pub/Sub and leaves only the interval ticker.
	PubSubProjectID string

	// PubSubSubscription is the subscription name for sweep trigger messages.
	PubSubSubscription string
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		SweepInterval: 2 * time.Minute,
		Concurrency:   4,
		RunTimeout:    30 * time.Second,
	}
}

// ConfigFromEnv builds the worker configuration from environment variables,
// falling back to defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SweepInterval = d
		}
	}
	if v := os.Getenv("SWEEP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("SWEEP_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RunTimeout = d
		}
	}

	cfg.PubSubProjectID = os.Getenv("PUBSUB_PROJECT_ID")
	cfg.PubSubSubscription = os.Getenv("PUBSUB_SUBSCRIPTION")

	return cfg
}
