package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/orchestrator"
)

// Sweeper evaluates runs: Run covers every active run, RunOne targets a
// single one.
type Sweeper interface {
	Run(ctx context.Context) (*orchestrator.SweepResult, error)
	RunOne(ctx context.Context, runID string) error
}

// JobConfig holds configuration for the sweep job loop.
type JobConfig struct {
	// Sweeper performs the batch evaluation (required).
	Sweeper Sweeper

	// Logger for job operations.
	Logger zerolog.Logger

	// Interval between fallback sweeps (default: 2 minutes).
	Interval time.Duration
}

// Job drives periodic sweeps. Pub/Sub messages trigger extra sweeps on
// demand; the ticker guarantees a floor cadence when messaging is quiet
// or not configured.
type Job struct {
	sweeper  Sweeper
	logger   zerolog.Logger
	interval time.Duration
}

// NewJob creates a new sweep job loop.
func NewJob(cfg JobConfig) *Job {
	interval := cfg.Interval
	if interval == 0 {
		interval = 2 * time.Minute
	}

	return &Job{
		sweeper:  cfg.Sweeper,
		logger:   cfg.Logger,
		interval: interval,
	}
}

// Start sweeps immediately and then on every interval until the context is
// cancelled. Sweep failures are logged and retried on the next interval.
func (j *Job) Start(ctx context.Context) {
	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("sweep job stopping")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// Trigger runs one sweep on demand, outside the ticker cadence.
func (j *Job) Trigger(ctx context.Context) error {
	_, err := j.sweeper.Run(ctx)
	return err
}

func (j *Job) sweep(ctx context.Context) {
	result, err := j.sweeper.Run(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("sweep failed")
		return
	}

	if result.Failed > 0 {
		j.logger.Warn().
			Int("failed", result.Failed).
			Int("successful", result.Successful).
			Msg("sweep completed with failures")
	}
}
