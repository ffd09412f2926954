package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/progress"
	"github.com/routetrack/routetrack/internal/run"
)

// RunLister lists the runs the backend sweep re-evaluates.
type RunLister interface {
	ListActive(ctx context.Context) ([]*run.Run, error)
}

// SweepConfig holds configuration for the batch sweep.
type SweepConfig struct {
	// Runs lists active runs (required).
	Runs RunLister

	// Factory builds per-run orchestrators (required).
	Factory Factory

	// Store is flushed after each run so sweep writes are never left sitting
	// in the debounce window of a short-lived worker invocation.
	Store *progress.Store

	// Logger for sweep operations.
	Logger zerolog.Logger

	// Concurrency is the number of runs evaluated in parallel (default: 4).
	Concurrency int

	// RunTimeout bounds one run's evaluation; a run that cannot be reached
	// within it is retried on the next sweep (default: 30 seconds).
	RunTimeout time.Duration
}

// Sweep batch-evaluates every active run, covering runs nobody is watching
// live so geofence completions still land while the browser is closed.
type Sweep struct {
	runs        RunLister
	factory     Factory
	store       *progress.Store
	logger      zerolog.Logger
	concurrency int
	runTimeout  time.Duration

	metrics *SweepMetrics
}

// SweepMetrics tracks sweep statistics.
type SweepMetrics struct {
	mu sync.RWMutex

	TotalSweeps   int64
	RunsEvaluated int64
	RunsFailed    int64
	LastSweepAt   time.Time
	LastDuration  time.Duration
	TotalDuration time.Duration
}

// NewSweep creates a new batch sweep.
func NewSweep(cfg SweepConfig) *Sweep {
	concurrency := cfg.Concurrency
	if concurrency == 0 {
		concurrency = 4
	}

	runTimeout := cfg.RunTimeout
	if runTimeout == 0 {
		runTimeout = 30 * time.Second
	}

	return &Sweep{
		runs:        cfg.Runs,
		factory:     cfg.Factory,
		store:       cfg.Store,
		logger:      cfg.Logger,
		concurrency: concurrency,
		runTimeout:  runTimeout,
		metrics:     &SweepMetrics{},
	}
}

// SweepResult contains the outcome of one sweep invocation.
type SweepResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	TotalRuns  int
	Successful int
	Failed     int
	Errors     []SweepError
}

// SweepError records one failed run evaluation.
type SweepError struct {
	RunID string
	Error string
}

// Run evaluates every active run once.
func (s *Sweep) Run(ctx context.Context) (*SweepResult, error) {
	startTime := time.Now()

	active, err := s.runs.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{
		StartTime: startTime,
		TotalRuns: len(active),
	}

	s.logger.Info().
		Int("total_runs", len(active)).
		Int("concurrency", s.concurrency).
		Msg("starting run sweep")

	runsChan := make(chan *run.Run, len(active))
	resultsChan := make(chan SweepError, len(active))

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.sweepWorker(ctx, runsChan, resultsChan)
		}()
	}

	for _, r := range active {
		runsChan <- r
	}
	close(runsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for se := range resultsChan {
		if se.Error == "" {
			result.Successful++
		} else {
			result.Failed++
			result.Errors = append(result.Errors, se)
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	s.updateMetrics(result)

	s.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("run sweep completed")

	return result, nil
}

// RunOne evaluates a single run, for targeted sweep triggers.
func (s *Sweep) RunOne(ctx context.Context, runID string) error {
	if se := s.sweepRun(ctx, runID); se.Error != "" {
		return errors.New(se.Error)
	}
	return nil
}

func (s *Sweep) sweepWorker(ctx context.Context, runs <-chan *run.Run, results chan<- SweepError) {
	for r := range runs {
		select {
		case <-ctx.Done():
			return
		default:
			results <- s.sweepRun(ctx, r.ID)
		}
	}
}

func (s *Sweep) sweepRun(ctx context.Context, runID string) SweepError {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	orch := s.factory(runID)
	if err := orch.Tick(runCtx); err != nil {
		return SweepError{RunID: runID, Error: err.Error()}
	}

	// A worker invocation may exit before the debounce window elapses.
	if s.store != nil {
		if _, err := s.store.Flush(runCtx, runID); err != nil {
			return SweepError{RunID: runID, Error: err.Error()}
		}
	}

	return SweepError{RunID: runID}
}

func (s *Sweep) updateMetrics(result *SweepResult) {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()

	s.metrics.TotalSweeps++
	s.metrics.RunsEvaluated += int64(result.Successful)
	s.metrics.RunsFailed += int64(result.Failed)
	s.metrics.LastSweepAt = result.EndTime
	s.metrics.LastDuration = result.Duration
	s.metrics.TotalDuration += result.Duration
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (s *Sweep) MetricsSnapshot() map[string]interface{} {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	return map[string]interface{}{
		"total_sweeps":   s.metrics.TotalSweeps,
		"runs_evaluated": s.metrics.RunsEvaluated,
		"runs_failed":    s.metrics.RunsFailed,
		"last_sweep_at":  s.metrics.LastSweepAt,
		"last_duration":  s.metrics.LastDuration.String(),
		"total_duration": s.metrics.TotalDuration.String(),
	}
}
