package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Factory builds an orchestrator for a run ID.
type Factory func(runID string) *Orchestrator

// SchedulerConfig holds configuration for the live-view scheduler.
type SchedulerConfig struct {
	// Factory builds per-run orchestrators (required).
	Factory Factory

	// Logger for scheduler operations.
	Logger zerolog.Logger

	// Interval between ticks for an observed run (default: 15 seconds).
	Interval time.Duration

	// IdleAfter stops a run's loop once nobody has observed it for this long
	// (default: 2 minutes). A closed browser tab just stops calling Observe.
	IdleAfter time.Duration
}

// Scheduler runs one periodic tick loop per observed run. Loops start on
// first observation and reap themselves once the run goes unobserved.
type Scheduler struct {
	factory   Factory
	logger    zerolog.Logger
	interval  time.Duration
	idleAfter time.Duration

	mu      sync.Mutex
	entries map[string]*schedulerEntry
	closed  bool
}

type schedulerEntry struct {
	orch     *Orchestrator
	cancel   context.CancelFunc
	lastSeen time.Time
}

// NewScheduler creates a new live-view scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	interval := cfg.Interval
	if interval == 0 {
		interval = 15 * time.Second
	}

	idleAfter := cfg.IdleAfter
	if idleAfter == 0 {
		idleAfter = 2 * time.Minute
	}

	return &Scheduler{
		factory:   cfg.Factory,
		logger:    cfg.Logger,
		interval:  interval,
		idleAfter: idleAfter,
		entries:   make(map[string]*schedulerEntry),
	}
}

// Observe marks a run as actively watched and returns its orchestrator,
// starting the tick loop on first observation. Callers read the snapshot;
// each call renews the idle timer.
func (s *Scheduler) Observe(runID string) *Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[runID]; ok {
		e.lastSeen = time.Now()
		return e.orch
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &schedulerEntry{
		orch:     s.factory(runID),
		cancel:   cancel,
		lastSeen: time.Now(),
	}
	s.entries[runID] = e

	if !s.closed {
		go s.loop(ctx, runID, e)
	}

	return e.orch
}

// Running returns the number of active run loops, for diagnostics.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops every run loop.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, e := range s.entries {
		e.cancel()
		delete(s.entries, id)
	}
}

func (s *Scheduler) loop(ctx context.Context, runID string, e *schedulerEntry) {
	logger := s.logger.With().Str("run_id", runID).Logger()
	logger.Debug().Msg("run loop started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, e.orch, logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.reapIfIdle(runID, e) {
				logger.Debug().Msg("run loop idle, stopping")
				return
			}
			s.tick(ctx, e.orch, logger)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, orch *Orchestrator, logger zerolog.Logger) {
	tickCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if err := orch.Tick(tickCtx); err != nil {
		logger.Warn().Err(err).Msg("tick failed")
	}
}

func (s *Scheduler) reapIfIdle(runID string, e *schedulerEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(e.lastSeen) < s.idleAfter {
		return false
	}
	e.cancel()
	delete(s.entries, runID)
	return true
}
