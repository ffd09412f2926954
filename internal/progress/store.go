package progress

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StoreConfig holds configuration for the progress store.
type StoreConfig struct {
	// Repository is the persistence backend (required).
	Repository Repository

	// Logger for store operations.
	Logger zerolog.Logger

	// QuietPeriod is the debounce window: a state change schedules a write
	// after this much quiet, coalescing rapid successive changes into one
	// write (default: 2 seconds).
	QuietPeriod time.Duration

	// FlushTimeout bounds a single debounced flush (default: 10 seconds).
	FlushTimeout time.Duration
}

// Store mediates all progress persistence. Every write goes through
// read-merge-write so that the live view, the backend sweep, and manual
// actions never race to undo each other's completions, and routine tick
// writes are debounced so a burst of geofence transitions produces a single
// store write.
type Store struct {
	repo         Repository
	logger       zerolog.Logger
	quietPeriod  time.Duration
	flushTimeout time.Duration

	mu      sync.Mutex
	pending map[string]Record
	timers  map[string]*time.Timer
}

// NewStore creates a new progress store.
func NewStore(cfg StoreConfig) *Store {
	quiet := cfg.QuietPeriod
	if quiet == 0 {
		quiet = 2 * time.Second
	}

	flushTimeout := cfg.FlushTimeout
	if flushTimeout == 0 {
		flushTimeout = 10 * time.Second
	}

	return &Store{
		repo:         cfg.Repository,
		logger:       cfg.Logger,
		quietPeriod:  quiet,
		flushTimeout: flushTimeout,
		pending:      make(map[string]Record),
		timers:       make(map[string]*time.Timer),
	}
}

// Load reads the persisted record for a run. A pending debounced write for
// the same run is merged in so callers never observe older-than-local state.
func (s *Store) Load(ctx context.Context, runID string) (Record, error) {
	rec, err := s.repo.Get(ctx, runID)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	pending, ok := s.pending[runID]
	s.mu.Unlock()
	if ok {
		rec = Merge(pending, rec)
	}

	return rec, nil
}

// Save schedules a debounced write of the record. The latest record per run
// wins; the actual write happens after the quiet period via read-merge-write.
func (s *Store) Save(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[rec.RunID] = rec.Clone()

	if timer, ok := s.timers[rec.RunID]; ok {
		timer.Reset(s.quietPeriod)
		return
	}

	runID := rec.RunID
	s.timers[runID] = time.AfterFunc(s.quietPeriod, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
		defer cancel()

		if _, err := s.Flush(ctx, runID); err != nil {
			// The in-memory state already reflects the decision; the next
			// tick's change detection re-attempts the write for as long as
			// local and remote still differ.
			s.logger.Error().Err(err).
				Str("run_id", runID).
				Msg("debounced progress write failed")
		}
	})
}

// SaveNow merges the record with the persisted state and writes immediately,
// returning the merged result. Used by manual actions and the backend sweep,
// which cannot wait out the debounce window.
func (s *Store) SaveNow(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	if pending, ok := s.pending[rec.RunID]; ok {
		// A debounced write is outstanding; fold it in rather than lose it.
		rec = Merge(rec, pending)
		delete(s.pending, rec.RunID)
	}
	if timer, ok := s.timers[rec.RunID]; ok {
		timer.Stop()
		delete(s.timers, rec.RunID)
	}
	s.mu.Unlock()

	return s.mergeAndWrite(ctx, rec)
}

// Retract removes one completion. The record is first folded with any pending
// debounced write and the persisted remote, so completions a concurrent writer
// landed in the meantime survive; only the target stop is removed. The write
// bypasses the merge union, which would immediately restore the target.
func (s *Store) Retract(ctx context.Context, rec Record, stopID string) (Record, error) {
	s.mu.Lock()
	if pending, ok := s.pending[rec.RunID]; ok {
		rec = Merge(rec, pending)
		delete(s.pending, rec.RunID)
	}
	if timer, ok := s.timers[rec.RunID]; ok {
		timer.Stop()
		delete(s.timers, rec.RunID)
	}
	s.mu.Unlock()

	remote, err := s.repo.Get(ctx, rec.RunID)
	if err != nil {
		return Record{}, err
	}

	merged := Merge(rec, remote)
	merged.Undo(stopID)
	merged.UpdatedAt = time.Now()

	if err := s.repo.Save(ctx, merged); err != nil {
		return Record{}, err
	}

	s.logger.Debug().
		Str("run_id", merged.RunID).
		Str("stop_id", stopID).
		Int("completed", len(merged.State.Completed)).
		Msg("completion retracted")

	return merged, nil
}

// Overwrite replaces the persisted record without merging and discards any
// pending debounced write. Reset deliberately clears the completed set, which
// the merge union would immediately restore; it is the only caller allowed to
// replace the remote wholesale.
func (s *Store) Overwrite(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	delete(s.pending, rec.RunID)
	if timer, ok := s.timers[rec.RunID]; ok {
		timer.Stop()
		delete(s.timers, rec.RunID)
	}
	s.mu.Unlock()

	out := rec.Clone()
	out.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, out); err != nil {
		return Record{}, err
	}

	s.logger.Debug().
		Str("run_id", out.RunID).
		Int("completed", len(out.State.Completed)).
		Msg("progress overwritten")

	return out, nil
}

// Flush writes any pending debounced record for the run immediately.
// Returns the merged record, or the persisted one when nothing was pending.
func (s *Store) Flush(ctx context.Context, runID string) (Record, error) {
	s.mu.Lock()
	rec, ok := s.pending[runID]
	delete(s.pending, runID)
	if timer, exists := s.timers[runID]; exists {
		timer.Stop()
		delete(s.timers, runID)
	}
	s.mu.Unlock()

	if !ok {
		return s.repo.Get(ctx, runID)
	}

	return s.mergeAndWrite(ctx, rec)
}

// FlushAll writes every pending debounced record immediately. Called on
// shutdown so a coalescing window never swallows the final writes.
func (s *Store) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	runIDs := make([]string, 0, len(s.pending))
	for runID := range s.pending {
		runIDs = append(runIDs, runID)
	}
	s.mu.Unlock()

	var firstErr error
	for _, runID := range runIDs {
		if _, err := s.Flush(ctx, runID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) mergeAndWrite(ctx context.Context, rec Record) (Record, error) {
	remote, err := s.repo.Get(ctx, rec.RunID)
	if err != nil {
		return Record{}, err
	}

	merged := Merge(rec, remote)
	merged.UpdatedAt = time.Now()

	if err := s.repo.Save(ctx, merged); err != nil {
		return Record{}, err
	}

	s.logger.Debug().
		Str("run_id", rec.RunID).
		Int("completed", len(merged.State.Completed)).
		Msg("progress persisted")

	return merged, nil
}
