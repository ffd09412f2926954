package progress

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memRepository is an in-memory Repository for testing.
type memRepository struct {
	mu      sync.Mutex
	records map[string]Record
	saves   int
}

func newMemRepository() *memRepository {
	return &memRepository{records: make(map[string]Record)}
}

func (r *memRepository) Get(_ context.Context, runID string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[runID]
	if !ok {
		return NewRecord(runID), nil
	}
	return rec.Clone(), nil
}

func (r *memRepository) Save(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.RunID] = rec.Clone()
	r.saves++
	return nil
}

func (r *memRepository) Delete(_ context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, runID)
	return nil
}

func (r *memRepository) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func TestStore_DebounceCoalescesWrites(t *testing.T) {
	repo := newMemRepository()
	store := NewStore(StoreConfig{Repository: repo, QuietPeriod: 30 * time.Millisecond})

	// Three rapid changes within the quiet period.
	store.Save(recordWith("run-1", "stop-1"))
	store.Save(recordWith("run-1", "stop-1", "stop-2"))
	store.Save(recordWith("run-1", "stop-1", "stop-2", "stop-3"))

	time.Sleep(120 * time.Millisecond)

	if n := repo.saveCount(); n != 1 {
		t.Errorf("expected 1 coalesced write, got %d", n)
	}

	rec, err := repo.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.State.Completed) != 3 {
		t.Errorf("latest record must win, got %v", rec.State.CompletedIDs())
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	repo := newMemRepository()
	store := NewStore(StoreConfig{Repository: repo, QuietPeriod: 40 * time.Millisecond})
	ctx := context.Background()

	// Browser loop completes stop-1 locally; its write is debounced.
	store.Save(recordWith("run-1", "stop-1"))

	// Backend sweep, unaware of stop-1, completes stop-2 and persists
	// immediately through the same merge discipline.
	if _, err := store.SaveNow(ctx, recordWith("run-1", "stop-2")); err != nil {
		t.Fatal(err)
	}

	rec, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.State.IsCompleted("stop-1") || !rec.State.IsCompleted("stop-2") {
		t.Errorf("persisted state must contain both completions, got %v", rec.State.CompletedIDs())
	}
}

func TestStore_LoadMergesPending(t *testing.T) {
	repo := newMemRepository()
	store := NewStore(StoreConfig{Repository: repo, QuietPeriod: time.Minute})
	ctx := context.Background()

	if err := repo.Save(ctx, recordWith("run-1", "stop-2")); err != nil {
		t.Fatal(err)
	}
	// Pending debounced write not yet flushed.
	store.Save(recordWith("run-1", "stop-1"))

	rec, err := store.Load(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.State.IsCompleted("stop-1") || !rec.State.IsCompleted("stop-2") {
		t.Errorf("load must observe pending local changes, got %v", rec.State.CompletedIDs())
	}
}

func TestStore_SaveNowMergesWithRemote(t *testing.T) {
	repo := newMemRepository()
	store := NewStore(StoreConfig{Repository: repo})
	ctx := context.Background()

	if err := repo.Save(ctx, recordWith("run-1", "stop-9")); err != nil {
		t.Fatal(err)
	}

	merged, err := store.SaveNow(ctx, recordWith("run-1", "stop-1"))
	if err != nil {
		t.Fatal(err)
	}

	if !merged.State.IsCompleted("stop-1") || !merged.State.IsCompleted("stop-9") {
		t.Errorf("SaveNow must merge with the persisted record, got %v", merged.State.CompletedIDs())
	}
}

func TestStore_OverwriteSkipsMerge(t *testing.T) {
	repo := newMemRepository()
	store := NewStore(StoreConfig{Repository: repo, QuietPeriod: time.Minute})
	ctx := context.Background()

	if err := repo.Save(ctx, recordWith("run-1", "stop-1", "stop-2")); err != nil {
		t.Fatal(err)
	}
	// A pending debounced write would re-add stop-2 if it survived.
	store.Save(recordWith("run-1", "stop-1", "stop-2"))

	written, err := store.Overwrite(ctx, recordWith("run-1", "stop-1"))
	if err != nil {
		t.Fatal(err)
	}
	if written.State.IsCompleted("stop-2") {
		t.Error("overwrite must not union with the persisted record")
	}

	rec, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.State.IsCompleted("stop-2") {
		t.Errorf("the replacement must stick, got %v", rec.State.CompletedIDs())
	}
}

func TestStore_RetractPreservesConcurrentCompletions(t *testing.T) {
	repo := newMemRepository()
	store := NewStore(StoreConfig{Repository: repo, QuietPeriod: time.Minute})
	ctx := context.Background()

	// The live view knows about stop-1; the backend sweep persisted stop-2
	// in the meantime, which the caller has never seen.
	if err := repo.Save(ctx, recordWith("run-1", "stop-1", "stop-2")); err != nil {
		t.Fatal(err)
	}

	written, err := store.Retract(ctx, recordWith("run-1", "stop-1"), "stop-1")
	if err != nil {
		t.Fatal(err)
	}
	if written.State.IsCompleted("stop-1") {
		t.Error("the retracted stop must be gone")
	}
	if !written.State.IsCompleted("stop-2") {
		t.Error("a concurrent writer's completion must survive the retraction")
	}

	rec, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.State.IsCompleted("stop-1") || !rec.State.IsCompleted("stop-2") {
		t.Errorf("persisted = %v, want only stop-2", rec.State.CompletedIDs())
	}
}

func TestStore_RetractFoldsPendingWrite(t *testing.T) {
	repo := newMemRepository()
	store := NewStore(StoreConfig{Repository: repo, QuietPeriod: time.Minute})
	ctx := context.Background()

	// A debounced write holding stop-3 has not flushed yet.
	store.Save(recordWith("run-1", "stop-1", "stop-3"))

	written, err := store.Retract(ctx, recordWith("run-1", "stop-1"), "stop-1")
	if err != nil {
		t.Fatal(err)
	}
	if written.State.IsCompleted("stop-1") || !written.State.IsCompleted("stop-3") {
		t.Errorf("retract must fold the pending write in, got %v", written.State.CompletedIDs())
	}
}

func TestStore_FlushAllWritesEveryPendingRun(t *testing.T) {
	repo := newMemRepository()
	store := NewStore(StoreConfig{Repository: repo, QuietPeriod: time.Minute})
	ctx := context.Background()

	store.Save(recordWith("run-1", "stop-1"))
	store.Save(recordWith("run-2", "stop-9"))

	if err := store.FlushAll(ctx); err != nil {
		t.Fatal(err)
	}

	for runID, stopID := range map[string]string{"run-1": "stop-1", "run-2": "stop-9"} {
		rec, err := repo.Get(ctx, runID)
		if err != nil {
			t.Fatal(err)
		}
		if !rec.State.IsCompleted(stopID) {
			t.Errorf("%s: pending write must land on FlushAll", runID)
		}
	}
}

func TestStore_FlushWithoutPending(t *testing.T) {
	repo := newMemRepository()
	store := NewStore(StoreConfig{Repository: repo})
	ctx := context.Background()

	rec, err := store.Flush(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.State.Completed) != 0 {
		t.Error("flushing a run with no pending write must return the persisted record")
	}
	if repo.saveCount() != 0 {
		t.Error("nothing to write")
	}
}
