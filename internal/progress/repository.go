package progress

import "context"

// Repository persists run progress records.
//
// Save is a blind overwrite; callers must go through Store (or otherwise
// read-merge-write) so that concurrent writers are reconciled with Merge
// before anything hits the store.
type Repository interface {
	// Get retrieves the record for a run. A run with no persisted progress
	// yet yields the empty record, not an error.
	Get(ctx context.Context, runID string) (Record, error)

	// Save writes the record.
	Save(ctx context.Context, rec Record) error

	// Delete removes the record. Only used when the parent run is deleted.
	Delete(ctx context.Context, runID string) error
}
