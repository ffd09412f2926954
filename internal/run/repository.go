package run

import "context"

// Repository provides read access to run definitions. Runs are owned by the
// external scheduling surface; this service never creates or edits them.
type Repository interface {
	// Get retrieves a run by ID. Returns ErrRunNotFound if it does not exist.
	Get(ctx context.Context, id string) (*Run, error)

	// ListActive retrieves every run the backend sweep should re-evaluate.
	ListActive(ctx context.Context) ([]*Run, error)
}
