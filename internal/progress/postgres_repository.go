package progress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
//
// State and metadata are stored as JSONB and decoded through typed documents;
// a row that fails to decode degrades to the empty record rather than
// propagating loosely shaped values into the tracker.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRepository creates a new PostgreSQL progress repository.
func NewPostgresRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresRepository {
	return &PostgresRepository{pool: pool, logger: logger}
}

// stateDoc is the persisted JSON shape of State.
type stateDoc struct {
	Completed   []string   `json:"completed"`
	OnSiteID    string     `json:"onSiteId,omitempty"`
	OnSiteSince *time.Time `json:"onSiteSince,omitempty"`
	LastInside  bool       `json:"lastInside"`
}

// Get retrieves the record for a run.
func (r *PostgresRepository) Get(ctx context.Context, runID string) (Record, error) {
	query := `
		SELECT state, meta, updated_at
		FROM run_progress
		WHERE run_id = $1
	`

	var stateRaw, metaRaw []byte
	var updatedAt time.Time

	err := r.pool.QueryRow(ctx, query, runID).Scan(&stateRaw, &metaRaw, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NewRecord(runID), nil
		}
		return Record{}, err
	}

	rec := NewRecord(runID)
	rec.UpdatedAt = updatedAt
	r.decodeState(runID, stateRaw, &rec)
	r.decodeMeta(runID, metaRaw, &rec)

	return rec, nil
}

func (r *PostgresRepository) decodeState(runID string, raw []byte, rec *Record) {
	var doc stateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		r.logger.Warn().Err(err).
			Str("run_id", runID).
			Msg("invalid progress state document, defaulting to empty state")
		return
	}

	for _, id := range doc.Completed {
		if id != "" {
			rec.State.Completed[id] = struct{}{}
		}
	}
	// Dwell tracking only survives the round trip intact; a half-present
	// pair defaults to "not dwelling".
	if doc.OnSiteID != "" && doc.OnSiteSince != nil {
		rec.State.OnSiteID = doc.OnSiteID
		rec.State.OnSiteSince = doc.OnSiteSince
		rec.State.LastInside = doc.LastInside
	}
}

func (r *PostgresRepository) decodeMeta(runID string, raw []byte, rec *Record) {
	var meta map[string]Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		r.logger.Warn().Err(err).
			Str("run_id", runID).
			Msg("invalid progress meta document, defaulting to empty meta")
		return
	}
	for id, m := range meta {
		if id != "" {
			rec.Meta[id] = m
		}
	}
}

// Save writes the record, keeping the denormalized completed_stop_ids mirror
// in step for simpler querying.
func (r *PostgresRepository) Save(ctx context.Context, rec Record) error {
	stateRaw, err := json.Marshal(stateDoc{
		Completed:   rec.State.CompletedIDs(),
		OnSiteID:    rec.State.OnSiteID,
		OnSiteSince: rec.State.OnSiteSince,
		LastInside:  rec.State.LastInside,
	})
	if err != nil {
		return err
	}

	metaRaw, err := json.Marshal(rec.Meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO run_progress (run_id, state, completed_stop_ids, meta, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (run_id) DO UPDATE SET
			state = EXCLUDED.state,
			completed_stop_ids = EXCLUDED.completed_stop_ids,
			meta = EXCLUDED.meta,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query, rec.RunID, stateRaw, rec.State.CompletedIDs(), metaRaw)
	return err
}

// Delete removes a run's progress record.
func (r *PostgresRepository) Delete(ctx context.Context, runID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM run_progress WHERE run_id = $1`, runID)
	return err
}
