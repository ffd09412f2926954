package run

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL run repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const runColumns = `
	id, name, vehicle_id, start_at,
	base_postcode, end_postcode, return_to_base,
	stops_text, service_minutes, include_breaks,
	workday_end_minutes, workday_start_minutes, active
`

// Get retrieves a run by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)
	rn, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return rn, nil
}

// ListActive retrieves all active runs ordered by scheduled start.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE active ORDER BY start_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		rn, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rn)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*Run, error) {
	var rn Run
	var vehicleID, endPC *string
	var workdayEndMinutes, workdayStartMinutes int

	err := row.Scan(
		&rn.ID,
		&rn.Name,
		&vehicleID,
		&rn.StartAt,
		&rn.BasePostcode,
		&endPC,
		&rn.ReturnToBase,
		&rn.StopsText,
		&rn.ServiceMinutes,
		&rn.IncludeBreaks,
		&workdayEndMinutes,
		&workdayStartMinutes,
		&rn.Active,
	)
	if err != nil {
		return nil, err
	}

	if vehicleID != nil {
		rn.VehicleID = *vehicleID
	}
	if endPC != nil {
		rn.EndPostcode = *endPC
	}
	rn.WorkdayEnd = time.Duration(workdayEndMinutes) * time.Minute
	rn.WorkdayStart = time.Duration(workdayStartMinutes) * time.Minute

	return &rn, nil
}
