package geocode

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/routetrack/routetrack/internal/geo"
)

// PostgresCache is a PostgreSQL implementation of SharedCache. Keys are
// content-addressed by normalized postcode, so concurrent writers can only
// ever insert the same value; conflicts are ignored.
type PostgresCache struct {
	pool *pgxpool.Pool
}

// NewPostgresCache creates a new PostgreSQL geocode cache.
func NewPostgresCache(pool *pgxpool.Pool) *PostgresCache {
	return &PostgresCache{pool: pool}
}

// Get retrieves a cached coordinate for a postcode.
func (c *PostgresCache) Get(ctx context.Context, postcode string) (geo.Coordinate, bool, error) {
	query := `SELECT lat, lon FROM geocode_cache WHERE postcode = $1`

	var coord geo.Coordinate
	err := c.pool.QueryRow(ctx, query, postcode).Scan(&coord.Lat, &coord.Lon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return geo.Coordinate{}, false, nil
		}
		return geo.Coordinate{}, false, err
	}
	return coord, true, nil
}

// Put stores a resolved coordinate. Existing entries win.
func (c *PostgresCache) Put(ctx context.Context, postcode string, coord geo.Coordinate) error {
	query := `
		INSERT INTO geocode_cache (postcode, lat, lon, resolved_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (postcode) DO NOTHING
	`

	_, err := c.pool.Exec(ctx, query, postcode, coord.Lat, coord.Lon)
	return err
}
