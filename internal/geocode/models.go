// Package geocode resolves postcode tokens to coordinates with memoization.
package geocode

import (
	"context"
	"errors"

	"github.com/routetrack/routetrack/internal/geo"
)

// Sentinel errors for geocode lookups.
var (
	// ErrNoMatch indicates the geocoding source found no result for the token.
	ErrNoMatch = errors.New("no geocode match")
	// ErrProviderUnavailable indicates the geocoding source is down or the
	// circuit breaker is open.
	ErrProviderUnavailable = errors.New("geocode provider unavailable")
)

// Provider defines the interface for geocoding sources.
type Provider interface {
	// Resolve looks up the single best coordinate for a normalized postcode
	// token. Returns ErrNoMatch when nothing was found.
	Resolve(ctx context.Context, postcode string) (geo.Coordinate, error)
	// Name returns the provider identifier for logging and health tracking.
	Name() string
}

// SharedCache is an optional cross-process cache for resolved coordinates.
// Postcodes are immutable keys, so the cache is append-only and safe for
// concurrent readers and writers without coordination.
type SharedCache interface {
	Get(ctx context.Context, postcode string) (geo.Coordinate, bool, error)
	Put(ctx context.Context, postcode string, coord geo.Coordinate) error
}

// Error provides detailed error information from a geocoding provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the lookup can be retried on a later tick.
// A definite no-match is not retryable.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable)
}
