// Package position provides vehicle position lookup from fleet telemetry.
package position

import (
	"context"
	"errors"
	"time"

	"github.com/routetrack/routetrack/internal/geo"
)

// Sentinel errors for position lookups.
var (
	// ErrVehicleNotFound indicates the telemetry source has no such vehicle.
	ErrVehicleNotFound = errors.New("vehicle not found")
	// ErrProviderUnavailable indicates the telemetry source is down or the
	// circuit breaker is open.
	ErrProviderUnavailable = errors.New("position provider unavailable")
)

// VehicleSnapshot is one position sample for a vehicle. It is transient:
// treated as a read-only external fact per tick and never persisted here.
type VehicleSnapshot struct {
	VehicleID string
	Coord     geo.Coordinate

	// SpeedKph is the reported speed, when the telemetry source includes it.
	SpeedKph *float64

	// Heading is the reported heading in degrees, when available.
	Heading *float64

	// Timestamp is when the sample was taken. Telemetry is eventually
	// consistent, so this may lag behind wall-clock time.
	Timestamp time.Time
}

// Provider defines the interface for fleet telemetry sources.
type Provider interface {
	// Position retrieves the current position of a vehicle.
	// Returns ErrVehicleNotFound when the vehicle is unknown.
	Position(ctx context.Context, vehicleID string) (*VehicleSnapshot, error)
	// Name returns the provider identifier for logging and health tracking.
	Name() string
}

// Error provides detailed error information from a telemetry provider.
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
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable)
}
