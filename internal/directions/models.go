// Package directions resolves drive time and distance between coordinates.
package directions

import (
	"context"
	"errors"

	"github.com/routetrack/routetrack/internal/geo"
)

// Sentinel errors for directions lookups.
var (
	// ErrProviderUnavailable indicates the routing source is down or the
	// circuit breaker is open.
	ErrProviderUnavailable = errors.New("directions provider unavailable")
	// ErrNoRouteFound indicates no drivable route exists between the points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Profile represents a routing profile (vehicle class).
type Profile string

const (
	// ProfileHGV is the heavy-goods-vehicle profile, the default for runs.
	ProfileHGV Profile = "driving-hgv"
	// ProfileCar is the regular car profile.
	ProfileCar Profile = "driving-car"
)

// Provider defines the interface for routing sources.
type Provider interface {
	// Directions retrieves the raw drive duration/distance between two points.
	Directions(ctx context.Context, from, to geo.Coordinate, profile Profile) (*RawLeg, error)
	// Name returns the provider identifier for logging and health tracking.
	Name() string
}

// RawLeg is the unnormalized answer from the routing source.
type RawLeg struct {
	DurationSeconds int
	DistanceMeters  int

	// Geometry is the encoded polyline for the leg, when the source
	// includes one.
	Geometry string
}

// Leg is a normalized drive leg: routing-source duration scaled by the
// configured multiplier and floored so the implied average speed never
// exceeds the maximum.
type Leg struct {
	Minutes  int
	Km       float64
	Geometry string
}

// Normalization holds the per-run duration adjustment rules.
type Normalization struct {
	// Multiplier scales the routing source's optimistic durations
	// (default 1.15).
	Multiplier float64

	// MaxSpeedKph caps the implied average speed; a leg is never projected
	// faster than this (default 70).
	MaxSpeedKph float64
}

// DefaultNormalization returns the standard HGV adjustment.
func DefaultNormalization() Normalization {
	return Normalization{Multiplier: 1.15, MaxSpeedKph: 70}
}

// Error provides detailed error information from the routing provider.
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

// IsRetryable returns true if the error is transient and the request can be
// retried on a later tick.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
