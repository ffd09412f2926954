// Package run provides the run definition model consumed by the tracking
// pipeline. Runs are created and edited by an external scheduling surface;
// this service only reads them.
package run

import (
	"errors"
	"time"
)

// ErrRunNotFound indicates the requested run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one scheduled multi-stop delivery route.
type Run struct {
	// ID is the run identifier.
	ID string

	// Name is the human-readable run label.
	Name string

	// VehicleID is the assigned vehicle in the fleet telemetry system.
	// Empty when no vehicle has been assigned yet.
	VehicleID string

	// StartAt is the scheduled start time. A run whose StartAt is in the
	// future is not polled for live position; only its scheduled projection
	// is computed.
	StartAt time.Time

	// BasePostcode is the depot the run starts from (and optionally returns to).
	BasePostcode string

	// EndPostcode is an explicit end location. Empty means the run either
	// returns to base (ReturnToBase) or ends at the last stop.
	EndPostcode string

	// ReturnToBase appends the base as the final waypoint of the projection.
	ReturnToBase bool

	// StopsText is the raw stop-list text the ordered stops are parsed from.
	StopsText string

	// ServiceMinutes is the per-stop service time used in projections.
	ServiceMinutes int

	// IncludeBreaks enables driving-break insertion in projections.
	IncludeBreaks bool

	// WorkdayEnd is the working-hours cutoff as time-of-day since midnight.
	// Arrivals at or after this roll over to the next day.
	WorkdayEnd time.Duration

	// WorkdayStart is the reopen time-of-day arrivals roll forward to.
	WorkdayStart time.Duration

	// Active marks runs the backend sweep re-evaluates.
	Active bool
}

// Stops parses the run's raw stop-list text.
func (r *Run) Stops() []Stop {
	return ParseStops(r.StopsText)
}

// Started reports whether the run's scheduled start has been reached.
func (r *Run) Started(now time.Time) bool {
	return !r.StartAt.After(now)
}
