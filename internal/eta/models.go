// Package eta projects a leg-by-leg arrival schedule across a run's
// remaining stops, including driving breaks and end-of-day rollover.
package eta

import (
	"time"

	"github.com/routetrack/routetrack/internal/directions"
	"github.com/routetrack/routetrack/internal/geo"
)

// Waypoint is one point on the projected chain.
type Waypoint struct {
	// Label is the display name (postcode or "Base"/"Current position").
	Label string
	Coord geo.Coordinate
}

// Options holds the routing rules for one projection.
type Options struct {
	// Normalization scales routing-source durations (HGV multiplier and
	// maximum-speed floor).
	Normalization directions.Normalization

	// InsertBreaks enables driving-break insertion.
	InsertBreaks bool

	// DriveLimit is the maximum continuous drive time before a break
	// (default: 4h30m).
	DriveLimit time.Duration

	// BreakDuration is the length of one inserted break (default: 45m).
	BreakDuration time.Duration

	// ServiceTime is the per-stop service time applied after arrival.
	ServiceTime time.Duration

	// WorkdayEnd is the working-hours cutoff as time-of-day since midnight.
	// Zero disables rollover.
	WorkdayEnd time.Duration

	// WorkdayStart is the reopen time-of-day arrivals roll forward to
	// (default: 8h when WorkdayEnd is set).
	WorkdayStart time.Duration
}

// DefaultOptions returns the standard projection rules.
func DefaultOptions() Options {
	return Options{
		Normalization: directions.DefaultNormalization(),
		InsertBreaks:  true,
		DriveLimit:    4*time.Hour + 30*time.Minute,
		BreakDuration: 45 * time.Minute,
		ServiceTime:   10 * time.Minute,
		WorkdayEnd:    18 * time.Hour,
		WorkdayStart:  8 * time.Hour,
	}
}

// Leg is one projected drive between consecutive waypoints.
type Leg struct {
	From string `json:"from"`
	To   string `json:"to"`

	Km             float64 `json:"km"`
	DriveMinutes   int     `json:"driveMinutes"`
	BreakMinutes   int     `json:"breakMinutes"`
	ServiceMinutes int     `json:"serviceMinutes"`

	DepartAt time.Time `json:"departAt"`
	ArriveAt time.Time `json:"arriveAt"`

	// ArrivalLabel is the display form of the arrival: "HH:MM", or
	// "Next day HH:MM" when the arrival rolled past the working-hours cutoff.
	ArrivalLabel string `json:"arrivalLabel"`

	// Geometry is the encoded polyline for the leg, when available.
	Geometry string `json:"geometry,omitempty"`
}

// Chain is a full projection: every remaining leg plus run totals. It is
// recomputed on demand, held in memory only, and never persisted.
type Chain struct {
	Legs []Leg `json:"legs"`

	TotalKm        float64 `json:"totalKm"`
	DriveMinutes   int     `json:"driveMinutes"`
	BreakMinutes   int     `json:"breakMinutes"`
	ServiceMinutes int     `json:"serviceMinutes"`

	// TotalMinutes is exactly DriveMinutes + BreakMinutes + ServiceMinutes.
	TotalMinutes int `json:"totalMinutes"`

	StartAt      time.Time `json:"startAt"`
	FinalArrival time.Time `json:"finalArrival"`
}
