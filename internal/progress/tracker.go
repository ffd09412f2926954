package progress

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/geo"
	"github.com/routetrack/routetrack/internal/position"
	"github.com/routetrack/routetrack/internal/run"
)

// TrackerConfig holds configuration for the geofence tracker.
type TrackerConfig struct {
	// CompletionRadiusMeters is the maximum distance from a stop's
	// coordinates still counted as "at" that stop (default: 250).
	CompletionRadiusMeters float64

	// MinStandstill is the continuous dwell time inside the radius required
	// to count a stop as delivered (default: 3 minutes).
	MinStandstill time.Duration

	// Logger for tracker decisions.
	Logger zerolog.Logger
}

// Tracker decides, from one position sample, whether the next uncompleted
// stop has been arrived at, dwelled at long enough, or departed from.
//
// Dwell is purely distance+time based: a vehicle idling at low speed still
// counts as dwelling while it stays within the radius, so no stationarity
// check is applied.
type Tracker struct {
	radius        float64
	minStandstill time.Duration
	logger        zerolog.Logger
}

// NewTracker creates a new geofence tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	radius := cfg.CompletionRadiusMeters
	if radius == 0 {
		radius = 250
	}

	minStandstill := cfg.MinStandstill
	if minStandstill == 0 {
		minStandstill = 3 * time.Minute
	}

	return &Tracker{
		radius:        radius,
		minStandstill: minStandstill,
		logger:        cfg.Logger,
	}
}

// Evaluate applies one position sample to the record and returns the updated
// copy. The input record is never mutated; callers compare input and output
// with Record.Equal to detect whether anything changed.
//
// A nil snapshot, a stop with no resolved coordinate, or an empty stop list
// all result in no transition: the input record is returned unchanged.
// coords is keyed by normalized postcode; stops missing from it are
// indeterminate and never auto-complete.
func (t *Tracker) Evaluate(rec Record, stops []run.Stop, coords map[string]geo.Coordinate, snap *position.VehicleSnapshot, now time.Time) Record {
	if snap == nil || len(stops) == 0 {
		return rec
	}

	out := rec.Clone()

	next := run.NextUncompleted(stops, out.State.Completed)

	// A just-completed stop can still be tracked while the vehicle sits on
	// site; once the vehicle is observed outside its radius the dwell is
	// cleared and the departure timestamp stamped.
	if out.State.OnSiteID != "" && (next == nil || next.ID != out.State.OnSiteID) {
		t.watchDeparture(&out, stops, coords, snap, now)
	}

	if next == nil {
		return out
	}

	coord, ok := coords[next.Postcode]
	if !ok {
		return out
	}

	dist := geo.DistanceMeters(snap.Coord, coord)
	inside := dist <= t.radius

	switch {
	case inside && out.State.OnSiteID != next.ID:
		// Arrival: begin dwelling.
		since := now
		out.State.OnSiteID = next.ID
		out.State.OnSiteSince = &since
		t.logger.Debug().
			Str("run_id", rec.RunID).
			Int("stop_index", next.Index).
			Float64("distance_m", dist).
			Msg("vehicle arrived at stop")

	case inside:
		// Still dwelling: complete once the standstill threshold is met.
		if t.dwellMet(out.State.OnSiteSince, now) {
			out.markCompleted(next.ID, ActorAuto, *out.State.OnSiteSince)
		}

	case out.State.OnSiteID == next.ID:
		// Left the radius. If the dwell threshold was met the stop still
		// completes; this covers a sample arriving just as the vehicle
		// pulls away.
		if t.dwellMet(out.State.OnSiteSince, now) {
			out.markCompleted(next.ID, ActorAuto, *out.State.OnSiteSince)
			out.markDeparted(next.ID, now)
		}
		out.State.clearDwell()
	}

	out.State.LastInside = inside

	return out
}

// watchDeparture checks whether the vehicle has left the radius of the stop
// still referenced by OnSiteID after its completion.
func (t *Tracker) watchDeparture(rec *Record, stops []run.Stop, coords map[string]geo.Coordinate, snap *position.VehicleSnapshot, now time.Time) {
	tracked := run.StopByID(stops, rec.State.OnSiteID)
	if tracked == nil {
		// The stop list was edited out from under the dwell state.
		rec.State.clearDwell()
		return
	}

	coord, ok := coords[tracked.Postcode]
	if !ok {
		return
	}

	if geo.DistanceMeters(snap.Coord, coord) > t.radius {
		id := rec.State.OnSiteID
		rec.State.clearDwell()
		rec.markDeparted(id, now)
		t.logger.Debug().
			Str("run_id", rec.RunID).
			Int("stop_index", tracked.Index).
			Msg("vehicle departed completed stop")
	}
}

func (t *Tracker) dwellMet(since *time.Time, now time.Time) bool {
	return since != nil && now.Sub(*since) >= t.minStandstill
}
