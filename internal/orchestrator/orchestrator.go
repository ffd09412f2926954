// Package orchestrator drives the per-run tracking loop: position fetch,
// geofence evaluation, progress persistence and ETA projection, on a fixed
// interval for the live view and in batch for the backend sweep.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/directions"
	"github.com/routetrack/routetrack/internal/eta"
	"github.com/routetrack/routetrack/internal/geo"
	"github.com/routetrack/routetrack/internal/position"
	"github.com/routetrack/routetrack/internal/progress"
	"github.com/routetrack/routetrack/internal/run"
)

// errNoProjectionOrigin means a started run has a vehicle but no usable
// position sample to project from.
var errNoProjectionOrigin = errors.New("no usable vehicle position")

// RunSource provides run definitions.
type RunSource interface {
	Get(ctx context.Context, id string) (*run.Run, error)
}

// Geocoder resolves postcodes to coordinates.
type Geocoder interface {
	ResolveMany(ctx context.Context, postcodes []string) map[string]geo.Coordinate
}

// ChainBuilder projects an ETA chain over waypoints.
type ChainBuilder interface {
	Build(ctx context.Context, startAt time.Time, start eta.Waypoint, stops []eta.Waypoint, end *eta.Waypoint, opts eta.Options) (*eta.Chain, error)
}

// Snapshot is the read-only view of a run's tracking state, replaced wholesale
// each tick. Chain is nil while the projection is unavailable.
type Snapshot struct {
	Run      *run.Run
	Progress progress.Record
	Chain    *eta.Chain
	Vehicle  *position.VehicleSnapshot

	// LastErr is a transient status string for the UI ("position source
	// unavailable" and the like). Empty when the last tick was clean.
	LastErr string

	TickedAt time.Time
}

// Config holds the collaborators for one run's orchestrator.
type Config struct {
	RunID string

	Runs      RunSource
	Positions position.Provider
	Geocoder  Geocoder
	Chains    ChainBuilder
	Tracker   *progress.Tracker
	Store     *progress.Store

	Logger zerolog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Orchestrator owns one run's progress record and exposes the latest snapshot.
// Tick and Apply are the only mutators; both go through the store's merge
// discipline so concurrent writers never undo each other's completions.
type Orchestrator struct {
	runID     string
	runs      RunSource
	positions position.Provider
	geocoder  Geocoder
	chains    ChainBuilder
	tracker   *progress.Tracker
	store     *progress.Store
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	rec    progress.Record
	loaded bool
	snap   Snapshot
}

// New creates an orchestrator for one run.
func New(cfg Config) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		runID:     cfg.RunID,
		runs:      cfg.Runs,
		positions: cfg.Positions,
		geocoder:  cfg.Geocoder,
		chains:    cfg.Chains,
		tracker:   cfg.Tracker,
		store:     cfg.Store,
		logger:    cfg.Logger.With().Str("run_id", cfg.RunID).Logger(),
		now:       now,
	}
}

// Snapshot returns the latest published view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}

// Tick runs one evaluation: fetch the vehicle snapshot, update geofence state,
// persist if anything changed, and rebuild the ETA chain for the remaining
// stops. Adapter failures abort the affected stage but keep the previous
// displayed state; the next tick retries.
func (o *Orchestrator) Tick(ctx context.Context) error {
	now := o.now()

	r, err := o.runs.Get(ctx, o.runID)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			return err
		}
		o.publishErr("run definition unavailable", err, now)
		return err
	}

	rec, err := o.record(ctx)
	if err != nil {
		o.publishErr("progress store unavailable", err, now)
		return err
	}

	stops := r.Stops()
	coords := o.geocoder.ResolveMany(ctx, waypointPostcodes(r, stops))

	var lastErr string
	var snap *position.VehicleSnapshot

	// Future runs are projection-only; nothing to track yet.
	if r.Started(now) && r.VehicleID != "" {
		snap, err = o.positions.Position(ctx, r.VehicleID)
		if err != nil {
			// Stale position is not fatal: completion decisions are simply
			// not made this tick.
			o.logger.Warn().Err(err).Str("vehicle_id", r.VehicleID).Msg("position lookup failed")
			lastErr = "position source unavailable"
			snap = nil
		}
	}

	updated := o.tracker.Evaluate(rec, stops, coords, snap, now)
	if !updated.Equal(rec) {
		o.store.Save(updated)
	}

	chain, chainErr := o.buildChain(ctx, r, updated, stops, coords, snap, now)
	if chainErr != nil {
		o.logger.Warn().Err(chainErr).Msg("eta chain unavailable")
		if lastErr == "" {
			lastErr = "eta unavailable"
		}
	}

	o.mu.Lock()
	if chainErr != nil {
		// A transient projection failure keeps the previous chain on display.
		chain = o.snap.Chain
	}
	o.rec = updated.Clone()
	o.snap = Snapshot{
		Run:      r,
		Progress: updated,
		Chain:    chain,
		Vehicle:  snap,
		LastErr:  lastErr,
		TickedAt: now,
	}
	o.mu.Unlock()

	return nil
}

// publishErr records a transient status without disturbing the previously
// displayed state.
func (o *Orchestrator) publishErr(status string, err error, now time.Time) {
	o.logger.Warn().Err(err).Msg(status)

	o.mu.Lock()
	o.snap.LastErr = status
	o.snap.TickedAt = now
	o.mu.Unlock()
}

// record returns the in-memory progress record, loading it on first use.
func (o *Orchestrator) record(ctx context.Context) (progress.Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.loaded {
		rec, err := o.store.Load(ctx, o.runID)
		if err != nil {
			return progress.Record{}, err
		}
		o.rec = rec
		o.loaded = true
	}
	return o.rec.Clone(), nil
}

func (o *Orchestrator) buildChain(ctx context.Context, r *run.Run, rec progress.Record, stops []run.Stop, coords map[string]geo.Coordinate, snap *position.VehicleSnapshot, now time.Time) (*eta.Chain, error) {
	remaining := run.Remaining(stops, rec.State.Completed)

	waypoints := make([]eta.Waypoint, 0, len(remaining))
	for _, s := range remaining {
		coord, ok := coords[s.Postcode]
		if !ok {
			return nil, fmt.Errorf("stop %s: postcode %s unresolved", s.ID, s.Postcode)
		}
		waypoints = append(waypoints, eta.Waypoint{Label: s.Postcode, Coord: coord})
	}

	start, startAt, err := chainStart(r, coords, snap, now)
	if err != nil {
		return nil, err
	}

	var end *eta.Waypoint
	switch {
	case r.EndPostcode != "":
		coord, ok := coords[run.NormalizePostcode(r.EndPostcode)]
		if !ok {
			return nil, fmt.Errorf("end postcode %s unresolved", r.EndPostcode)
		}
		end = &eta.Waypoint{Label: run.NormalizePostcode(r.EndPostcode), Coord: coord}
	case r.ReturnToBase:
		coord, ok := coords[run.NormalizePostcode(r.BasePostcode)]
		if !ok {
			return nil, fmt.Errorf("base postcode %s unresolved", r.BasePostcode)
		}
		end = &eta.Waypoint{Label: "Base", Coord: coord}
	}

	return o.chains.Build(ctx, startAt, start, waypoints, end, eta.Options{
		Normalization: directions.DefaultNormalization(),
		InsertBreaks:  r.IncludeBreaks,
		ServiceTime:   time.Duration(r.ServiceMinutes) * time.Minute,
		WorkdayEnd:    r.WorkdayEnd,
		WorkdayStart:  r.WorkdayStart,
	})
}

// chainStart picks the projection origin: the live vehicle position when one
// is known, otherwise the base. A run that is mid-route with a vehicle but no
// usable position has no honest origin; projecting from base again would show
// the vehicle back at the depot.
func chainStart(r *run.Run, coords map[string]geo.Coordinate, snap *position.VehicleSnapshot, now time.Time) (eta.Waypoint, time.Time, error) {
	if snap != nil {
		return eta.Waypoint{Label: "Current position", Coord: snap.Coord}, now, nil
	}

	if r.Started(now) && r.VehicleID != "" {
		return eta.Waypoint{}, time.Time{}, errNoProjectionOrigin
	}

	base, ok := coords[run.NormalizePostcode(r.BasePostcode)]
	if !ok {
		return eta.Waypoint{}, time.Time{}, fmt.Errorf("base postcode %s unresolved", r.BasePostcode)
	}

	startAt := now
	if !r.Started(now) {
		startAt = r.StartAt
	}
	return eta.Waypoint{Label: "Base", Coord: base}, startAt, nil
}

func waypointPostcodes(r *run.Run, stops []run.Stop) []string {
	out := make([]string, 0, len(stops)+2)
	out = append(out, r.BasePostcode)
	if r.EndPostcode != "" {
		out = append(out, r.EndPostcode)
	}
	for _, s := range stops {
		out = append(out, s.Postcode)
	}
	return out
}
