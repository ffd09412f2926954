package eta

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/directions"
	"github.com/routetrack/routetrack/internal/geo"
)

// Resolver resolves a normalized drive leg between two coordinates.
type Resolver interface {
	Route(ctx context.Context, from, to geo.Coordinate, n directions.Normalization) (*directions.Leg, error)
}

// BuilderConfig holds configuration for the chain builder.
type BuilderConfig struct {
	// Resolver is the directions source (required).
	Resolver Resolver

	// Logger for builder operations.
	Logger zerolog.Logger
}

// Builder projects ETA chains by folding over consecutive waypoint pairs.
type Builder struct {
	resolver Resolver
	logger   zerolog.Logger
}

// NewBuilder creates a new chain builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	return &Builder{
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
	}
}

// Build projects the full chain from the start waypoint through every stop,
// plus the final leg to end when set. The drive-time break counter carries
// across legs for the whole chain rather than resetting per leg, and arrivals
// at stops past the working-hours cutoff roll over to the next day's reopen
// time. Any leg failure aborts the whole projection: a chain with silently
// missing legs would report nonsense totals.
//
// With no stops the chain is empty and the final arrival is the start time,
// even when a return leg is configured.
func (b *Builder) Build(ctx context.Context, startAt time.Time, start Waypoint, stops []Waypoint, end *Waypoint, opts Options) (*Chain, error) {
	opts = withDefaults(opts)

	chain := &Chain{
		StartAt:      startAt,
		FinalArrival: startAt,
		Legs:         []Leg{},
	}
	if len(stops) == 0 {
		return chain, nil
	}

	waypoints := make([]Waypoint, 0, len(stops)+2)
	waypoints = append(waypoints, start)
	waypoints = append(waypoints, stops...)
	if end != nil {
		waypoints = append(waypoints, *end)
	}

	cursor := startAt
	driveSince := 0 // continuous minutes driven since the last break or rollover

	for i := 1; i < len(waypoints); i++ {
		from, to := waypoints[i-1], waypoints[i]
		// The leg back to base carries no service time and never rolls over.
		isStop := i <= len(stops)

		resolved, err := b.resolver.Route(ctx, from.Coord, to.Coord, opts.Normalization)
		if err != nil {
			return nil, fmt.Errorf("route %s to %s: %w", from.Label, to.Label, err)
		}

		breakMins := 0
		if opts.InsertBreaks {
			limit := int(opts.DriveLimit.Minutes())
			total := driveSince + resolved.Minutes
			if limit > 0 && total > limit {
				// One long leg can trip the counter more than once.
				breakMins = (total / limit) * int(opts.BreakDuration.Minutes())
				driveSince = total % limit
			} else {
				driveSince = total
			}
		} else {
			driveSince += resolved.Minutes
		}

		departAt := cursor
		arriveAt := cursor.Add(time.Duration(resolved.Minutes+breakMins) * time.Minute)
		cursor = arriveAt

		serviceMins := 0
		if isStop {
			if rolled, ok := rollover(arriveAt, opts); ok {
				arriveAt = rolled
				cursor = rolled
				driveSince = 0
			}

			serviceMins = int(opts.ServiceTime.Minutes())
			cursor = cursor.Add(time.Duration(serviceMins) * time.Minute)

			// Service running past the cutoff pushes the departure to the
			// next morning too.
			if rolled, ok := rollover(cursor, opts); ok {
				cursor = rolled
				driveSince = 0
			}
		}

		chain.Legs = append(chain.Legs, Leg{
			From:           from.Label,
			To:             to.Label,
			Km:             resolved.Km,
			DriveMinutes:   resolved.Minutes,
			BreakMinutes:   breakMins,
			ServiceMinutes: serviceMins,
			DepartAt:       departAt,
			ArriveAt:       arriveAt,
			ArrivalLabel:   arrivalLabel(arriveAt, startAt, opts),
			Geometry:       resolved.Geometry,
		})

		chain.TotalKm += resolved.Km
		chain.DriveMinutes += resolved.Minutes
		chain.BreakMinutes += breakMins
		chain.ServiceMinutes += serviceMins
		chain.FinalArrival = arriveAt
	}

	chain.TotalMinutes = chain.DriveMinutes + chain.BreakMinutes + chain.ServiceMinutes

	b.logger.Debug().
		Int("legs", len(chain.Legs)).
		Int("total_minutes", chain.TotalMinutes).
		Time("final_arrival", chain.FinalArrival).
		Msg("eta chain built")

	return chain, nil
}

func withDefaults(opts Options) Options {
	if opts.DriveLimit == 0 {
		opts.DriveLimit = 4*time.Hour + 30*time.Minute
	}
	if opts.BreakDuration == 0 {
		opts.BreakDuration = 45 * time.Minute
	}
	if opts.WorkdayEnd > 0 && opts.WorkdayStart == 0 {
		opts.WorkdayStart = 8 * time.Hour
	}
	return opts
}

// rollover reports whether t falls at or past the working-hours cutoff and,
// if so, the next calendar day's reopen time.
func rollover(t time.Time, opts Options) (time.Time, bool) {
	if opts.WorkdayEnd <= 0 || timeOfDay(t) < opts.WorkdayEnd {
		return t, false
	}
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, 1).Add(opts.WorkdayStart), true
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// arrivalLabel renders an arrival as "HH:MM", or "Next day HH:MM" when the
// arrival is no longer on the chain's starting date or sits past the cutoff.
func arrivalLabel(arriveAt, startAt time.Time, opts Options) string {
	sy, sm, sd := startAt.Date()
	ay, am, ad := arriveAt.Date()
	nextDay := ay != sy || am != sm || ad != sd
	if !nextDay && opts.WorkdayEnd > 0 && timeOfDay(arriveAt) >= opts.WorkdayEnd {
		nextDay = true
	}

	if nextDay {
		return "Next day " + arriveAt.Format("15:04")
	}
	return arriveAt.Format("15:04")
}
