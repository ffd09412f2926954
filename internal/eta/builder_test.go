package eta

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/routetrack/routetrack/internal/directions"
	"github.com/routetrack/routetrack/internal/geo"
)

// fakeResolver returns scripted legs in call order.
type fakeResolver struct {
	legs   []directions.Leg
	calls  int
	failAt int // 1-based call index that fails, 0 for never
}

func (f *fakeResolver) Route(_ context.Context, _, _ geo.Coordinate, _ directions.Normalization) (*directions.Leg, error) {
	f.calls++
	if f.failAt != 0 && f.calls == f.failAt {
		return nil, &directions.Error{
			Provider: "fake",
			Code:     "PROVIDER_ERROR",
			Message:  "routing source down",
			Err:      directions.ErrProviderUnavailable,
		}
	}
	leg := f.legs[f.calls-1]
	return &leg, nil
}

func wp(label string, lat, lon float64) Waypoint {
	return Waypoint{Label: label, Coord: geo.Coordinate{Lat: lat, Lon: lon}}
}

var (
	base  = wp("Base", 51.50, -0.12)
	stop1 = wp("NW1 4RY", 51.53, -0.15)
	stop2 = wp("SE10 8XJ", 51.48, 0.00)
	stop3 = wp("E1 6AN", 51.52, -0.07)
)

func TestBuilder_TotalsIdentity(t *testing.T) {
	resolver := &fakeResolver{legs: []directions.Leg{
		{Minutes: 30, Km: 20},
		{Minutes: 40, Km: 25},
		{Minutes: 50, Km: 35},
	}}
	b := NewBuilder(BuilderConfig{Resolver: resolver})

	startAt := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	endWP := base
	chain, err := b.Build(context.Background(), startAt, base, []Waypoint{stop1, stop2}, &endWP, Options{
		ServiceTime: 10 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(chain.Legs) != 3 {
		t.Fatalf("legs = %d, want 3", len(chain.Legs))
	}
	if chain.DriveMinutes != 120 {
		t.Errorf("drive = %d, want 120", chain.DriveMinutes)
	}
	// Service applies at the two stops, never on the return leg.
	if chain.ServiceMinutes != 20 {
		t.Errorf("service = %d, want 20", chain.ServiceMinutes)
	}
	if chain.Legs[2].ServiceMinutes != 0 {
		t.Error("return leg must carry no service time")
	}
	if chain.TotalMinutes != chain.DriveMinutes+chain.BreakMinutes+chain.ServiceMinutes {
		t.Errorf("totals identity violated: %d != %d+%d+%d",
			chain.TotalMinutes, chain.DriveMinutes, chain.BreakMinutes, chain.ServiceMinutes)
	}
	if chain.TotalKm != 80 {
		t.Errorf("km = %v, want 80", chain.TotalKm)
	}
	want := startAt.Add(time.Duration(chain.TotalMinutes) * time.Minute)
	if !chain.FinalArrival.Equal(want) {
		t.Errorf("final arrival = %v, want %v", chain.FinalArrival, want)
	}
}

func TestBuilder_LongSingleLegBreak(t *testing.T) {
	// ~330 minutes of continuous drive against a 270 minute limit inserts
	// exactly one 45 minute break on that leg.
	resolver := &fakeResolver{legs: []directions.Leg{{Minutes: 330, Km: 500}}}
	b := NewBuilder(BuilderConfig{Resolver: resolver})

	startAt := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)
	chain, err := b.Build(context.Background(), startAt, base, []Waypoint{stop1}, nil, Options{
		InsertBreaks:  true,
		DriveLimit:    270 * time.Minute,
		BreakDuration: 45 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}

	leg := chain.Legs[0]
	if leg.BreakMinutes != 45 {
		t.Fatalf("break = %d, want 45", leg.BreakMinutes)
	}
	if got := leg.ArriveAt.Sub(leg.DepartAt); got != 375*time.Minute {
		t.Errorf("arrive-depart = %v, want drive+break = 375m", got)
	}
}

func TestBuilder_BreakCounterCarriesAcrossLegs(t *testing.T) {
	// Total drive 811 minutes = 3 x 270 + 1: exactly three breaks, never a
	// fourth, with the counter carrying across legs instead of resetting.
	resolver := &fakeResolver{legs: []directions.Leg{
		{Minutes: 200, Km: 180},
		{Minutes: 200, Km: 180},
		{Minutes: 200, Km: 180},
		{Minutes: 211, Km: 190},
	}}
	b := NewBuilder(BuilderConfig{Resolver: resolver})

	startAt := time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)
	chain, err := b.Build(context.Background(), startAt, base, []Waypoint{stop1, stop2, stop3, stop1}, nil, Options{
		InsertBreaks:  true,
		DriveLimit:    270 * time.Minute,
		BreakDuration: 45 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}

	wantPerLeg := []int{0, 45, 45, 45}
	for i, leg := range chain.Legs {
		if leg.BreakMinutes != wantPerLeg[i] {
			t.Errorf("leg %d break = %d, want %d", i, leg.BreakMinutes, wantPerLeg[i])
		}
	}
	if chain.BreakMinutes != 135 {
		t.Errorf("total break = %d, want 135", chain.BreakMinutes)
	}
}

func TestBuilder_MultipleBreaksOnOneLeg(t *testing.T) {
	// A 610 minute leg trips the 270 minute counter twice at once.
	resolver := &fakeResolver{legs: []directions.Leg{{Minutes: 610, Km: 600}}}
	b := NewBuilder(BuilderConfig{Resolver: resolver})

	chain, err := b.Build(context.Background(), time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC),
		base, []Waypoint{stop1}, nil, Options{
			InsertBreaks:  true,
			DriveLimit:    270 * time.Minute,
			BreakDuration: 45 * time.Minute,
		})
	if err != nil {
		t.Fatal(err)
	}

	if chain.Legs[0].BreakMinutes != 90 {
		t.Errorf("break = %d, want 90", chain.Legs[0].BreakMinutes)
	}
}

func TestBuilder_RolloverAtCutoff(t *testing.T) {
	resolver := &fakeResolver{legs: []directions.Leg{
		{Minutes: 250, Km: 200},
		{Minutes: 360, Km: 320},
		{Minutes: 250, Km: 200},
	}}
	b := NewBuilder(BuilderConfig{Resolver: resolver})

	startAt := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	chain, err := b.Build(context.Background(), startAt, base, []Waypoint{stop1, stop2, stop3}, nil, Options{
		InsertBreaks:  true,
		DriveLimit:    270 * time.Minute,
		BreakDuration: 45 * time.Minute,
		WorkdayEnd:    18 * time.Hour,
		WorkdayStart:  8 * time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Leg 1: arrives 12:10, no break, no rollover.
	if got := chain.Legs[0].ArrivalLabel; got != "12:10" {
		t.Errorf("leg 0 label = %q, want 12:10", got)
	}

	// Leg 2: 250+360 drive trips the counter twice (90 min of breaks) and
	// the raw 19:40 arrival rolls to the next morning's reopen time.
	leg := chain.Legs[1]
	if leg.BreakMinutes != 90 {
		t.Errorf("leg 1 break = %d, want 90", leg.BreakMinutes)
	}
	wantArrive := time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	if !leg.ArriveAt.Equal(wantArrive) {
		t.Errorf("leg 1 arrive = %v, want %v", leg.ArriveAt, wantArrive)
	}
	if leg.ArrivalLabel != "Next day 08:00" {
		t.Errorf("leg 1 label = %q, want \"Next day 08:00\"", leg.ArrivalLabel)
	}

	// Leg 3: the overnight rest reset the drive counter, so 250 more
	// minutes insert no break.
	if chain.Legs[2].BreakMinutes != 0 {
		t.Errorf("leg 2 break = %d, want 0 after overnight reset", chain.Legs[2].BreakMinutes)
	}
	if chain.Legs[2].ArrivalLabel != "Next day 12:10" {
		t.Errorf("leg 2 label = %q, want \"Next day 12:10\"", chain.Legs[2].ArrivalLabel)
	}
}

func TestBuilder_ServiceCrossingCutoffRollsDeparture(t *testing.T) {
	resolver := &fakeResolver{legs: []directions.Leg{
		{Minutes: 235, Km: 200},
		{Minutes: 60, Km: 50},
	}}
	b := NewBuilder(BuilderConfig{Resolver: resolver})

	startAt := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	chain, err := b.Build(context.Background(), startAt, base, []Waypoint{stop1, stop2}, nil, Options{
		ServiceTime:  10 * time.Minute,
		WorkdayEnd:   18 * time.Hour,
		WorkdayStart: 8 * time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Arrival at 17:55 is in hours, but the 10 minute service pushes the
	// departure past the cutoff, so the next leg starts the next morning.
	if got := chain.Legs[0].ArrivalLabel; got != "17:55" {
		t.Errorf("leg 0 label = %q, want 17:55", got)
	}
	wantDepart := time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	if !chain.Legs[1].DepartAt.Equal(wantDepart) {
		t.Errorf("leg 1 depart = %v, want %v", chain.Legs[1].DepartAt, wantDepart)
	}
	if got := chain.Legs[1].ArrivalLabel; got != "Next day 09:00" {
		t.Errorf("leg 1 label = %q, want \"Next day 09:00\"", got)
	}
}

func TestBuilder_ReturnLegNeverRollsOver(t *testing.T) {
	resolver := &fakeResolver{legs: []directions.Leg{
		{Minutes: 60, Km: 50},
		{Minutes: 90, Km: 80},
	}}
	b := NewBuilder(BuilderConfig{Resolver: resolver})

	startAt := time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC)
	endWP := base
	chain, err := b.Build(context.Background(), startAt, base, []Waypoint{stop1}, &endWP, Options{
		ServiceTime:  30 * time.Minute,
		WorkdayEnd:   18 * time.Hour,
		WorkdayStart: 8 * time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	// The drive back to base finishes at 19:00 the same evening: arrival
	// stays put, only the label flags the late finish.
	ret := chain.Legs[1]
	wantArrive := time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)
	if !ret.ArriveAt.Equal(wantArrive) {
		t.Errorf("return arrive = %v, want %v", ret.ArriveAt, wantArrive)
	}
	if ret.ArrivalLabel != "Next day 19:00" {
		t.Errorf("return label = %q, want \"Next day 19:00\"", ret.ArrivalLabel)
	}
}

func TestBuilder_ZeroStops(t *testing.T) {
	resolver := &fakeResolver{}
	b := NewBuilder(BuilderConfig{Resolver: resolver})

	startAt := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	endWP := base
	chain, err := b.Build(context.Background(), startAt, base, nil, &endWP, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	if len(chain.Legs) != 0 {
		t.Errorf("legs = %d, want 0", len(chain.Legs))
	}
	if !chain.FinalArrival.Equal(startAt) {
		t.Errorf("final arrival = %v, want start %v", chain.FinalArrival, startAt)
	}
	if resolver.calls != 0 {
		t.Error("no routing calls expected for an empty chain")
	}
}

func TestBuilder_LegFailureAbortsChain(t *testing.T) {
	resolver := &fakeResolver{
		legs:   []directions.Leg{{Minutes: 30, Km: 20}, {}},
		failAt: 2,
	}
	b := NewBuilder(BuilderConfig{Resolver: resolver})

	_, err := b.Build(context.Background(), time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
		base, []Waypoint{stop1, stop2}, nil, DefaultOptions())
	if err == nil {
		t.Fatal("a failed leg must abort the whole projection")
	}
	if !errors.Is(err, directions.ErrProviderUnavailable) {
		t.Errorf("error must wrap the provider failure, got %v", err)
	}
}
