package progress

import (
	"testing"
	"time"
)

func recordWith(runID string, completed ...string) Record {
	rec := NewRecord(runID)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	for _, id := range completed {
		rec.markCompleted(id, ActorAuto, now)
	}
	return rec
}

func TestMerge_UnionOfCompletions(t *testing.T) {
	local := recordWith("run-1", "stop-1")
	remote := recordWith("run-1", "stop-2")

	merged := Merge(local, remote)

	if !merged.State.IsCompleted("stop-1") || !merged.State.IsCompleted("stop-2") {
		t.Errorf("completed = %v, want superset of {stop-1, stop-2}", merged.State.CompletedIDs())
	}
	if merged.Meta["stop-2"].ArrivedAt == nil {
		t.Error("remote completion must bring its metadata along")
	}
}

func TestMerge_Idempotent(t *testing.T) {
	a := recordWith("run-1", "stop-1", "stop-3")
	b := recordWith("run-1", "stop-2")

	once := Merge(a, b)
	twice := Merge(once, b)

	if !once.Equal(twice) {
		t.Error("merge(merge(a,b), b) must equal merge(a,b)")
	}
}

func TestMerge_CommutativeOnCompletions(t *testing.T) {
	a := recordWith("run-1", "stop-1")
	b := recordWith("run-1", "stop-2", "stop-3")

	ab := Merge(a, b)
	ba := Merge(b, a)

	idsAB := ab.State.CompletedIDs()
	idsBA := ba.State.CompletedIDs()
	if len(idsAB) != len(idsBA) {
		t.Fatalf("completed sets differ: %v vs %v", idsAB, idsBA)
	}
	for i := range idsAB {
		if idsAB[i] != idsBA[i] {
			t.Fatalf("completed sets differ: %v vs %v", idsAB, idsBA)
		}
	}
}

func TestMerge_LocalDwellWins(t *testing.T) {
	since := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	local := NewRecord("run-1")
	local.State.OnSiteID = "stop-2"
	local.State.OnSiteSince = &since
	local.State.LastInside = true

	remoteSince := since.Add(-10 * time.Minute)
	remote := NewRecord("run-1")
	remote.State.OnSiteID = "stop-1"
	remote.State.OnSiteSince = &remoteSince

	merged := Merge(local, remote)

	if merged.State.OnSiteID != "stop-2" {
		t.Error("local dwell state must win over remote")
	}
	if !merged.State.OnSiteSince.Equal(since) {
		t.Error("local dwell start must win over remote")
	}
	if !merged.State.LastInside {
		t.Error("local LastInside must win over remote")
	}
}

func TestMerge_RemoteNeverRetractsCompletion(t *testing.T) {
	local := recordWith("run-1", "stop-1", "stop-2")
	remote := NewRecord("run-1") // sweep that saw nothing completed

	merged := Merge(local, remote)

	if len(merged.State.Completed) != 2 {
		t.Errorf("remote emptiness must not retract local completions, got %v", merged.State.CompletedIDs())
	}
}

func TestMerge_MetaFillsGapsWithoutOverwriting(t *testing.T) {
	arrived := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	departed := arrived.Add(5 * time.Minute)

	local := recordWith("run-1", "stop-1")
	local.Meta["stop-1"] = Meta{ArrivedAt: &arrived, By: ActorAuto}

	remote := recordWith("run-1", "stop-1")
	otherArrived := arrived.Add(time.Minute)
	remote.Meta["stop-1"] = Meta{ArrivedAt: &otherArrived, DepartedAt: &departed, By: ActorAuto}

	merged := Merge(local, remote)

	m := merged.Meta["stop-1"]
	if !m.ArrivedAt.Equal(arrived) {
		t.Error("local ArrivedAt must not be overwritten")
	}
	if m.DepartedAt == nil || !m.DepartedAt.Equal(departed) {
		t.Error("remote DepartedAt must fill the local gap")
	}
}

func TestRecord_ManualCompleteWithoutGPS(t *testing.T) {
	rec := NewRecord("run-1")
	now := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)

	rec.MarkComplete("stop-3", ActorAdmin, now)

	if !rec.State.IsCompleted("stop-3") {
		t.Fatal("manual completion must take effect immediately")
	}
	m := rec.Meta["stop-3"]
	if m.By != ActorAdmin {
		t.Errorf("By = %q, want admin", m.By)
	}
	if m.DepartedAt == nil || !m.DepartedAt.Equal(now) {
		t.Error("manual completion implies immediate departure")
	}
	if m.ArrivedAt != nil {
		t.Error("no ArrivedAt without any dwell observation")
	}
}

func TestRecord_ManualCompleteWhileDwelling(t *testing.T) {
	rec := NewRecord("run-1")
	since := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	rec.State.OnSiteID = "stop-1"
	rec.State.OnSiteSince = &since
	rec.State.LastInside = true

	now := since.Add(2 * time.Minute)
	rec.MarkComplete("stop-1", ActorDriver, now)

	if rec.State.OnSiteID != "" || rec.State.OnSiteSince != nil {
		t.Error("manual completion of the dwelled stop must clear dwell tracking")
	}
	m := rec.Meta["stop-1"]
	if m.ArrivedAt == nil || !m.ArrivedAt.Equal(since) {
		t.Error("observed dwell start should become ArrivedAt")
	}
	if m.By != ActorDriver {
		t.Errorf("By = %q, want driver", m.By)
	}
}

func TestRecord_UndoAndReset(t *testing.T) {
	rec := recordWith("run-1", "stop-1", "stop-2")

	rec.Undo("stop-1")
	if rec.State.IsCompleted("stop-1") {
		t.Error("undo must remove the completion")
	}
	if _, ok := rec.Meta["stop-1"]; ok {
		t.Error("undo must delete the metadata entry")
	}
	if !rec.State.IsCompleted("stop-2") {
		t.Error("undo must not touch other completions")
	}

	rec.Reset()
	if len(rec.State.Completed) != 0 || len(rec.Meta) != 0 {
		t.Error("reset must clear everything")
	}
}

func TestMeta_ConsistencyUnderTrackerFlow(t *testing.T) {
	// For auto completions ArrivedAt is always stamped before or with
	// DepartedAt; DepartedAt never exists without ArrivedAt.
	rec := recordWith("run-1", "stop-1")
	rec.markDeparted("stop-1", time.Now())

	m := rec.Meta["stop-1"]
	if m.DepartedAt != nil && m.ArrivedAt == nil {
		t.Error("DepartedAt must never exist without ArrivedAt")
	}
	if m.ArrivedAt.After(*m.DepartedAt) {
		t.Error("ArrivedAt must not be after DepartedAt")
	}

	// markDeparted on a non-completed stop is a no-op.
	other := NewRecord("run-1")
	other.markDeparted("stop-9", time.Now())
	if _, ok := other.Meta["stop-9"]; ok {
		t.Error("departure of a non-completed stop must not create metadata")
	}
}
