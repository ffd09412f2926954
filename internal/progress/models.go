// Package progress tracks the execution state of a run: which stops are
// completed, which stop the vehicle is currently dwelling at, and the
// arrival/departure bookkeeping per completed stop.
package progress

import (
	"sort"
	"time"
)

// Actor identifies who marked a stop completed.
type Actor string

const (
	// ActorAuto means the geofence tracker completed the stop.
	ActorAuto Actor = "auto"
	// ActorAdmin means an office user completed the stop manually.
	ActorAdmin Actor = "admin"
	// ActorDriver means the driver completed the stop manually.
	ActorDriver Actor = "driver"
)

// Meta is the per-completed-stop bookkeeping.
type Meta struct {
	// ArrivedAt is the first-sample-inside timestamp. Nil for manual
	// completions made without any dwell observation.
	ArrivedAt *time.Time `json:"arrivedAt,omitempty"`

	// DepartedAt is stamped once the vehicle is observed leaving, or
	// immediately for manual completions. Never set before ArrivedAt for
	// automatic completions.
	DepartedAt *time.Time `json:"departedAt,omitempty"`

	// By records who completed the stop.
	By Actor `json:"by"`
}

// State is the authoritative execution state for one run.
//
// Completed only ever grows except through an explicit Undo or Reset; every
// automatic transition and every merge preserves existing entries.
type State struct {
	// Completed is the set of stop IDs considered delivered.
	Completed map[string]struct{}

	// OnSiteID is the stop currently being dwelled at, or empty. It refers
	// to either the first not-yet-completed stop or a just-completed stop
	// still being watched for its departure timestamp; never an arbitrary
	// other stop.
	OnSiteID string

	// OnSiteSince is when dwelling at OnSiteID began.
	// Nil exactly when OnSiteID is empty.
	OnSiteSince *time.Time

	// LastInside reports whether the most recent position sample was within
	// the completion radius of the tracked stop.
	LastInside bool
}

// NewState returns the empty execution state a run starts the day with.
func NewState() State {
	return State{Completed: make(map[string]struct{})}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Completed = make(map[string]struct{}, len(s.Completed))
	for id := range s.Completed {
		out.Completed[id] = struct{}{}
	}
	if s.OnSiteSince != nil {
		t := *s.OnSiteSince
		out.OnSiteSince = &t
	}
	return out
}

// Equal reports whether two states are field-by-field identical. Used to
// suppress redundant persistence writes.
func (s State) Equal(other State) bool {
	if len(s.Completed) != len(other.Completed) {
		return false
	}
	for id := range s.Completed {
		if _, ok := other.Completed[id]; !ok {
			return false
		}
	}
	if s.OnSiteID != other.OnSiteID || s.LastInside != other.LastInside {
		return false
	}
	return timePtrEqual(s.OnSiteSince, other.OnSiteSince)
}

// IsCompleted reports whether the stop ID is in the completed set.
func (s State) IsCompleted(id string) bool {
	_, ok := s.Completed[id]
	return ok
}

// CompletedIDs returns the completed stop IDs in deterministic order.
func (s State) CompletedIDs() []string {
	ids := make([]string, 0, len(s.Completed))
	for id := range s.Completed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// clearDwell resets the dwell-tracking fields.
func (s *State) clearDwell() {
	s.OnSiteID = ""
	s.OnSiteSince = nil
	s.LastInside = false
}

// Record is the persisted unit: one run's state plus completion metadata.
type Record struct {
	RunID     string
	State     State
	Meta      map[string]Meta
	UpdatedAt time.Time
}

// NewRecord returns the empty record a run's progress starts as.
func NewRecord(runID string) Record {
	return Record{
		RunID: runID,
		State: NewState(),
		Meta:  make(map[string]Meta),
	}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.State = r.State.Clone()
	out.Meta = make(map[string]Meta, len(r.Meta))
	for id, m := range r.Meta {
		out.Meta[id] = m.clone()
	}
	return out
}

// Equal reports whether two records carry the same state and metadata.
// UpdatedAt is ignored; it changes on every write.
func (r Record) Equal(other Record) bool {
	if r.RunID != other.RunID || !r.State.Equal(other.State) {
		return false
	}
	if len(r.Meta) != len(other.Meta) {
		return false
	}
	for id, m := range r.Meta {
		om, ok := other.Meta[id]
		if !ok || !m.equal(om) {
			return false
		}
	}
	return true
}

func (m Meta) clone() Meta {
	out := m
	if m.ArrivedAt != nil {
		t := *m.ArrivedAt
		out.ArrivedAt = &t
	}
	if m.DepartedAt != nil {
		t := *m.DepartedAt
		out.DepartedAt = &t
	}
	return out
}

func (m Meta) equal(other Meta) bool {
	return m.By == other.By &&
		timePtrEqual(m.ArrivedAt, other.ArrivedAt) &&
		timePtrEqual(m.DepartedAt, other.DepartedAt)
}

// markCompleted adds a stop to the completed set and stamps ArrivedAt once.
// Idempotent: completing an already-completed stop changes nothing.
func (r *Record) markCompleted(id string, by Actor, arrivedAt time.Time) {
	if r.State.IsCompleted(id) {
		return
	}
	r.State.Completed[id] = struct{}{}

	m := r.Meta[id]
	if m.ArrivedAt == nil {
		t := arrivedAt
		m.ArrivedAt = &t
	}
	if m.By == "" {
		m.By = by
	}
	r.Meta[id] = m
}

// markDeparted stamps the departure timestamp for a completed stop, once.
func (r *Record) markDeparted(id string, at time.Time) {
	if !r.State.IsCompleted(id) {
		return
	}
	m := r.Meta[id]
	if m.DepartedAt == nil {
		t := at
		m.DepartedAt = &t
	}
	r.Meta[id] = m
}

// MarkComplete force-completes a stop on behalf of a human actor. Manual
// completion implies immediate departure, so DepartedAt is stamped now.
// If the stop was the one being dwelled at, dwell tracking is cleared and
// the observed dwell start becomes ArrivedAt.
func (r *Record) MarkComplete(id string, by Actor, now time.Time) {
	var arrived *time.Time
	if r.State.OnSiteID == id && r.State.OnSiteSince != nil {
		t := *r.State.OnSiteSince
		arrived = &t
		r.State.clearDwell()
	}

	r.State.Completed[id] = struct{}{}
	m := r.Meta[id]
	if m.ArrivedAt == nil {
		m.ArrivedAt = arrived
	}
	if m.DepartedAt == nil {
		t := now
		m.DepartedAt = &t
	}
	m.By = by
	r.Meta[id] = m
}

// Undo removes a stop from the completed set and deletes its metadata.
// This is the only operation allowed to shrink the completed set short of
// a full Reset.
func (r *Record) Undo(id string) {
	delete(r.State.Completed, id)
	delete(r.Meta, id)
}

// Reset clears all completion state, metadata, and dwell tracking.
func (r *Record) Reset() {
	r.State = NewState()
	r.Meta = make(map[string]Meta)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
