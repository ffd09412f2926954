package progress

// Merge reconciles a locally computed record with the persisted remote one so
// that independent writers (live view, backend sweep, manual actions) never
// undo each other's completions.
//
// The completed set is the union of both sides: monotonic, commutative, and
// idempotent, so write order across writers does not matter. Dwell tracking
// (OnSiteID/OnSiteSince/LastInside) is taken from the local side — it reflects
// the freshest geofence evaluation, and the remote is only trusted to
// contribute newly discovered completions, never to retract a local one or
// overwrite local dwell state.
func Merge(local, remote Record) Record {
	out := local.Clone()

	for id := range remote.State.Completed {
		out.State.Completed[id] = struct{}{}
	}

	for id, rm := range remote.Meta {
		lm, ok := out.Meta[id]
		if !ok {
			out.Meta[id] = rm.clone()
			continue
		}
		// Both sides know the stop: keep local stamps, fill gaps from remote.
		if lm.ArrivedAt == nil && rm.ArrivedAt != nil {
			t := *rm.ArrivedAt
			lm.ArrivedAt = &t
		}
		if lm.DepartedAt == nil && rm.DepartedAt != nil {
			t := *rm.DepartedAt
			lm.DepartedAt = &t
		}
		if lm.By == "" {
			lm.By = rm.By
		}
		out.Meta[id] = lm
	}

	if remote.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = remote.UpdatedAt
	}

	return out
}
