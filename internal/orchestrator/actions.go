package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/routetrack/routetrack/internal/progress"
	"github.com/routetrack/routetrack/internal/run"
)

// Action errors.
var (
	// ErrUnknownStop indicates the stop ID is not in the run's current list.
	ErrUnknownStop = errors.New("unknown stop")
	// ErrUnknownAction indicates an unrecognized action type.
	ErrUnknownAction = errors.New("unknown action")
)

// ActionType identifies a manual progress action.
type ActionType string

const (
	// ActionComplete marks a stop completed on behalf of a human actor.
	ActionComplete ActionType = "complete"
	// ActionUndo removes a completion.
	ActionUndo ActionType = "undo"
	// ActionReset clears all progress for the run.
	ActionReset ActionType = "reset"
)

// Action is one manual progress mutation.
type Action struct {
	Type   ActionType
	StopID string

	// By attributes the action (admin or driver).
	By progress.Actor
}

// Apply executes a manual action and persists it immediately, bypassing the
// debounce window. Completions go through the merge discipline. Undo re-reads
// the persisted record and shrinks only by its target, so a concurrent
// writer's completions of other stops survive; reset alone replaces the
// record wholesale.
func (o *Orchestrator) Apply(ctx context.Context, action Action) (progress.Record, error) {
	rec, err := o.record(ctx)
	if err != nil {
		return progress.Record{}, err
	}

	now := o.now()

	var merged progress.Record
	switch action.Type {
	case ActionComplete:
		if err := o.validateStop(ctx, action.StopID); err != nil {
			return progress.Record{}, err
		}
		rec.MarkComplete(action.StopID, action.By, now)
		merged, err = o.store.SaveNow(ctx, rec)

	case ActionUndo:
		merged, err = o.store.Retract(ctx, rec, action.StopID)

	case ActionReset:
		rec.Reset()
		merged, err = o.store.Overwrite(ctx, rec)

	default:
		return progress.Record{}, fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
	}
	if err != nil {
		return progress.Record{}, err
	}

	o.logger.Info().
		Str("action", string(action.Type)).
		Str("stop_id", action.StopID).
		Str("by", string(action.By)).
		Msg("manual progress action applied")

	// Readers see the new progress immediately; the chain catches up on the
	// next tick.
	o.mu.Lock()
	o.rec = merged.Clone()
	o.loaded = true
	o.snap.Progress = merged
	o.mu.Unlock()

	return merged, nil
}

func (o *Orchestrator) validateStop(ctx context.Context, stopID string) error {
	r, err := o.runs.Get(ctx, o.runID)
	if err != nil {
		return err
	}
	if run.StopByID(r.Stops(), stopID) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStop, stopID)
	}
	return nil
}
