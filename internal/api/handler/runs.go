package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/api/models"
	"github.com/routetrack/routetrack/internal/api/response"
	"github.com/routetrack/routetrack/internal/orchestrator"
	"github.com/routetrack/routetrack/internal/progress"
	"github.com/routetrack/routetrack/internal/run"
)

// RunsHandler serves the live tracking views and manual progress actions.
// Observing a run through the scheduler starts its polling loop; the handler
// itself only reads snapshots and applies actions.
type RunsHandler struct {
	scheduler *orchestrator.Scheduler
	logger    zerolog.Logger
}

// NewRunsHandler creates a new RunsHandler.
func NewRunsHandler(scheduler *orchestrator.Scheduler, logger zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// Progress handles GET /v1/runs/{runID}/progress.
func (h *RunsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.observe(w, r)
	if !ok {
		return
	}

	resp := models.NewProgressResponse(snap.Run, snap.Progress, snap.Vehicle, snap.LastErr)
	response.JSON(w, r, http.StatusOK, resp)
}

// Eta handles GET /v1/runs/{runID}/eta.
func (h *RunsHandler) Eta(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.observe(w, r)
	if !ok {
		return
	}

	resp := models.EtaResponse{
		RunID:    snap.Run.ID,
		Chain:    snap.Chain,
		Status:   snap.LastErr,
		TickedAt: models.Timestamp(snap.TickedAt),
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// CompleteStop handles POST /v1/runs/{runID}/stops/{stopID}/complete.
func (h *RunsHandler) CompleteStop(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, orchestrator.Action{
		Type:   orchestrator.ActionComplete,
		StopID: chi.URLParam(r, "stopID"),
	})
}

// UndoStop handles DELETE /v1/runs/{runID}/stops/{stopID}/complete.
func (h *RunsHandler) UndoStop(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, orchestrator.Action{
		Type:   orchestrator.ActionUndo,
		StopID: chi.URLParam(r, "stopID"),
	})
}

// ResetProgress handles POST /v1/runs/{runID}/progress/reset.
func (h *RunsHandler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, orchestrator.Action{
		Type: orchestrator.ActionReset,
	})
}

// observe returns a ticked snapshot for the run in the URL, writing the error
// response itself when the run cannot be served.
func (h *RunsHandler) observe(w http.ResponseWriter, r *http.Request) (orchestrator.Snapshot, bool) {
	runID := chi.URLParam(r, "runID")

	orch := h.scheduler.Observe(runID)
	snap := orch.Snapshot()

	// First observation: the polling loop is starting up but the client wants
	// an answer now, so tick synchronously.
	if snap.TickedAt.IsZero() {
		if err := orch.Tick(r.Context()); err != nil && errors.Is(err, run.ErrRunNotFound) {
			response.NotFound(w, r, "Run not found: "+runID)
			return orchestrator.Snapshot{}, false
		}
		snap = orch.Snapshot()
	}

	if snap.Run == nil {
		// The first tick failed before a run definition was loaded.
		h.logger.Warn().Str("run_id", runID).Str("status", snap.LastErr).Msg("run view unavailable")
		response.ServiceUnavailable(w, r, "Run data is temporarily unavailable")
		return orchestrator.Snapshot{}, false
	}

	return snap, true
}

func (h *RunsHandler) apply(w http.ResponseWriter, r *http.Request, action orchestrator.Action) {
	snap, ok := h.observe(w, r)
	if !ok {
		return
	}

	action.By = actorFor(r)

	orch := h.scheduler.Observe(snap.Run.ID)
	rec, err := orch.Apply(r.Context(), action)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrUnknownStop):
			response.NotFound(w, r, "Stop not found: "+action.StopID)
		case errors.Is(err, run.ErrRunNotFound):
			response.NotFound(w, r, "Run not found: "+snap.Run.ID)
		default:
			h.logger.Error().Err(err).Str("run_id", snap.Run.ID).Str("action", string(action.Type)).Msg("progress action failed")
			response.InternalError(w, r, "Failed to apply progress action")
		}
		return
	}

	resp := models.NewProgressResponse(snap.Run, rec, snap.Vehicle, snap.LastErr)
	response.JSON(w, r, http.StatusOK, resp)
}

// actorFor attributes a manual action to the verified actor on the request.
func actorFor(r *http.Request) progress.Actor {
	if claims := GetActor(r.Context()); claims != nil {
		return claims.Role.Actor()
	}
	return progress.ActorAdmin
}
