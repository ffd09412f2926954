// Package handler provides HTTP handlers for the RouteTrack API.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/routetrack/routetrack/internal/api/models"
	"github.com/routetrack/routetrack/internal/api/response"
)

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunCounter reports how many run polling loops are live.
type RunCounter interface {
	Running() int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	db        Pinger
	scheduler RunCounter
}

// NewOpsHandler creates a new OpsHandler. db and scheduler may be nil
// when the corresponding subsystem is not wired (tests, worker mode).
func NewOpsHandler(version, buildTime string, db Pinger, scheduler RunCounter) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		db:        db,
		scheduler: scheduler,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	if err := h.pingDB(r.Context()); err != nil {
		health.Status = models.HealthStatusFail
		health.Details = map[string]interface{}{"database": err.Error()}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}

	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())

	dbStatus := models.HealthStatusOK
	var dbDetail *string
	if err := h.pingDB(r.Context()); err != nil {
		dbStatus = models.HealthStatusFail
		msg := err.Error()
		dbDetail = &msg
	}

	overall := models.HealthStatusOK
	if dbStatus != models.HealthStatusOK {
		overall = models.HealthStatusDegraded
	}

	status := models.SystemStatus{
		Status: overall,
		Time:   now,
		Subsystems: []models.SubsystemStatus{
			{Name: "cloud-sql", Status: dbStatus, Detail: dbDetail},
		},
		Providers: []models.ProviderStatus{
			{Provider: "fleettrack", Status: models.HealthStatusOK},
			{Provider: "openrouteservice", Status: models.HealthStatusOK},
		},
	}
	if h.scheduler != nil {
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name:   "scheduler",
			Status: models.HealthStatusOK,
			Detail: runningDetail(h.scheduler.Running()),
		})
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingDB(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.db.Ping(ctx)
}

func runningDetail(n int) *string {
	s := "active runs: " + strconv.Itoa(n)
	return &s
}
