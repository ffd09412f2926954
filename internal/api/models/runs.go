package models

import (
	"github.com/routetrack/routetrack/internal/eta"
	"github.com/routetrack/routetrack/internal/position"
	"github.com/routetrack/routetrack/internal/progress"
	"github.com/routetrack/routetrack/internal/run"
)

// StopProgress is one stop's tracking state in a progress response.
type StopProgress struct {
	ID          string `json:"id"`
	Index       int    `json:"index"`
	Postcode    string `json:"postcode"`
	BookingTime string `json:"bookingTime,omitempty"`
	Reference   string `json:"reference,omitempty"`

	Completed  bool       `json:"completed"`
	ArrivedAt  *Timestamp `json:"arrivedAt,omitempty"`
	DepartedAt *Timestamp `json:"departedAt,omitempty"`
	By         string     `json:"by,omitempty"`
}

// VehiclePosition is the latest known vehicle sample.
type VehiclePosition struct {
	VehicleID string    `json:"vehicleId"`
	Position  Point     `json:"position"`
	SpeedKph  *float64  `json:"speedKph,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}

// ProgressResponse is the live progress view for a run.
type ProgressResponse struct {
	RunID          string         `json:"runId"`
	RunName        string         `json:"runName,omitempty"`
	Stops          []StopProgress `json:"stops"`
	CompletedCount int            `json:"completedCount"`

	OnSiteStopID string     `json:"onSiteStopId,omitempty"`
	OnSiteSince  *Timestamp `json:"onSiteSince,omitempty"`

	Vehicle *VehiclePosition `json:"vehicle,omitempty"`

	// Status is a transient indicator ("position source unavailable" and the
	// like); empty when the last evaluation was clean.
	Status string `json:"status,omitempty"`

	UpdatedAt Timestamp `json:"updatedAt"`
}

// EtaResponse is the projected schedule for a run. Chain is null while the
// projection is unavailable; Status says why.
type EtaResponse struct {
	RunID    string     `json:"runId"`
	Chain    *eta.Chain `json:"chain"`
	Status   string     `json:"status,omitempty"`
	TickedAt Timestamp  `json:"tickedAt"`
}

// NewProgressResponse builds a progress response from domain state.
func NewProgressResponse(r *run.Run, rec progress.Record, vehicle *position.VehicleSnapshot, status string) ProgressResponse {
	stops := r.Stops()
	out := ProgressResponse{
		RunID:     r.ID,
		RunName:   r.Name,
		Stops:     make([]StopProgress, 0, len(stops)),
		UpdatedAt: Timestamp(rec.UpdatedAt),
		Status:    status,
	}

	for _, s := range stops {
		sp := StopProgress{
			ID:          s.ID,
			Index:       s.Index,
			Postcode:    s.Postcode,
			BookingTime: s.BookingTime,
			Reference:   s.Reference,
			Completed:   rec.State.IsCompleted(s.ID),
		}
		if meta, ok := rec.Meta[s.ID]; ok {
			if meta.ArrivedAt != nil {
				ts := Timestamp(*meta.ArrivedAt)
				sp.ArrivedAt = &ts
			}
			if meta.DepartedAt != nil {
				ts := Timestamp(*meta.DepartedAt)
				sp.DepartedAt = &ts
			}
			sp.By = string(meta.By)
		}
		if sp.Completed {
			out.CompletedCount++
		}
		out.Stops = append(out.Stops, sp)
	}

	out.OnSiteStopID = rec.State.OnSiteID
	if rec.State.OnSiteSince != nil {
		ts := Timestamp(*rec.State.OnSiteSince)
		out.OnSiteSince = &ts
	}

	if vehicle != nil {
		out.Vehicle = &VehiclePosition{
			VehicleID: vehicle.VehicleID,
			Position:  Point{Lat: vehicle.Coord.Lat, Lon: vehicle.Coord.Lon},
			SpeedKph:  vehicle.SpeedKph,
			Heading:   vehicle.Heading,
			Timestamp: Timestamp(vehicle.Timestamp),
		}
	}

	return out
}
