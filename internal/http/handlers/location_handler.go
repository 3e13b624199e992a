// README: Location handlers: fix ingestion, history, trip distance and idle checks.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet/internal/http/middleware"
	"fleet/internal/modules/ledger"
	"fleet/internal/modules/tracking"
	"fleet/internal/types"
)

type LocationHandler struct {
	tracking *tracking.Coordinator
}

func NewLocationHandler(tracking *tracking.Coordinator) *LocationHandler {
	return &LocationHandler{tracking: tracking}
}

type recordFixReq struct {
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	SpeedKmh   float64  `json:"speed_kmh"`
	HeadingDeg float64  `json:"heading_deg"`
	AccuracyM  *float64 `json:"accuracy_m"`
	Source     string   `json:"source"`
	// Optional device time (RFC 3339).
	RecordedAt *time.Time `json:"recorded_at"`
}

func (h *LocationHandler) RecordFix(c *gin.Context) {
	id := c.Param("id")
	// Devices may only report their own position.
	if !middleware.CanActAs(c, id) {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated device")
		return
	}
	var req recordFixReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	cmd := tracking.FixCommand{
		AssetID:    types.ID(id),
		Lat:        *req.Lat,
		Lng:        *req.Lng,
		SpeedKmh:   req.SpeedKmh,
		HeadingDeg: req.HeadingDeg,
		AccuracyM:  req.AccuracyM,
		Source:     ledger.Source(req.Source),
	}
	if req.RecordedAt != nil {
		cmd.RecordedAt = *req.RecordedAt
	}
	p, err := h.tracking.RecordFix(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toLocationResponse(p))
}

func (h *LocationHandler) History(c *gin.Context) {
	hours, err := queryFloat(c, "hours", 24)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	points, err := h.tracking.History(c.Request.Context(), types.ID(c.Param("id")), hours)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]locationResponse, 0, len(points))
	for _, p := range points {
		out = append(out, toLocationResponse(p))
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *LocationHandler) TripDistance(c *gin.Context) {
	hours, err := queryFloat(c, "hours", 24)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	id := types.ID(c.Param("id"))
	km, err := h.tracking.TripDistance(c.Request.Context(), id, hours)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"asset_id": id, "hours": hours, "distance_km": km})
}

func (h *LocationHandler) Idle(c *gin.Context) {
	minutes, err := queryFloat(c, "threshold_minutes", 30)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	report, err := h.tracking.DetectIdle(c.Request.Context(), types.ID(c.Param("id")), minutes)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, report)
}
