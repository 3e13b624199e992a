// README: Geofence handlers for administration, containment checks and the event log.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet/internal/modules/asset"
	"fleet/internal/modules/tracking"
	"fleet/internal/types"
)

type GeofenceHandler struct {
	assets   *asset.Service
	tracking *tracking.Coordinator
}

func NewGeofenceHandler(assets *asset.Service, tracking *tracking.Coordinator) *GeofenceHandler {
	return &GeofenceHandler{assets: assets, tracking: tracking}
}

type createGeofenceReq struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	RadiusKm float64 `json:"radius_km"`
	Type     string  `json:"type"`
	Active   *bool   `json:"active"`
}

func (h *GeofenceHandler) Create(c *gin.Context) {
	var req createGeofenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	g, err := h.assets.CreateGeofence(c.Request.Context(), asset.GeofenceCommand{
		ID:       types.ID(req.ID),
		Name:     req.Name,
		Lat:      req.Lat,
		Lng:      req.Lng,
		RadiusKm: req.RadiusKm,
		Type:     req.Type,
		Inactive: req.Active != nil && !*req.Active,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toGeofenceResponse(g))
}

func (h *GeofenceHandler) List(c *gin.Context) {
	fences, err := h.assets.Geofences(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]geofenceResponse, 0, len(fences))
	for i := range fences {
		out = append(out, toGeofenceResponse(&fences[i]))
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *GeofenceHandler) Get(c *gin.Context) {
	g, err := h.assets.Geofence(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toGeofenceResponse(g))
}

type setActiveReq struct {
	Active *bool `json:"active"`
}

func (h *GeofenceHandler) SetActive(c *gin.Context) {
	var req setActiveReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		writeError(c, http.StatusBadRequest, "active is required")
		return
	}
	g, err := h.assets.SetGeofenceActive(c.Request.Context(), types.ID(c.Param("id")), *req.Active)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toGeofenceResponse(g))
}

func (h *GeofenceHandler) Check(c *gin.Context) {
	check, err := h.tracking.CheckGeofence(c.Request.Context(), types.ID(c.Param("id")), types.ID(c.Param("geofence_id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, check)
}

func (h *GeofenceHandler) Events(c *gin.Context) {
	hours, err := queryFloat(c, "hours", 24)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	var assetID *types.ID
	if v := c.Query("asset_id"); v != "" {
		id := types.ID(v)
		assetID = &id
	}
	events, err := h.tracking.RecentEvents(c.Request.Context(), assetID, hours)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toEventResponses(events))
}
