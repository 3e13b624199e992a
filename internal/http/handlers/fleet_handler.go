// README: Fleet-wide handlers: status summary and proximity search.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet/internal/modules/tracking"
)

type FleetHandler struct {
	tracking *tracking.Coordinator
}

func NewFleetHandler(tracking *tracking.Coordinator) *FleetHandler {
	return &FleetHandler{tracking: tracking}
}

func (h *FleetHandler) Status(c *gin.Context) {
	status, err := h.tracking.FleetStatus(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, status)
}

type nearbyResponse struct {
	Asset      assetResponse `json:"asset"`
	DistanceKm float64       `json:"distance_km"`
}

func (h *FleetHandler) Near(c *gin.Context) {
	lat, err := requireFloat(c, "lat")
	if err != nil {
		writeDomainError(c, err)
		return
	}
	lng, err := requireFloat(c, "lng")
	if err != nil {
		writeDomainError(c, err)
		return
	}
	radius, err := queryFloat(c, "radius_km", 5)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	near, err := h.tracking.AssetsNear(c.Request.Context(), lat, lng, radius)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]nearbyResponse, 0, len(near))
	for i := range near {
		out = append(out, nearbyResponse{Asset: toAssetResponse(&near[i].Asset), DistanceKm: near[i].DistanceKm})
	}
	writeJSON(c, http.StatusOK, out)
}
