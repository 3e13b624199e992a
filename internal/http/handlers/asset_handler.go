// README: Asset handlers for registration, lookup, listing and status changes.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet/internal/modules/asset"
	"fleet/internal/modules/tracking"
	"fleet/internal/types"
)

type AssetHandler struct {
	assets   *asset.Service
	tracking *tracking.Coordinator
}

func NewAssetHandler(assets *asset.Service, tracking *tracking.Coordinator) *AssetHandler {
	return &AssetHandler{assets: assets, tracking: tracking}
}

type registerAssetReq struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Lat      float64        `json:"lat"`
	Lng      float64        `json:"lng"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

func (h *AssetHandler) Register(c *gin.Context) {
	var req registerAssetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	a, err := h.tracking.RegisterAsset(c.Request.Context(), asset.RegisterCommand{
		ID:       types.ID(req.ID),
		Name:     req.Name,
		Type:     asset.Type(req.Type),
		Lat:      req.Lat,
		Lng:      req.Lng,
		Status:   asset.Status(req.Status),
		Metadata: req.Metadata,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toAssetResponse(a))
}

func (h *AssetHandler) Get(c *gin.Context) {
	a, err := h.assets.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toAssetResponse(a))
}

func (h *AssetHandler) List(c *gin.Context) {
	assets, err := h.assets.List(c.Request.Context(), asset.ListFilter{
		Status: asset.Status(c.Query("status")),
		Type:   asset.Type(c.Query("type")),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]assetResponse, 0, len(assets))
	for i := range assets {
		out = append(out, toAssetResponse(&assets[i]))
	}
	writeJSON(c, http.StatusOK, out)
}

type setStatusReq struct {
	Status string `json:"status"`
}

func (h *AssetHandler) SetStatus(c *gin.Context) {
	var req setStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	a, err := h.tracking.SetStatus(c.Request.Context(), types.ID(c.Param("id")), asset.Status(req.Status))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toAssetResponse(a))
}
