// README: Base handler utilities (JSON helpers, query parsing, error mapping).
package handlers

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fleet/internal/modules/asset"
	"fleet/internal/modules/ledger"
	"fleet/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps service errors: validation 400, unknown entity 404,
// conflicts 409, storage 503, anything else 500.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidCoordinate),
		errors.Is(err, types.ErrInvalidFix),
		errors.Is(err, types.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrUnknownAsset), errors.Is(err, types.ErrUnknownGeofence):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrConflict), errors.Is(err, types.ErrOutOfOrder):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrStorageUnavailable):
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusServiceUnavailable, "storage unavailable")
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// queryFloat reads an optional float query parameter.
func queryFloat(c *gin.Context, key string, def float64) (float64, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be a number", types.ErrBadRequest, key)
	}
	return f, nil
}

// requireFloat reads a mandatory float query parameter.
func requireFloat(c *gin.Context, key string) (float64, error) {
	if c.Query(key) == "" {
		return 0, fmt.Errorf("%w: %s is required", types.ErrBadRequest, key)
	}
	return queryFloat(c, key, 0)
}

type pointResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type assetResponse struct {
	ID         types.ID       `json:"id"`
	Name       string         `json:"name"`
	Type       asset.Type     `json:"type"`
	Location   pointResponse  `json:"location"`
	Status     asset.Status   `json:"status"`
	LastSeen   time.Time      `json:"last_seen"`
	SpeedKmh   float64        `json:"speed_kmh"`
	HeadingDeg float64        `json:"heading_deg"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func toAssetResponse(a *asset.Asset) assetResponse {
	return assetResponse{
		ID:         a.ID,
		Name:       a.Name,
		Type:       a.Type,
		Location:   pointResponse{Lat: a.Location.Lat, Lng: a.Location.Lng},
		Status:     a.Status,
		LastSeen:   a.LastSeen,
		SpeedKmh:   a.SpeedKmh,
		HeadingDeg: a.HeadingDeg,
		Metadata:   a.Metadata,
		CreatedAt:  a.CreatedAt,
	}
}

type locationResponse struct {
	AssetID    types.ID      `json:"asset_id"`
	Lat        float64       `json:"lat"`
	Lng        float64       `json:"lng"`
	Timestamp  time.Time     `json:"timestamp"`
	SpeedKmh   float64       `json:"speed_kmh"`
	HeadingDeg float64       `json:"heading_deg"`
	AccuracyM  float64       `json:"accuracy_m"`
	Source     ledger.Source `json:"source"`
}

func toLocationResponse(p ledger.Point) locationResponse {
	return locationResponse{
		AssetID:    p.AssetID,
		Lat:        p.Lat,
		Lng:        p.Lng,
		Timestamp:  p.Timestamp,
		SpeedKmh:   p.SpeedKmh,
		HeadingDeg: p.HeadingDeg,
		AccuracyM:  p.AccuracyM,
		Source:     p.Source,
	}
}

type geofenceResponse struct {
	ID        types.ID      `json:"id"`
	Name      string        `json:"name"`
	Center    pointResponse `json:"center"`
	RadiusKm  float64       `json:"radius_km"`
	Type      string        `json:"type"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
}

func toGeofenceResponse(g *asset.Geofence) geofenceResponse {
	return geofenceResponse{
		ID:        g.ID,
		Name:      g.Name,
		Center:    pointResponse{Lat: g.Center.Lat, Lng: g.Center.Lng},
		RadiusKm:  g.RadiusKm,
		Type:      g.Type,
		Active:    g.Active,
		CreatedAt: g.CreatedAt,
	}
}

type eventResponse struct {
	AssetID    types.ID        `json:"asset_id"`
	GeofenceID types.ID        `json:"geofence_id"`
	EventType  asset.EventType `json:"event_type"`
	Lat        float64         `json:"lat"`
	Lng        float64         `json:"lng"`
	Timestamp  time.Time       `json:"timestamp"`
}

func toEventResponses(events []asset.GeofenceEvent) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			AssetID:    e.AssetID,
			GeofenceID: e.GeofenceID,
			EventType:  e.EventType,
			Lat:        e.Lat,
			Lng:        e.Lng,
			Timestamp:  e.Timestamp,
		})
	}
	return out
}
