// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet/internal/http/handlers"
	"fleet/internal/http/middleware"
	"fleet/internal/infra"
	"fleet/internal/modules/asset"
	"fleet/internal/modules/tracking"
)

func NewRouter(
	assetService *asset.Service,
	coordinator *tracking.Coordinator,
	verifier infra.TokenVerifier,
) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")
	if verifier != nil {
		api.Use(middleware.Auth(verifier))
	}
	operator := middleware.RequireRole(middleware.RoleOperator)
	anyRole := middleware.RequireRole(middleware.RoleOperator, middleware.RoleDevice)

	assetHandler := handlers.NewAssetHandler(assetService, coordinator)
	api.POST("/assets", operator, assetHandler.Register)
	api.GET("/assets", operator, assetHandler.List)
	api.GET("/assets/:id", operator, assetHandler.Get)
	api.PATCH("/assets/:id/status", operator, assetHandler.SetStatus)

	locationHandler := handlers.NewLocationHandler(coordinator)
	api.POST("/assets/:id/location", anyRole, locationHandler.RecordFix)
	api.GET("/assets/:id/history", operator, locationHandler.History)
	api.GET("/assets/:id/trip", operator, locationHandler.TripDistance)
	api.GET("/assets/:id/idle", operator, locationHandler.Idle)

	geofenceHandler := handlers.NewGeofenceHandler(assetService, coordinator)
	api.GET("/assets/:id/geofences/:geofence_id", operator, geofenceHandler.Check)
	api.POST("/geofences", operator, geofenceHandler.Create)
	api.GET("/geofences", operator, geofenceHandler.List)
	api.GET("/geofences/:id", operator, geofenceHandler.Get)
	api.PATCH("/geofences/:id", operator, geofenceHandler.SetActive)
	api.GET("/geofence-events", operator, geofenceHandler.Events)

	fleetHandler := handlers.NewFleetHandler(coordinator)
	api.GET("/fleet/status", operator, fleetHandler.Status)
	api.GET("/proximity", operator, fleetHandler.Near)

	return r
}
