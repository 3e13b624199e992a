// README: Analytics reports derived from the location ledger and asset store.
package analytics

import (
	"context"
	"time"

	"fleet/internal/modules/asset"
	"fleet/internal/modules/ledger"
	"fleet/internal/types"
)

const (
	DefaultIdleMovementKm = 0.05

	ReasonInsufficientData = "insufficient_data"
	ReasonStationary       = "stationary"
	ReasonMoving           = "moving"
)

// IdleReport describes the movement seen in [WindowStart, WindowEnd].
type IdleReport struct {
	AssetID           types.ID  `json:"asset_id"`
	IsIdle            bool      `json:"is_idle"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	MaxDisplacementKm float64   `json:"max_displacement_km"`
	ThresholdKm       float64   `json:"threshold_km"`
	Points            int       `json:"points"`
	Reason            string    `json:"reason"`
}

type FleetStatus struct {
	Total    int                  `json:"total"`
	ByStatus map[asset.Status]int `json:"by_status"`
	Assets   []AssetSummary       `json:"assets"`
}

type AssetSummary struct {
	ID       types.ID     `json:"id"`
	Name     string       `json:"name"`
	Type     asset.Type   `json:"type"`
	Status   asset.Status `json:"status"`
	LastSeen time.Time    `json:"last_seen"`
	Location types.Point  `json:"location"`
}

type History interface {
	Window(ctx context.Context, assetID types.ID, since, until time.Time) ([]ledger.Point, error)
	TripDistance(ctx context.Context, assetID types.ID, since time.Time) (float64, error)
}

type AssetLister interface {
	List(ctx context.Context, f asset.ListFilter) ([]asset.Asset, error)
}
