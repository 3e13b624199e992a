// README: Geofence engine types: per-pair transition state, evaluation plans and checks.
package geofence

import (
	"context"
	"time"

	"fleet/internal/modules/asset"
	"fleet/internal/modules/ledger"
	"fleet/internal/types"
)

// StateStore keeps the last known inside/outside flag for each
// (asset, geofence) pair. A pair absent from Load has never been evaluated.
type StateStore interface {
	Load(ctx context.Context, assetID types.ID) (map[types.ID]bool, error)
	Set(ctx context.Context, assetID, geofenceID types.ID, inside bool) error
	Delete(ctx context.Context, assetID, geofenceID types.ID) error
}

// PriorLocator returns the asset's most recent ledger point, or nil.
type PriorLocator interface {
	Latest(ctx context.Context, assetID types.ID) (*ledger.Point, error)
}

type EventLog interface {
	ListEvents(ctx context.Context, f asset.EventFilter) ([]asset.GeofenceEvent, error)
}

// Publisher fans geofence events out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, events []asset.GeofenceEvent) error
}

type change struct {
	geofenceID types.ID
	inside     bool
	prev       bool
	known      bool
}

// Plan is the outcome of evaluating one fix: the events to emit and the
// state changes to commit once they are persisted.
type Plan struct {
	AssetID types.ID
	Events  []asset.GeofenceEvent
	changes []change
}

func (p *Plan) Empty() bool {
	return p == nil || len(p.changes) == 0
}

// Check is a read-only containment report for one asset and geofence.
type Check struct {
	AssetID      types.ID    `json:"asset_id"`
	GeofenceID   types.ID    `json:"geofence_id"`
	GeofenceName string      `json:"geofence_name"`
	Inside       bool        `json:"inside"`
	DistanceKm   float64     `json:"distance_km"`
	RadiusKm     float64     `json:"radius_km"`
	Location     types.Point `json:"location"`
	CheckedAt    time.Time   `json:"checked_at"`
}
