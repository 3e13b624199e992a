// README: Asset and geofence records plus the derived geofence event log.
package asset

import (
	"context"
	"time"

	"fleet/internal/types"
)

type Type string

const (
	TypeVehicle    Type = "vehicle"
	TypeDrone      Type = "drone"
	TypeContainer  Type = "container"
	TypeSensorNode Type = "sensor_node"
	TypeRobot      Type = "robot"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusIdle        Status = "idle"
	StatusOffline     Status = "offline"
	StatusMaintenance Status = "maintenance"
)

// Asset is a tracked unit. Location is always the most recent ledger entry
// once the asset has reported a fix.
type Asset struct {
	ID         types.ID
	Name       string
	Type       Type
	Location   types.Point
	Status     Status
	LastSeen   time.Time
	SpeedKmh   float64
	HeadingDeg float64
	Metadata   map[string]any
	CreatedAt  time.Time
}

const GeofenceCircle = "circle"

type Geofence struct {
	ID        types.ID
	Name      string
	Center    types.Point
	RadiusKm  float64
	Type      string
	Active    bool
	CreatedAt time.Time
}

type EventType string

const (
	EventEnter EventType = "enter"
	EventExit  EventType = "exit"
)

// GeofenceEvent records a boundary crossing. Only the geofence engine
// creates these.
type GeofenceEvent struct {
	AssetID    types.ID
	GeofenceID types.ID
	EventType  EventType
	Lat        float64
	Lng        float64
	Timestamp  time.Time
}

type ListFilter struct {
	Status Status
	Type   Type
}

type EventFilter struct {
	AssetID *types.ID
	Since   time.Time
	Until   time.Time
}

// Repository is the durable keyed storage for assets, geofences and
// geofence events.
type Repository interface {
	Get(ctx context.Context, id types.ID) (*Asset, error)
	Upsert(ctx context.Context, a *Asset) (*Asset, error)
	List(ctx context.Context, f ListFilter) ([]Asset, error)
	Geofence(ctx context.Context, id types.ID) (*Geofence, error)
	Geofences(ctx context.Context, activeOnly bool) ([]Geofence, error)
	UpsertGeofence(ctx context.Context, g *Geofence) (*Geofence, error)
	AppendEvent(ctx context.Context, e GeofenceEvent) error
	ListEvents(ctx context.Context, f EventFilter) ([]GeofenceEvent, error)
}

func ValidType(t Type) bool {
	switch t {
	case TypeVehicle, TypeDrone, TypeContainer, TypeSensorNode, TypeRobot:
		return true
	}
	return false
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusIdle, StatusOffline, StatusMaintenance:
		return true
	}
	return false
}

func (a *Asset) clone() *Asset {
	cp := *a
	if a.Metadata != nil {
		cp.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
