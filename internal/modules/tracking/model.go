// README: Tracking coordinator commands, options and collaborator interfaces.
package tracking

import (
	"context"
	"time"

	"fleet/internal/modules/analytics"
	"fleet/internal/modules/asset"
	"fleet/internal/modules/geofence"
	"fleet/internal/modules/ledger"
	"fleet/internal/modules/proximity"
	"fleet/internal/types"
)

const (
	DefaultAccuracyM       = 10.0
	DefaultMonitorInterval = 30 * time.Second
	DefaultOfflineAfter    = 15 * time.Minute
	DefaultIdleWindow      = 30 * time.Minute
)

// FixCommand is one incoming position report. Zero-valued optional fields
// take defaults: heading 0 is inferred from movement, nil accuracy becomes
// Options.DefaultAccuracyM and an empty source becomes gps. A zero
// RecordedAt is stamped with the current time.
type FixCommand struct {
	AssetID    types.ID
	Lat        float64
	Lng        float64
	SpeedKmh   float64
	HeadingDeg float64
	AccuracyM  *float64
	Source     ledger.Source
	RecordedAt time.Time
}

type Options struct {
	DefaultAccuracyM float64
	MonitorInterval  time.Duration
	OfflineAfter     time.Duration
	IdleWindow       time.Duration
}

func (o Options) withDefaults() Options {
	if o.DefaultAccuracyM <= 0 {
		o.DefaultAccuracyM = DefaultAccuracyM
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = DefaultMonitorInterval
	}
	if o.OfflineAfter <= 0 {
		o.OfflineAfter = DefaultOfflineAfter
	}
	if o.IdleWindow <= 0 {
		o.IdleWindow = DefaultIdleWindow
	}
	return o
}

// TxRunner groups store writes into one unit of work.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type GeofenceCheck = geofence.Check

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Assets    asset.Repository
	// Registry registers new assets; built over Assets when nil.
	Registry  *asset.Service
	Ledger    *ledger.Service
	Engine    *geofence.Engine
	Analytics *analytics.Service
	Proximity *proximity.Service
	Publisher geofence.Publisher
	Tx        TxRunner
}
