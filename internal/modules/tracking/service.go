// README: Tracking coordinator records fixes atomically and fronts the query surface.
package tracking

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"fleet/internal/geo"
	"fleet/internal/modules/analytics"
	"fleet/internal/modules/asset"
	"fleet/internal/modules/geofence"
	"fleet/internal/modules/ledger"
	"fleet/internal/modules/proximity"
	"fleet/internal/types"
)

type Coordinator struct {
	assets    asset.Repository
	registry  *asset.Service
	ledger    *ledger.Service
	engine    *geofence.Engine
	analytics *analytics.Service
	proximity *proximity.Service
	publisher geofence.Publisher
	tx        TxRunner
	locks     *keyedMutex
	opts      Options
	now       func() time.Time
}

func NewCoordinator(d Deps, opts Options) *Coordinator {
	pub := d.Publisher
	if pub == nil {
		pub = geofence.NopPublisher{}
	}
	registry := d.Registry
	if registry == nil {
		registry = asset.NewService(d.Assets)
	}
	return &Coordinator{
		assets:    d.Assets,
		registry:  registry,
		ledger:    d.Ledger,
		engine:    d.Engine,
		analytics: d.Analytics,
		proximity: d.Proximity,
		publisher: pub,
		tx:        d.Tx,
		locks:     newKeyedMutex(),
		opts:      opts.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordFix appends a fix to the ledger, moves the asset, evaluates active
// geofences and persists resulting events as one unit. Validation and
// unknown-asset failures leave every store untouched.
func (c *Coordinator) RecordFix(ctx context.Context, cmd FixCommand) (ledger.Point, error) {
	p := ledger.Point{
		AssetID:    cmd.AssetID,
		Lat:        cmd.Lat,
		Lng:        cmd.Lng,
		SpeedKmh:   cmd.SpeedKmh,
		HeadingDeg: cmd.HeadingDeg,
		AccuracyM:  c.opts.DefaultAccuracyM,
		Source:     cmd.Source,
		Timestamp:  cmd.RecordedAt,
	}
	if cmd.AccuracyM != nil {
		p.AccuracyM = *cmd.AccuracyM
	}
	if p.Source == "" {
		p.Source = ledger.SourceGPS
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = c.now()
	}
	if err := ledger.Validate(p); err != nil {
		return ledger.Point{}, err
	}

	unlock := c.locks.Lock(cmd.AssetID)
	defer unlock()

	a, err := c.assets.Get(ctx, cmd.AssetID)
	if err != nil {
		return ledger.Point{}, err
	}
	prior, err := c.ledger.Latest(ctx, cmd.AssetID)
	if err != nil {
		return ledger.Point{}, err
	}
	if prior != nil && p.Timestamp.Before(prior.Timestamp) {
		if !cmd.RecordedAt.IsZero() {
			return ledger.Point{}, fmt.Errorf("%w: fix at %s precedes %s", types.ErrOutOfOrder,
				p.Timestamp.Format(time.RFC3339Nano), prior.Timestamp.Format(time.RFC3339Nano))
		}
		p.Timestamp = prior.Timestamp
	}
	p.Timestamp = p.Timestamp.UTC()

	if p.HeadingDeg == 0 && (a.Location.Lat != p.Lat || a.Location.Lng != p.Lng) {
		p.HeadingDeg = geo.Bearing(a.Location.Lat, a.Location.Lng, p.Lat, p.Lng)
	}

	fences, err := c.assets.Geofences(ctx, true)
	if err != nil {
		return ledger.Point{}, err
	}
	plan, err := c.engine.Plan(ctx, p, fences)
	if err != nil {
		return ledger.Point{}, err
	}

	committed := false
	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.ledger.Append(ctx, p); err != nil {
			return err
		}
		updated := *a
		updated.Location = p.Position()
		updated.SpeedKmh = p.SpeedKmh
		updated.HeadingDeg = p.HeadingDeg
		updated.LastSeen = p.Timestamp
		if updated.Status != asset.StatusMaintenance {
			updated.Status = asset.StatusActive
		}
		if _, err := c.assets.Upsert(ctx, &updated); err != nil {
			return err
		}
		for _, e := range plan.Events {
			if err := c.assets.AppendEvent(ctx, e); err != nil {
				return err
			}
		}
		if err := c.engine.Commit(ctx, plan); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		if committed {
			if rerr := c.engine.Rollback(ctx, plan); rerr != nil {
				log.Printf("tracking: rollback geofence state for %s: %v", p.AssetID, rerr)
			}
		}
		return ledger.Point{}, err
	}

	if err := c.proximity.Update(ctx, p.AssetID, p.Position()); err != nil {
		log.Printf("tracking: proximity update for %s: %v", p.AssetID, err)
	}
	for _, e := range plan.Events {
		log.Printf("GEOFENCE %s asset=%s fence=%s lat=%.6f lng=%.6f",
			strings.ToUpper(string(e.EventType)), e.AssetID, e.GeofenceID, e.Lat, e.Lng)
	}
	if len(plan.Events) > 0 {
		if err := c.publisher.Publish(ctx, plan.Events); err != nil {
			log.Printf("tracking: publish %d geofence events for %s: %v", len(plan.Events), p.AssetID, err)
		}
	}
	return p, nil
}

// RegisterAsset registers an asset and places it in the proximity index at
// its initial location, so it is searchable before its first fix.
func (c *Coordinator) RegisterAsset(ctx context.Context, cmd asset.RegisterCommand) (*asset.Asset, error) {
	if cmd.ID != "" {
		unlock := c.locks.Lock(cmd.ID)
		defer unlock()
	}
	a, err := c.registry.Register(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := c.proximity.Update(ctx, a.ID, a.Location); err != nil {
		log.Printf("tracking: index %s after register: %v", a.ID, err)
	}
	return a, nil
}

// SetStatus changes an asset's status, for example to take it into or out
// of maintenance.
func (c *Coordinator) SetStatus(ctx context.Context, assetID types.ID, status asset.Status) (*asset.Asset, error) {
	if !asset.ValidStatus(status) {
		return nil, fmt.Errorf("%w: status %q", types.ErrBadRequest, status)
	}
	unlock := c.locks.Lock(assetID)
	defer unlock()

	a, err := c.assets.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if a.Status == status {
		return a, nil
	}
	a.Status = status
	return c.assets.Upsert(ctx, a)
}

func (c *Coordinator) History(ctx context.Context, assetID types.ID, hours float64) ([]ledger.Point, error) {
	since, err := c.since(hours)
	if err != nil {
		return nil, err
	}
	return c.ledger.History(ctx, assetID, since)
}

func (c *Coordinator) TripDistance(ctx context.Context, assetID types.ID, hours float64) (float64, error) {
	if _, err := c.since(hours); err != nil {
		return 0, err
	}
	return c.analytics.TripDistance(ctx, assetID, hours)
}

func (c *Coordinator) DetectIdle(ctx context.Context, assetID types.ID, thresholdMinutes float64) (analytics.IdleReport, error) {
	return c.analytics.DetectIdle(ctx, assetID, thresholdMinutes)
}

func (c *Coordinator) AssetsNear(ctx context.Context, lat, lng, radiusKm float64) ([]proximity.Nearby, error) {
	return c.proximity.AssetsNear(ctx, lat, lng, radiusKm)
}

// CheckGeofence reports whether the asset's current location lies inside
// the geofence. It never changes transition state or emits events.
func (c *Coordinator) CheckGeofence(ctx context.Context, assetID, geofenceID types.ID) (GeofenceCheck, error) {
	a, err := c.assets.Get(ctx, assetID)
	if err != nil {
		return GeofenceCheck{}, err
	}
	g, err := c.assets.Geofence(ctx, geofenceID)
	if err != nil {
		return GeofenceCheck{}, err
	}
	return c.engine.Check(a.ID, a.Location, *g), nil
}

func (c *Coordinator) RecentEvents(ctx context.Context, assetID *types.ID, hours float64) ([]asset.GeofenceEvent, error) {
	if assetID != nil {
		if _, err := c.assets.Get(ctx, *assetID); err != nil {
			return nil, err
		}
	}
	return c.engine.RecentEvents(ctx, assetID, hours)
}

func (c *Coordinator) FleetStatus(ctx context.Context) (analytics.FleetStatus, error) {
	return c.analytics.FleetStatus(ctx)
}

func (c *Coordinator) since(hours float64) (time.Time, error) {
	if math.IsNaN(hours) || hours < 0 {
		return time.Time{}, fmt.Errorf("%w: hours must be non-negative", types.ErrBadRequest)
	}
	return c.now().Add(-time.Duration(hours * float64(time.Hour))), nil
}

// WithClock overrides the time source used for fix timestamps and query
// windows.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}
