// README: Geofence engine detects enter/exit transitions against circular geofences.
package geofence

import (
	"context"
	"fmt"
	"time"

	"fleet/internal/geo"
	"fleet/internal/modules/asset"
	"fleet/internal/modules/ledger"
	"fleet/internal/types"
)

type Engine struct {
	state  StateStore
	prior  PriorLocator
	events EventLog
	now    func() time.Time
}

// NewEngine wires the engine. prior may be nil, in which case pairs with no
// stored state start outside.
func NewEngine(state StateStore, prior PriorLocator, events EventLog) *Engine {
	return &Engine{
		state:  state,
		prior:  prior,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PointInCircle reports whether (lat, lng) lies within the geofence,
// boundary included.
func PointInCircle(lat, lng float64, g asset.Geofence) bool {
	return geo.Distance(lat, lng, g.Center.Lat, g.Center.Lng) <= g.RadiusKm
}

// Plan computes the transitions p causes without touching stored state.
// Callers must serialize Plan and Commit per asset.
func (e *Engine) Plan(ctx context.Context, p ledger.Point, fences []asset.Geofence) (*Plan, error) {
	plan := &Plan{AssetID: p.AssetID}
	if len(fences) == 0 {
		return plan, nil
	}
	state, err := e.state.Load(ctx, p.AssetID)
	if err != nil {
		return nil, err
	}

	var prior *ledger.Point
	priorLoaded := false

	for _, g := range fences {
		if !g.Active {
			continue
		}
		inside := PointInCircle(p.Lat, p.Lng, g)
		prev, known := state[g.ID]
		if !known {
			if !priorLoaded && e.prior != nil {
				if prior, err = e.prior.Latest(ctx, p.AssetID); err != nil {
					return nil, err
				}
			}
			priorLoaded = true
			prev = prior != nil && PointInCircle(prior.Lat, prior.Lng, g)
		}
		if inside == prev {
			continue
		}
		eventType := asset.EventExit
		if inside {
			eventType = asset.EventEnter
		}
		plan.Events = append(plan.Events, asset.GeofenceEvent{
			AssetID:    p.AssetID,
			GeofenceID: g.ID,
			EventType:  eventType,
			Lat:        p.Lat,
			Lng:        p.Lng,
			Timestamp:  p.Timestamp,
		})
		plan.changes = append(plan.changes, change{geofenceID: g.ID, inside: inside, prev: prev, known: known})
	}
	return plan, nil
}

// Commit writes the plan's state changes. On failure the changes already
// written are undone.
func (e *Engine) Commit(ctx context.Context, plan *Plan) error {
	if plan.Empty() {
		return nil
	}
	for i, c := range plan.changes {
		if err := e.state.Set(ctx, plan.AssetID, c.geofenceID, c.inside); err != nil {
			partial := &Plan{AssetID: plan.AssetID, changes: plan.changes[:i]}
			_ = e.Rollback(ctx, partial)
			return fmt.Errorf("commit geofence state: %w", err)
		}
	}
	return nil
}

// Rollback restores the state that existed before Commit.
func (e *Engine) Rollback(ctx context.Context, plan *Plan) error {
	if plan.Empty() {
		return nil
	}
	var firstErr error
	for _, c := range plan.changes {
		var err error
		if c.known {
			err = e.state.Set(ctx, plan.AssetID, c.geofenceID, c.prev)
		} else {
			err = e.state.Delete(ctx, plan.AssetID, c.geofenceID)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Evaluate plans and commits in one step.
func (e *Engine) Evaluate(ctx context.Context, p ledger.Point, fences []asset.Geofence) ([]asset.GeofenceEvent, error) {
	plan, err := e.Plan(ctx, p, fences)
	if err != nil {
		return nil, err
	}
	if err := e.Commit(ctx, plan); err != nil {
		return nil, err
	}
	return plan.Events, nil
}

// Check evaluates containment of a location without touching state.
func (e *Engine) Check(assetID types.ID, loc types.Point, g asset.Geofence) Check {
	return Check{
		AssetID:      assetID,
		GeofenceID:   g.ID,
		GeofenceName: g.Name,
		Inside:       PointInCircle(loc.Lat, loc.Lng, g),
		DistanceKm:   geo.DistancePoints(loc, g.Center),
		RadiusKm:     g.RadiusKm,
		Location:     loc,
		CheckedAt:    e.now(),
	}
}

// RecentEvents lists events from the last withinHours, oldest first. A nil
// assetID selects every asset.
func (e *Engine) RecentEvents(ctx context.Context, assetID *types.ID, withinHours float64) ([]asset.GeofenceEvent, error) {
	if withinHours < 0 {
		return nil, fmt.Errorf("%w: hours must be non-negative", types.ErrBadRequest)
	}
	now := e.now()
	since := now.Add(-time.Duration(withinHours * float64(time.Hour)))
	events, err := e.events.ListEvents(ctx, asset.EventFilter{AssetID: assetID, Since: since, Until: now})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []asset.GeofenceEvent{}
	}
	return events, nil
}

// WithClock overrides the time source used for checks and event windows.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}
