// README: In-memory asset store used when no database is configured and in tests.
package asset

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleet/internal/types"
)

var _ Repository = (*MemoryStore)(nil)

type MemoryStore struct {
	mu        sync.RWMutex
	assets    map[types.ID]*Asset
	geofences map[types.ID]Geofence
	events    []GeofenceEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:    make(map[types.ID]*Asset),
		geofences: make(map[types.ID]Geofence),
	}
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, types.ErrUnknownAsset
	}
	return a.clone(), nil
}

func (m *MemoryStore) Upsert(_ context.Context, a *Asset) (*Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := a.clone()
	if prev, ok := m.assets[a.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	m.assets[a.ID] = cp
	return cp.clone(), nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Asset, 0, len(m.assets))
	for _, a := range m.assets {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		out = append(out, *a.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Geofence(_ context.Context, id types.ID) (*Geofence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.geofences[id]
	if !ok {
		return nil, types.ErrUnknownGeofence
	}
	return &g, nil
}

func (m *MemoryStore) Geofences(_ context.Context, activeOnly bool) ([]Geofence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Geofence, 0, len(m.geofences))
	for _, g := range m.geofences {
		if activeOnly && !g.Active {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertGeofence(_ context.Context, g *Geofence) (*Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	if prev, ok := m.geofences[g.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	m.geofences[g.ID] = cp
	return &cp, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e GeofenceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryStore) ListEvents(_ context.Context, f EventFilter) ([]GeofenceEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until := f.Until
	if until.IsZero() {
		until = time.Now().UTC()
	}
	var out []GeofenceEvent
	for _, e := range m.events {
		if f.AssetID != nil && e.AssetID != *f.AssetID {
			continue
		}
		if e.Timestamp.Before(f.Since) || e.Timestamp.After(until) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
