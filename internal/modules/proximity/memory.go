// README: Linear-scan proximity index held in memory.
package proximity

import (
	"context"
	"slices"
	"strings"
	"sync"

	"fleet/internal/geo"
	"fleet/internal/types"
)

var _ Index = (*MemoryIndex)(nil)

type MemoryIndex struct {
	mu     sync.RWMutex
	points map[types.ID]types.Point
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[types.ID]types.Point)}
}

func (m *MemoryIndex) Set(_ context.Context, id types.ID, p types.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[id] = p
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points, id)
	return nil
}

func (m *MemoryIndex) Within(_ context.Context, center types.Point, radiusKm float64) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := []Hit{}
	for id, p := range m.points {
		d := geo.DistancePoints(center, p)
		if d <= radiusKm {
			hits = append(hits, Hit{ID: id, Location: p, DistanceKm: d})
		}
	}
	sortHits(hits)
	return hits, nil
}

// sortHits orders by distance, ties broken by ID.
func sortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int { return strings.Compare(string(a.ID), string(b.ID)) })
	geo.SortByDistance(hits, func(h Hit) float64 { return h.DistanceKm })
}
