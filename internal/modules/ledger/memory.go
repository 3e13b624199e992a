// README: In-memory ledger keeping one time-ordered slice per asset.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleet/internal/types"
)

var _ Repository = (*MemoryStore)(nil)

type MemoryStore struct {
	mu     sync.RWMutex
	points map[types.ID][]Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[types.ID][]Point)}
}

func (m *MemoryStore) Append(_ context.Context, p Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[p.AssetID] = append(m.points[p.AssetID], p)
	return nil
}

func (m *MemoryStore) Latest(_ context.Context, assetID types.ID) (*Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts := m.points[assetID]
	if len(pts) == 0 {
		return nil, nil
	}
	p := pts[len(pts)-1]
	return &p, nil
}

func (m *MemoryStore) Range(_ context.Context, assetID types.ID, since, until time.Time) ([]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts := m.points[assetID]
	lo := sort.Search(len(pts), func(i int) bool { return !pts[i].Timestamp.Before(since) })
	hi := len(pts)
	if !until.IsZero() {
		hi = sort.Search(len(pts), func(i int) bool { return pts[i].Timestamp.After(until) })
	}
	if lo >= hi {
		return []Point{}, nil
	}
	out := make([]Point, hi-lo)
	copy(out, pts[lo:hi])
	return out, nil
}

// Len reports how many points are held for an asset.
func (m *MemoryStore) Len(assetID types.ID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points[assetID])
}
