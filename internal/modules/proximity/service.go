// README: Proximity service resolves index hits into assets ordered by distance.
package proximity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"strings"
	"sync"

	"fleet/internal/geo"
	"fleet/internal/modules/asset"
	"fleet/internal/types"
)

type Service struct {
	index  Index
	assets AssetSource

	mu sync.Mutex
	// Assets whose last index write failed; searched from the store until a
	// retry succeeds.
	pending map[types.ID]struct{}
}

func NewService(index Index, assets AssetSource) *Service {
	return &Service{index: index, assets: assets, pending: make(map[types.ID]struct{})}
}

// Update moves an asset in the index. On failure the asset stays visible to
// AssetsNear through the store and the write is retried on the next search.
func (s *Service) Update(ctx context.Context, id types.ID, p types.Point) error {
	if err := s.index.Set(ctx, id, p); err != nil {
		s.markPending(id)
		return err
	}
	s.clearPending(id)
	return nil
}

// AssetsNear returns every asset whose current location is within radiusKm
// of (lat, lng), boundary included, nearest first. Distances are measured
// against the stored asset location.
func (s *Service) AssetsNear(ctx context.Context, lat, lng, radiusKm float64) ([]Nearby, error) {
	if err := geo.ValidateCoordinate(lat, lng); err != nil {
		return nil, err
	}
	if math.IsNaN(radiusKm) || radiusKm < 0 {
		return nil, fmt.Errorf("%w: radius %v", types.ErrBadRequest, radiusKm)
	}
	center := types.Point{Lat: lat, Lng: lng}
	hits, err := s.index.Within(ctx, center, radiusKm)
	if err != nil {
		return nil, err
	}

	candidates := make([]types.ID, 0, len(hits))
	seen := make(map[types.ID]bool, len(hits))
	for _, h := range hits {
		candidates = append(candidates, h.ID)
		seen[h.ID] = true
	}
	for _, id := range s.retryPending(ctx) {
		if !seen[id] {
			candidates = append(candidates, id)
			seen[id] = true
		}
	}

	out := make([]Nearby, 0, len(candidates))
	for _, id := range candidates {
		a, err := s.assets.Get(ctx, id)
		if errors.Is(err, types.ErrUnknownAsset) {
			s.prune(ctx, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		d := geo.DistancePoints(center, a.Location)
		if d > radiusKm {
			continue
		}
		out = append(out, Nearby{Asset: *a, DistanceKm: d})
	}
	slices.SortFunc(out, func(a, b Nearby) int { return strings.Compare(string(a.Asset.ID), string(b.Asset.ID)) })
	geo.SortByDistance(out, func(n Nearby) float64 { return n.DistanceKm })
	return out, nil
}

// prune drops an index entry whose asset no longer exists in the store.
func (s *Service) prune(ctx context.Context, id types.ID) {
	s.clearPending(id)
	if err := s.index.Remove(ctx, id); err != nil {
		log.Printf("proximity: remove stale %s: %v", id, err)
	}
}

// retryPending re-indexes assets whose earlier write failed. Every pending ID
// is returned so the caller measures it against the store.
func (s *Service) retryPending(ctx context.Context) []types.ID {
	s.mu.Lock()
	ids := make([]types.ID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		a, err := s.assets.Get(ctx, id)
		if err != nil {
			continue
		}
		if err := s.index.Set(ctx, id, a.Location); err == nil {
			s.clearPending(id)
		}
	}
	return ids
}

func (s *Service) markPending(id types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = struct{}{}
}

func (s *Service) clearPending(id types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// Pending reports how many assets are waiting for an index retry.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

type clearer interface {
	Clear(ctx context.Context) error
}

// Rebuild reloads the index from the asset store.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	if c, ok := s.index.(clearer); ok {
		if err := c.Clear(ctx); err != nil {
			return 0, err
		}
	}
	assets, err := s.assets.List(ctx, asset.ListFilter{})
	if err != nil {
		return 0, err
	}
	for _, a := range assets {
		if err := s.Update(ctx, a.ID, a.Location); err != nil {
			return 0, fmt.Errorf("index %s: %w", a.ID, err)
		}
	}
	return len(assets), nil
}
