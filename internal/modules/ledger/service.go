// README: Ledger service guards appends and answers history and trip-distance queries.
package ledger

import (
	"context"
	"fmt"
	"time"

	"fleet/internal/modules/asset"
	"fleet/internal/types"
)

type AssetLookup interface {
	Get(ctx context.Context, id types.ID) (*asset.Asset, error)
}

type Service struct {
	store  Repository
	assets AssetLookup
}

func NewService(store Repository, assets AssetLookup) *Service {
	return &Service{store: store, assets: assets}
}

// Append validates and writes p. The point becomes the asset's latest entry.
func (s *Service) Append(ctx context.Context, p Point) error {
	p.Timestamp = p.Timestamp.UTC()
	if err := Validate(p); err != nil {
		return err
	}
	if _, err := s.assets.Get(ctx, p.AssetID); err != nil {
		return err
	}
	latest, err := s.store.Latest(ctx, p.AssetID)
	if err != nil {
		return err
	}
	if latest != nil && p.Timestamp.Before(latest.Timestamp) {
		return fmt.Errorf("%w: %s before %s", types.ErrOutOfOrder,
			p.Timestamp.Format(time.RFC3339Nano), latest.Timestamp.Format(time.RFC3339Nano))
	}
	return s.store.Append(ctx, p)
}

func (s *Service) Latest(ctx context.Context, assetID types.ID) (*Point, error) {
	if _, err := s.assets.Get(ctx, assetID); err != nil {
		return nil, err
	}
	return s.store.Latest(ctx, assetID)
}

// History returns the asset's points at or after since, oldest first. An
// empty result is not an error.
func (s *Service) History(ctx context.Context, assetID types.ID, since time.Time) ([]Point, error) {
	return s.Window(ctx, assetID, since, time.Time{})
}

// Window is History bounded above by until (ignored when zero).
func (s *Service) Window(ctx context.Context, assetID types.ID, since, until time.Time) ([]Point, error) {
	if _, err := s.assets.Get(ctx, assetID); err != nil {
		return nil, err
	}
	points, err := s.store.Range(ctx, assetID, since.UTC(), until)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []Point{}
	}
	return points, nil
}

// TripDistance is the path length in km over History(assetID, since).
func (s *Service) TripDistance(ctx context.Context, assetID types.ID, since time.Time) (float64, error) {
	points, err := s.History(ctx, assetID, since)
	if err != nil {
		return 0, err
	}
	return PathLength(points), nil
}
