// README: Proximity index types: hits from the spatial index and resolved nearby assets.
package proximity

import (
	"context"

	"fleet/internal/modules/asset"
	"fleet/internal/types"
)

type Hit struct {
	ID         types.ID
	Location   types.Point
	DistanceKm float64
}

// Index answers radius queries over current asset positions. Within returns
// every entry whose distance is <= radiusKm, nearest first.
type Index interface {
	Set(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	Within(ctx context.Context, center types.Point, radiusKm float64) ([]Hit, error)
}

type Nearby struct {
	Asset      asset.Asset `json:"asset"`
	DistanceKm float64     `json:"distance_km"`
}

type AssetSource interface {
	Get(ctx context.Context, id types.ID) (*asset.Asset, error)
	List(ctx context.Context, f asset.ListFilter) ([]asset.Asset, error)
}
