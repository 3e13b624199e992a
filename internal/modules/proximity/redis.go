// README: Proximity index backed by a Redis GEO sorted set.
package proximity

import (
	"context"

	"github.com/redis/go-redis/v9"

	"fleet/internal/geo"
	"fleet/internal/infra"
	"fleet/internal/types"
)

var _ Index = (*RedisIndex)(nil)

const (
	assetGeoKey = "proximity:assets"
	// Redis GEO stores 52-bit geohashes and uses its own earth radius, so
	// candidates are fetched with a margin and re-filtered with Haversine.
	searchMarginKm = 0.01
	searchMarginPc = 0.005
)

type RedisIndex struct {
	redis *redis.Client
	key   string
}

func NewRedisIndex(redis *redis.Client) *RedisIndex {
	return &RedisIndex{redis: redis, key: assetGeoKey}
}

func (s *RedisIndex) Set(ctx context.Context, id types.ID, p types.Point) error {
	err := s.redis.GeoAdd(ctx, s.key, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
	return infra.StorageErr(err)
}

func (s *RedisIndex) Remove(ctx context.Context, id types.ID) error {
	return infra.StorageErr(s.redis.ZRem(ctx, s.key, string(id)).Err())
}

func (s *RedisIndex) Within(ctx context.Context, center types.Point, radiusKm float64) ([]Hit, error) {
	results, err := s.redis.GeoSearchLocation(ctx, s.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm*(1+searchMarginPc) + searchMarginKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	hits := []Hit{}
	for _, r := range results {
		p := types.Point{Lat: r.Latitude, Lng: r.Longitude}
		d := geo.DistancePoints(center, p)
		if d <= radiusKm {
			hits = append(hits, Hit{ID: types.ID(r.Name), Location: p, DistanceKm: d})
		}
	}
	sortHits(hits)
	return hits, nil
}

// Clear drops every entry; used before a rebuild.
func (s *RedisIndex) Clear(ctx context.Context) error {
	return infra.StorageErr(s.redis.Del(ctx, s.key).Err())
}
