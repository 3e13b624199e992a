// README: Geofence transition state kept in memory or in Redis hashes.
package geofence

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"fleet/internal/infra"
	"fleet/internal/types"
)

var (
	_ StateStore = (*MemoryState)(nil)
	_ StateStore = (*RedisState)(nil)
)

type MemoryState struct {
	mu    sync.RWMutex
	state map[types.ID]map[types.ID]bool
}

func NewMemoryState() *MemoryState {
	return &MemoryState{state: make(map[types.ID]map[types.ID]bool)}
}

func (m *MemoryState) Load(_ context.Context, assetID types.ID) (map[types.ID]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.ID]bool, len(m.state[assetID]))
	for k, v := range m.state[assetID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryState) Set(_ context.Context, assetID, geofenceID types.ID, inside bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fences, ok := m.state[assetID]
	if !ok {
		fences = make(map[types.ID]bool)
		m.state[assetID] = fences
	}
	fences[geofenceID] = inside
	return nil
}

func (m *MemoryState) Delete(_ context.Context, assetID, geofenceID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state[assetID], geofenceID)
	return nil
}

const stateKeyPrefix = "geofence:state:%s"

// RedisState stores one hash per asset; fields are geofence IDs and values
// "1" (inside) or "0" (outside).
type RedisState struct {
	redis *redis.Client
}

func NewRedisState(redis *redis.Client) *RedisState {
	return &RedisState{redis: redis}
}

func (s *RedisState) Load(ctx context.Context, assetID types.ID) (map[types.ID]bool, error) {
	vals, err := s.redis.HGetAll(ctx, stateKey(assetID)).Result()
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	out := make(map[types.ID]bool, len(vals))
	for k, v := range vals {
		out[types.ID(k)] = v == "1"
	}
	return out, nil
}

func (s *RedisState) Set(ctx context.Context, assetID, geofenceID types.ID, inside bool) error {
	v := "0"
	if inside {
		v = "1"
	}
	return infra.StorageErr(s.redis.HSet(ctx, stateKey(assetID), string(geofenceID), v).Err())
}

func (s *RedisState) Delete(ctx context.Context, assetID, geofenceID types.ID) error {
	return infra.StorageErr(s.redis.HDel(ctx, stateKey(assetID), string(geofenceID)).Err())
}

func stateKey(assetID types.ID) string {
	return fmt.Sprintf(stateKeyPrefix, string(assetID))
}
