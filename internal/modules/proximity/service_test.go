package proximity

import (
	"context"
	"errors"
	"os"
	"testing"

	"fleet/internal/geo"
	"fleet/internal/infra"
	"fleet/internal/modules/asset"
	"fleet/internal/types"
)

var hub = types.Point{Lat: 40.7128, Lng: -74.0060}

func seed(t *testing.T, store *asset.MemoryStore, id types.ID, p types.Point) {
	t.Helper()
	if _, err := store.Upsert(context.Background(), &asset.Asset{ID: id, Name: string(id), Type: asset.TypeVehicle, Status: asset.StatusActive, Location: p}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newFixture(t *testing.T, index Index) (*Service, *asset.MemoryStore) {
	t.Helper()
	store := asset.NewMemoryStore()
	seed(t, store, "near", geo.Destination(hub.Lat, hub.Lng, 90, 0.5))
	seed(t, store, "mid", geo.Destination(hub.Lat, hub.Lng, 180, 2))
	seed(t, store, "far", geo.Destination(hub.Lat, hub.Lng, 0, 50))
	svc := NewService(index, store)
	if n, err := svc.Rebuild(context.Background()); err != nil || n != 3 {
		t.Fatalf("rebuild: %d %v", n, err)
	}
	return svc, store
}

func TestAssetsNear_SortedAndFiltered(t *testing.T) {
	svc, _ := newFixture(t, NewMemoryIndex())

	got, err := svc.AssetsNear(context.Background(), hub.Lat, hub.Lng, 5)
	if err != nil {
		t.Fatalf("assets near: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(got))
	}
	if got[0].Asset.ID != "near" || got[1].Asset.ID != "mid" {
		t.Fatalf("unexpected order %s, %s", got[0].Asset.ID, got[1].Asset.ID)
	}
	if got[0].DistanceKm > got[1].DistanceKm {
		t.Fatal("results not sorted by distance")
	}
}

func TestAssetsNear_BoundaryInclusive(t *testing.T) {
	svc, store := newFixture(t, NewMemoryIndex())
	a, _ := store.Get(context.Background(), "mid")
	exact := geo.DistancePoints(hub, a.Location)

	got, err := svc.AssetsNear(context.Background(), hub.Lat, hub.Lng, exact)
	if err != nil {
		t.Fatalf("assets near: %v", err)
	}
	found := false
	for _, n := range got {
		if n.Asset.ID == "mid" {
			found = true
		}
	}
	if !found {
		t.Fatalf("asset exactly on the boundary was excluded: %+v", got)
	}
}

func TestAssetsNear_ZeroRadiusAndEmpty(t *testing.T) {
	svc, _ := newFixture(t, NewMemoryIndex())
	got, err := svc.AssetsNear(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("assets near: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestAssetsNear_Validation(t *testing.T) {
	svc, _ := newFixture(t, NewMemoryIndex())
	if _, err := svc.AssetsNear(context.Background(), 95, 0, 1); !errors.Is(err, types.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
	if _, err := svc.AssetsNear(context.Background(), 0, 0, -1); !errors.Is(err, types.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestAssetsNear_UsesUpdatedPosition(t *testing.T) {
	svc, store := newFixture(t, NewMemoryIndex())
	ctx := context.Background()

	moved := geo.Destination(hub.Lat, hub.Lng, 270, 0.1)
	seed(t, store, "far", moved)
	if err := svc.Update(ctx, "far", moved); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := svc.AssetsNear(ctx, hub.Lat, hub.Lng, 1)
	if err != nil {
		t.Fatalf("assets near: %v", err)
	}
	if len(got) != 2 || got[0].Asset.ID != "far" {
		t.Fatalf("expected moved asset first, got %+v", got)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Set(ctx, "a", hub)
	_ = idx.Remove(ctx, "a")
	hits, _ := idx.Within(ctx, hub, 1)
	if len(hits) != 0 {
		t.Fatalf("expected no hits after remove, got %+v", hits)
	}
}

func TestRedisIndex_MatchesMemoryIndex(t *testing.T) {
	addr := os.Getenv("FLEET_REDIS_ADDR")
	if addr == "" {
		t.Skip("FLEET_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := infra.NewRedis(ctx, addr)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	idx := &RedisIndex{redis: client, key: "proximity:test"}
	t.Cleanup(func() { _ = idx.Clear(ctx) })

	svc, _ := newFixture(t, idx)
	got, err := svc.AssetsNear(ctx, hub.Lat, hub.Lng, 5)
	if err != nil {
		t.Fatalf("assets near: %v", err)
	}
	if len(got) != 2 || got[0].Asset.ID != "near" || got[1].Asset.ID != "mid" {
		t.Fatalf("unexpected result %+v", got)
	}
}

// flakyIndex fails the next failSets calls to Set.
type flakyIndex struct {
	*MemoryIndex
	failSets int
}

func (f *flakyIndex) Set(ctx context.Context, id types.ID, p types.Point) error {
	if f.failSets > 0 {
		f.failSets--
		return infra.StorageErr(errors.New("index down"))
	}
	return f.MemoryIndex.Set(ctx, id, p)
}

func TestAssetsNear_FailedUpdateStillVisible(t *testing.T) {
	idx := &flakyIndex{MemoryIndex: NewMemoryIndex()}
	svc, store := newFixture(t, idx)
	ctx := context.Background()

	moved := geo.Destination(hub.Lat, hub.Lng, 270, 0.1)
	seed(t, store, "far", moved)
	idx.failSets = 1
	if err := svc.Update(ctx, "far", moved); !errors.Is(err, types.ErrStorageUnavailable) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if svc.Pending() != 1 {
		t.Fatalf("expected 1 pending asset, got %d", svc.Pending())
	}

	got, err := svc.AssetsNear(ctx, hub.Lat, hub.Lng, 1)
	if err != nil {
		t.Fatalf("assets near: %v", err)
	}
	if len(got) != 2 || got[0].Asset.ID != "far" {
		t.Fatalf("expected moved asset first, got %+v", got)
	}
	if svc.Pending() != 0 {
		t.Fatalf("expected retry to clear pending, got %d", svc.Pending())
	}
	hits, _ := idx.MemoryIndex.Within(ctx, hub, 1)
	if len(hits) != 2 {
		t.Fatalf("expected retried asset in index, got %+v", hits)
	}
}

func TestAssetsNear_PrunesUnknownAssets(t *testing.T) {
	idx := NewMemoryIndex()
	svc, _ := newFixture(t, idx)
	ctx := context.Background()

	if err := idx.Set(ctx, "ghost", hub); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := svc.AssetsNear(ctx, hub.Lat, hub.Lng, 1)
	if err != nil {
		t.Fatalf("assets near: %v", err)
	}
	for _, n := range got {
		if n.Asset.ID == "ghost" {
			t.Fatal("unknown asset returned")
		}
	}
	hits, _ := idx.Within(ctx, hub, 1)
	for _, h := range hits {
		if h.ID == "ghost" {
			t.Fatal("stale index entry was not removed")
		}
	}
}
