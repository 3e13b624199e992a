package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fleet/internal/geo"
	"fleet/internal/infra"
	"fleet/internal/modules/analytics"
	"fleet/internal/modules/asset"
	"fleet/internal/modules/geofence"
	"fleet/internal/modules/ledger"
	"fleet/internal/modules/proximity"
	"fleet/internal/types"
)

var (
	t0    = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	depot = types.Point{Lat: 40.7128, Lng: -74.0060}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []asset.GeofenceEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events []asset.GeofenceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// failingCommit runs the unit of work and then reports a commit failure.
type failingCommit struct{}

func (failingCommit) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return infra.StorageErr(errors.New("commit failed"))
}

type harness struct {
	coord   *Coordinator
	assets  *asset.MemoryStore
	points  *ledger.MemoryStore
	state   *geofence.MemoryState
	index   *proximity.MemoryIndex
	pub     *recordingPublisher
	clock   *clock
	fenceID types.ID
}

func newHarness(t *testing.T, tx TxRunner) *harness {
	t.Helper()
	ctx := context.Background()
	clk := &clock{t: t0}

	assets := asset.NewMemoryStore()
	assetSvc := asset.NewService(assets)
	for _, id := range []types.ID{"t1", "t2"} {
		if _, err := assetSvc.Register(ctx, asset.RegisterCommand{ID: id, Name: "Truck " + string(id), Type: asset.TypeVehicle, Lat: 40.0, Lng: -74.0}); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	fence, err := assetSvc.CreateGeofence(ctx, asset.GeofenceCommand{ID: "depot", Name: "Depot", Lat: depot.Lat, Lng: depot.Lng, RadiusKm: 1})
	if err != nil {
		t.Fatalf("geofence: %v", err)
	}

	points := ledger.NewMemoryStore()
	ledgerSvc := ledger.NewService(points, assets)
	state := geofence.NewMemoryState()
	engine := geofence.NewEngine(state, ledgerSvc, assets).WithClock(clk.Now)
	stats := analytics.NewService(ledgerSvc, assets, 0).WithClock(clk.Now)
	index := proximity.NewMemoryIndex()
	pub := &recordingPublisher{}
	if tx == nil {
		tx = infra.NoTx{}
	}

	coord := NewCoordinator(Deps{
		Assets:    assets,
		Ledger:    ledgerSvc,
		Engine:    engine,
		Analytics: stats,
		Proximity: proximity.NewService(index, assets),
		Publisher: pub,
		Tx:        tx,
	}, Options{OfflineAfter: 15 * time.Minute, IdleWindow: 30 * time.Minute}).WithClock(clk.Now)

	return &harness{coord: coord, assets: assets, points: points, state: state, index: index, pub: pub, clock: clk, fenceID: fence.ID}
}

func (h *harness) record(t *testing.T, id types.ID, p types.Point) ledger.Point {
	t.Helper()
	got, err := h.coord.RecordFix(context.Background(), FixCommand{AssetID: id, Lat: p.Lat, Lng: p.Lng})
	if err != nil {
		t.Fatalf("record fix: %v", err)
	}
	return got
}

func TestRecordFix_UpdatesAssetLedgerAndIndex(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	dest := geo.Destination(40.0, -74.0, 90, 1)
	p, err := h.coord.RecordFix(ctx, FixCommand{AssetID: "t1", Lat: dest.Lat, Lng: dest.Lng, SpeedKmh: 42})
	if err != nil {
		t.Fatalf("record fix: %v", err)
	}
	if p.AccuracyM != DefaultAccuracyM || p.Source != ledger.SourceGPS || !p.Timestamp.Equal(t0) {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.HeadingDeg < 89 || p.HeadingDeg > 91 {
		t.Fatalf("expected inferred heading ~90, got %v", p.HeadingDeg)
	}

	a, _ := h.assets.Get(ctx, "t1")
	if a.Location != dest || a.SpeedKmh != 42 || !a.LastSeen.Equal(t0) {
		t.Fatalf("asset not updated: %+v", a)
	}
	latest, _ := h.points.Latest(ctx, "t1")
	if latest == nil || latest.Position() != a.Location {
		t.Fatalf("asset location does not match latest ledger point: %+v vs %+v", latest, a.Location)
	}
	hits, _ := h.index.Within(ctx, dest, 0.001)
	if len(hits) != 1 || hits[0].ID != "t1" {
		t.Fatalf("index not updated: %+v", hits)
	}
}

func TestRecordFix_ExplicitHeadingKept(t *testing.T) {
	h := newHarness(t, nil)
	p, err := h.coord.RecordFix(context.Background(), FixCommand{AssetID: "t1", Lat: 40.01, Lng: -74.0, HeadingDeg: 270})
	if err != nil {
		t.Fatalf("record fix: %v", err)
	}
	if p.HeadingDeg != 270 {
		t.Fatalf("expected heading 270, got %v", p.HeadingDeg)
	}
}

func TestRecordFix_RejectionsHaveNoSideEffects(t *testing.T) {
	neg := -1.0
	cases := []struct {
		name string
		cmd  FixCommand
		want error
	}{
		{"unknown asset", FixCommand{AssetID: "ghost", Lat: depot.Lat, Lng: depot.Lng}, types.ErrUnknownAsset},
		{"bad latitude", FixCommand{AssetID: "t1", Lat: 123, Lng: 0}, types.ErrInvalidCoordinate},
		{"bad longitude", FixCommand{AssetID: "t1", Lat: 0, Lng: 181}, types.ErrInvalidCoordinate},
		{"negative speed", FixCommand{AssetID: "t1", Lat: depot.Lat, Lng: depot.Lng, SpeedKmh: -5}, types.ErrInvalidFix},
		{"negative accuracy", FixCommand{AssetID: "t1", Lat: depot.Lat, Lng: depot.Lng, AccuracyM: &neg}, types.ErrInvalidFix},
		{"unknown source", FixCommand{AssetID: "t1", Lat: depot.Lat, Lng: depot.Lng, Source: "radar"}, types.ErrInvalidFix},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			ctx := context.Background()
			before, _ := h.assets.Get(ctx, "t1")

			if _, err := h.coord.RecordFix(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}

			after, _ := h.assets.Get(ctx, "t1")
			if after.Location != before.Location || !after.LastSeen.Equal(before.LastSeen) {
				t.Fatalf("asset changed: %+v -> %+v", before, after)
			}
			if h.points.Len(tc.cmd.AssetID) != 0 || h.points.Len("t1") != 0 {
				t.Fatal("ledger changed")
			}
			events, _ := h.assets.ListEvents(ctx, asset.EventFilter{})
			if len(events) != 0 || h.pub.count() != 0 {
				t.Fatalf("events emitted: %+v", events)
			}
			if hits, _ := h.index.Within(ctx, depot, 20000); len(hits) != 0 {
				t.Fatalf("index changed: %+v", hits)
			}
			state, _ := h.state.Load(ctx, tc.cmd.AssetID)
			if len(state) != 0 {
				t.Fatalf("geofence state changed: %+v", state)
			}
		})
	}
}

func TestRecordFix_GeofenceEnterThenSingleExit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	away := geo.Destination(depot.Lat, depot.Lng, 180, 5)

	h.record(t, "t1", away)
	h.clock.Advance(time.Minute)
	h.record(t, "t1", depot)
	h.clock.Advance(time.Minute)
	h.record(t, "t1", depot)
	h.clock.Advance(time.Minute)
	h.record(t, "t1", away)
	h.clock.Advance(time.Minute)
	h.record(t, "t1", away)

	id := types.ID("t1")
	events, err := h.coord.RecentEvents(ctx, &id, 1)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected enter and exit, got %+v", events)
	}
	if events[0].EventType != asset.EventEnter || events[1].EventType != asset.EventExit {
		t.Fatalf("unexpected sequence %+v", events)
	}
	if !events[0].Timestamp.Equal(t0.Add(time.Minute)) || events[0].Lat != depot.Lat {
		t.Fatalf("enter event does not carry its fix: %+v", events[0])
	}
	if h.pub.count() != 2 {
		t.Fatalf("expected 2 published events, got %d", h.pub.count())
	}
}

func TestRecordFix_CommitFailureRestoresGeofenceState(t *testing.T) {
	h := newHarness(t, failingCommit{})
	ctx := context.Background()

	if _, err := h.coord.RecordFix(ctx, FixCommand{AssetID: "t2", Lat: depot.Lat, Lng: depot.Lng}); !errors.Is(err, types.ErrStorageUnavailable) {
		t.Fatalf("expected storage error, got %v", err)
	}
	state, _ := h.state.Load(ctx, "t2")
	if len(state) != 0 {
		t.Fatalf("expected geofence state rolled back, got %+v", state)
	}
	if h.pub.count() != 0 {
		t.Fatal("events published for a failed fix")
	}
}

func TestRecordFix_TimestampOrdering(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.record(t, "t1", depot)
	h.clock.Set(t0.Add(-time.Hour))
	p := h.record(t, "t1", depot)
	if !p.Timestamp.Equal(t0) {
		t.Fatalf("expected timestamp clamped to %v, got %v", t0, p.Timestamp)
	}

	_, err := h.coord.RecordFix(ctx, FixCommand{AssetID: "t1", Lat: depot.Lat, Lng: depot.Lng, RecordedAt: t0.Add(-time.Minute)})
	if !errors.Is(err, types.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if h.points.Len("t1") != 2 {
		t.Fatalf("expected 2 points, got %d", h.points.Len("t1"))
	}
}

func TestRecordFix_MaintenanceStatusPreserved(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.coord.SetStatus(ctx, "t1", asset.StatusMaintenance); err != nil {
		t.Fatalf("set status: %v", err)
	}
	h.record(t, "t1", depot)
	a, _ := h.assets.Get(ctx, "t1")
	if a.Status != asset.StatusMaintenance {
		t.Fatalf("expected maintenance, got %s", a.Status)
	}

	if _, err := h.coord.SetStatus(ctx, "t1", "broken"); !errors.Is(err, types.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestRecordFix_ConcurrentFixes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	const perAsset = 50

	var wg sync.WaitGroup
	errs := make(chan error, 2*perAsset)
	for _, id := range []types.ID{"t1", "t2"} {
		for i := 0; i < perAsset; i++ {
			wg.Add(1)
			go func(id types.ID, i int) {
				defer wg.Done()
				h.clock.Advance(time.Second)
				p := geo.Destination(depot.Lat, depot.Lng, float64(i*7%360), float64(i%3))
				if _, err := h.coord.RecordFix(ctx, FixCommand{AssetID: id, Lat: p.Lat, Lng: p.Lng}); err != nil {
					errs <- fmt.Errorf("%s #%d: %w", id, i, err)
				}
			}(id, i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for _, id := range []types.ID{"t1", "t2"} {
		pts, err := h.points.Range(ctx, id, time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("range: %v", err)
		}
		if len(pts) != perAsset {
			t.Fatalf("%s: expected %d points, got %d", id, perAsset, len(pts))
		}
		for i := 1; i < len(pts); i++ {
			if pts[i].Timestamp.Before(pts[i-1].Timestamp) {
				t.Fatalf("%s: ledger out of order at %d", id, i)
			}
		}
		a, _ := h.assets.Get(ctx, id)
		if a.Location != pts[len(pts)-1].Position() {
			t.Fatalf("%s: asset location %+v is not the latest point", id, a.Location)
		}

		events, _ := h.assets.ListEvents(ctx, asset.EventFilter{AssetID: &id, Until: t0.Add(time.Hour)})
		for i := 1; i < len(events); i++ {
			if events[i].EventType == events[i-1].EventType {
				t.Fatalf("%s: consecutive %s events", id, events[i].EventType)
			}
		}
	}
	if n := h.coord.locks.size(); n != 0 {
		t.Fatalf("expected lock table drained, got %d entries", n)
	}
}

func TestCheckGeofence(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.record(t, "t1", depot)

	first, err := h.coord.CheckGeofence(ctx, "t1", h.fenceID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	stateBefore, _ := h.state.Load(ctx, "t1")
	second, err := h.coord.CheckGeofence(ctx, "t1", h.fenceID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	stateAfter, _ := h.state.Load(ctx, "t1")

	if !first.Inside || first.Inside != second.Inside || first.DistanceKm != second.DistanceKm {
		t.Fatalf("inconsistent checks %+v %+v", first, second)
	}
	if len(stateBefore) != len(stateAfter) || stateBefore[h.fenceID] != stateAfter[h.fenceID] {
		t.Fatal("check mutated geofence state")
	}

	if _, err := h.coord.CheckGeofence(ctx, "t1", "nowhere"); !errors.Is(err, types.ErrUnknownGeofence) {
		t.Fatalf("expected ErrUnknownGeofence, got %v", err)
	}
	if _, err := h.coord.CheckGeofence(ctx, "ghost", h.fenceID); !errors.Is(err, types.ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestQueries(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.record(t, "t1", depot)
	h.clock.Advance(10 * time.Minute)
	h.record(t, "t1", geo.Destination(depot.Lat, depot.Lng, 0, 2))

	hist, err := h.coord.History(ctx, "t1", 1)
	if err != nil || len(hist) != 2 {
		t.Fatalf("history: %d %v", len(hist), err)
	}
	d, err := h.coord.TripDistance(ctx, "t1", 1)
	if err != nil || d < 1.99 || d > 2.01 {
		t.Fatalf("trip distance: %v %v", d, err)
	}
	if _, err := h.coord.History(ctx, "t1", -1); !errors.Is(err, types.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
	near, err := h.coord.AssetsNear(ctx, depot.Lat, depot.Lng, 3)
	if err != nil || len(near) != 1 || near[0].Asset.ID != "t1" {
		t.Fatalf("assets near: %+v %v", near, err)
	}
	idle, err := h.coord.DetectIdle(ctx, "t1", 30)
	if err != nil || idle.IsIdle {
		t.Fatalf("detect idle: %+v %v", idle, err)
	}
	status, err := h.coord.FleetStatus(ctx)
	if err != nil || status.Total != 2 {
		t.Fatalf("fleet status: %+v %v", status, err)
	}
	ghost := types.ID("ghost")
	if _, err := h.coord.RecentEvents(ctx, &ghost, 1); !errors.Is(err, types.ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestRegisterAsset_SearchableBeforeFirstFix(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	a, err := h.coord.RegisterAsset(ctx, asset.RegisterCommand{ID: "late", Name: "Late van", Type: asset.TypeVehicle, Lat: depot.Lat, Lng: depot.Lng})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.Status != asset.StatusActive {
		t.Fatalf("unexpected status %s", a.Status)
	}
	near, err := h.coord.AssetsNear(ctx, depot.Lat, depot.Lng, 1)
	if err != nil || len(near) != 1 || near[0].Asset.ID != "late" {
		t.Fatalf("assets near before any fix: %+v %v", near, err)
	}

	if _, err := h.coord.proximity.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	again, err := h.coord.AssetsNear(ctx, depot.Lat, depot.Lng, 1)
	if err != nil || len(again) != len(near) {
		t.Fatalf("result changed after rebuild: %+v %v", again, err)
	}

	if _, err := h.coord.RegisterAsset(ctx, asset.RegisterCommand{ID: "late", Name: "Late van", Type: asset.TypeVehicle}); !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate, got %v", err)
	}
}

func TestSweepStatuses(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	// t1 reports twice from the same spot; t2 stays silent.
	h.record(t, "t1", depot)
	h.clock.Advance(5 * time.Minute)
	h.record(t, "t1", depot)
	h.clock.Advance(5 * time.Minute)

	if _, err := h.assets.Upsert(ctx, func() *asset.Asset {
		a, _ := h.assets.Get(ctx, "t2")
		a.LastSeen = t0.Add(-time.Hour)
		return a
	}()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := h.coord.SweepStatuses(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 changes, got %d", n)
	}
	t1, _ := h.assets.Get(ctx, "t1")
	t2, _ := h.assets.Get(ctx, "t2")
	if t1.Status != asset.StatusIdle {
		t.Errorf("expected t1 idle, got %s", t1.Status)
	}
	if t2.Status != asset.StatusOffline {
		t.Errorf("expected t2 offline, got %s", t2.Status)
	}

	// A new fix brings the asset back.
	h.record(t, "t2", depot)
	t2, _ = h.assets.Get(ctx, "t2")
	if t2.Status != asset.StatusActive {
		t.Errorf("expected t2 active after fix, got %s", t2.Status)
	}
}

func TestRunStatusMonitor_StopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.coord.opts.MonitorInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.coord.RunStatusMonitor(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
