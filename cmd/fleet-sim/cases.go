// README: Simulator check cases; environment checks, fleet setup, fix drive and read-back assertions.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"fleet/internal/geo"
	"fleet/internal/infra"
	"fleet/internal/types"
)

const (
	depotID       = "sim-depot"
	depotRadiusKm = 1.0
)

// Depot centre; every simulated asset starts here and drives outward.
var origin = types.Point{Lat: 25.0330, Lng: 121.5654}

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		start := time.Now()
		res := tc.Run(ctx, r)
		res.Latency = time.Since(start)
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, tc.Name, res.Latency.Round(time.Millisecond))
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) assetID(i int) string {
	return fmt.Sprintf("sim-asset-%02d", i)
}

// bearing spreads assets evenly around the depot.
func (r *Runner) bearing(i int) float64 {
	return float64(i) * 360 / float64(r.cfg.Assets)
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name: "API: health",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, err := r.call(ctx, http.MethodGet, "/health", nil)
				return expect(status, err, http.StatusOK)
			},
		},
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "dsn not set"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not set"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Setup: depot geofence",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, err := r.call(ctx, http.MethodPost, "/api/geofences", map[string]any{
					"id":        depotID,
					"name":      "Simulator depot",
					"lat":       origin.Lat,
					"lng":       origin.Lng,
					"radius_km": depotRadiusKm,
				})
				return expect(status, err, http.StatusCreated, http.StatusConflict)
			},
		},
		{
			Name: "Setup: register assets",
			Run: func(ctx context.Context, r *Runner) Result {
				for i := 0; i < r.cfg.Assets; i++ {
					status, _, err := r.call(ctx, http.MethodPost, "/api/assets", map[string]any{
						"id":   r.assetID(i),
						"name": fmt.Sprintf("Simulated vehicle %d", i),
						"type": "vehicle",
						"lat":  origin.Lat,
						"lng":  origin.Lng,
					})
					if res := expect(status, err, http.StatusCreated, http.StatusConflict); res.Status != "PASS" {
						res.Note = r.assetID(i) + ": " + res.Note
						return res
					}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("assets=%d", r.cfg.Assets)}
			},
		},
		{
			Name: "Drive: send fixes",
			Run: func(ctx context.Context, r *Runner) Result {
				send, closeFn, err := r.sender()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				defer closeFn()
				sent, failed := r.drive(ctx, send)
				if r.cfg.Transport != "http" {
					time.Sleep(r.cfg.Settle)
				}
				if failed > 0 {
					return Result{Status: "FAIL", Note: fmt.Sprintf("transport=%s sent=%d failed=%d", r.cfg.Transport, sent, failed)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("transport=%s sent=%d", r.cfg.Transport, sent)}
			},
		},
		{
			Name: "Check: depot exit events",
			Run: func(ctx context.Context, r *Runner) Result {
				var events []struct {
					AssetID    string `json:"asset_id"`
					GeofenceID string `json:"geofence_id"`
					EventType  string `json:"event_type"`
				}
				status, body, err := r.call(ctx, http.MethodGet, "/api/geofence-events?hours=1", nil)
				if res := expect(status, err, http.StatusOK); res.Status != "PASS" {
					return res
				}
				if err := json.Unmarshal(body, &events); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				exited := map[string]bool{}
				for _, e := range events {
					if e.GeofenceID == depotID && e.EventType == "exit" {
						exited[e.AssetID] = true
					}
				}
				if len(exited) < r.cfg.Assets {
					return Result{Status: "FAIL", Note: fmt.Sprintf("exited=%d want=%d", len(exited), r.cfg.Assets)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("events=%d", len(events))}
			},
		},
		{
			Name: "Check: trip distance",
			Run: func(ctx context.Context, r *Runner) Result {
				var out struct {
					DistanceKm float64 `json:"distance_km"`
				}
				status, body, err := r.call(ctx, http.MethodGet, "/api/assets/"+r.assetID(0)+"/trip?hours=1", nil)
				if res := expect(status, err, http.StatusOK); res.Status != "PASS" {
					return res
				}
				if err := json.Unmarshal(body, &out); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				want := float64(r.cfg.Steps-1) * r.cfg.StepKm * 0.95
				if out.DistanceKm < want {
					return Result{Status: "FAIL", Note: fmt.Sprintf("distance=%.3f want>=%.3f", out.DistanceKm, want)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("distance=%.3f km", out.DistanceKm)}
			},
		},
		{
			Name: "Check: proximity around depot",
			Run: func(ctx context.Context, r *Runner) Result {
				var near []struct {
					DistanceKm float64 `json:"distance_km"`
				}
				radius := float64(r.cfg.Steps)*r.cfg.StepKm + 1
				path := fmt.Sprintf("/api/proximity?lat=%f&lng=%f&radius_km=%f", origin.Lat, origin.Lng, radius)
				status, body, err := r.call(ctx, http.MethodGet, path, nil)
				if res := expect(status, err, http.StatusOK); res.Status != "PASS" {
					return res
				}
				if err := json.Unmarshal(body, &near); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for i := 1; i < len(near); i++ {
					if near[i].DistanceKm < near[i-1].DistanceKm {
						return Result{Status: "FAIL", Note: "results not sorted by distance"}
					}
				}
				if len(near) < r.cfg.Assets {
					return Result{Status: "FAIL", Note: fmt.Sprintf("near=%d want>=%d", len(near), r.cfg.Assets)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("near=%d", len(near))}
			},
		},
		{
			Name: "Check: fleet status",
			Run: func(ctx context.Context, r *Runner) Result {
				var out struct {
					Total    int            `json:"total"`
					ByStatus map[string]int `json:"by_status"`
				}
				status, body, err := r.call(ctx, http.MethodGet, "/api/fleet/status", nil)
				if res := expect(status, err, http.StatusOK); res.Status != "PASS" {
					return res
				}
				if err := json.Unmarshal(body, &out); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if out.Total < r.cfg.Assets {
					return Result{Status: "FAIL", Note: fmt.Sprintf("total=%d", out.Total)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("total=%d by_status=%v", out.Total, out.ByStatus)}
			},
		},
		{
			Name: "Storage: ledger rows",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "dsn not set"}
				}
				var n int
				err := r.db.QueryRow(ctx, `
                    SELECT COUNT(*) FROM location_points
                    WHERE asset_id LIKE 'sim-asset-%' AND recorded_at >= NOW() - INTERVAL '1 hour'`,
				).Scan(&n)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if want := r.cfg.Assets * r.cfg.Steps; n < want {
					return Result{Status: "FAIL", Note: fmt.Sprintf("rows=%d want>=%d", n, want)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("rows=%d", n)}
			},
		},
		{
			Name: "Storage: proximity index",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not set"}
				}
				n, err := r.redis.ZCard(ctx, "proximity:assets").Result()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if n < int64(r.cfg.Assets) {
					return Result{Status: "FAIL", Note: fmt.Sprintf("indexed=%d", n)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("indexed=%d", n)}
			},
		},
	}
}

type fix struct {
	AssetID    string  `json:"asset_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	SpeedKmh   float64 `json:"speed_kmh"`
	HeadingDeg float64 `json:"heading_deg"`
	Source     string  `json:"source"`
}

type sendFunc func(ctx context.Context, f fix) error

// drive moves every asset outward from the depot in parallel. Fixes for one
// asset are sent sequentially so the server sees them in order.
func (r *Runner) drive(ctx context.Context, send sendFunc) (sent, failed int) {
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Assets; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bearing := r.bearing(i)
			for step := 1; step <= r.cfg.Steps; step++ {
				p := geo.Destination(origin.Lat, origin.Lng, bearing, float64(step)*r.cfg.StepKm)
				err := send(ctx, fix{
					AssetID:    r.assetID(i),
					Latitude:   p.Lat,
					Longitude:  p.Lng,
					SpeedKmh:   36,
					HeadingDeg: bearing,
					Source:     "gps",
				})
				mu.Lock()
				if err != nil {
					failed++
				} else {
					sent++
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return sent, failed
}

func (r *Runner) sender() (sendFunc, func(), error) {
	switch r.cfg.Transport {
	case "http":
		return func(ctx context.Context, f fix) error {
			status, body, err := r.call(ctx, http.MethodPost, "/api/assets/"+f.AssetID+"/location", map[string]any{
				"lat":         f.Latitude,
				"lng":         f.Longitude,
				"speed_kmh":   f.SpeedKmh,
				"heading_deg": f.HeadingDeg,
				"source":      f.Source,
			})
			if err != nil {
				return err
			}
			if status != http.StatusCreated {
				return fmt.Errorf("status %d: %s", status, body)
			}
			return nil
		}, func() {}, nil
	case "mqtt":
		client, err := infra.NewMQTT(r.cfg.MQTTBroker, fmt.Sprintf("fleet-sim-%d", time.Now().UnixNano()))
		if err != nil {
			return nil, nil, err
		}
		return func(_ context.Context, f fix) error {
			b, err := json.Marshal(f)
			if err != nil {
				return err
			}
			tok := client.Publish(fmt.Sprintf(r.cfg.MQTTTopic, f.AssetID), 1, false, b)
			if !tok.WaitTimeout(5 * time.Second) {
				return fmt.Errorf("mqtt publish timeout")
			}
			return tok.Error()
		}, func() { client.Disconnect(250) }, nil
	case "nats":
		nc, err := infra.NewNATS(r.cfg.NATSURL)
		if err != nil {
			return nil, nil, err
		}
		return func(_ context.Context, f fix) error {
			b, err := json.Marshal(f)
			if err != nil {
				return err
			}
			return nc.Publish(r.cfg.NATSSubj, b)
		}, func() { _ = nc.Drain() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", r.cfg.Transport)
	}
}

func (r *Runner) call(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

func expect(status int, err error, ok ...int) Result {
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, s := range ok {
		if status == s {
			return Result{Status: "PASS", Note: fmt.Sprintf("status=%d", status)}
		}
	}
	return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", status)}
}
