package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("unexpected addr %q", cfg.HTTP.Addr)
	}
	if cfg.DB.DSN != "" || cfg.Redis.Addr != "" {
		t.Error("expected in-memory backends by default")
	}
	if cfg.Tracking.IdleMovementKm != 0.05 || cfg.Tracking.DefaultAccuracyM != 10 {
		t.Errorf("unexpected tracking defaults %+v", cfg.Tracking)
	}
	if cfg.Tracking.OfflineAfter != 15*time.Minute {
		t.Errorf("unexpected offline threshold %v", cfg.Tracking.OfflineAfter)
	}
	if cfg.AuthEnabled() {
		t.Error("auth should be disabled without a project id")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FLEET_HTTP_ADDR", ":9090")
	t.Setenv("FLEET_IDLE_MOVEMENT_KM", "0.1")
	t.Setenv("FLEET_OFFLINE_AFTER", "1h")
	t.Setenv("FLEET_INGEST_WORKERS", "not-a-number")
	t.Setenv("FLEET_FIREBASE_PROJECT_ID", "fleet-prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.Tracking.IdleMovementKm != 0.1 || cfg.Tracking.OfflineAfter != time.Hour {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Ingest.Workers != 5 {
		t.Errorf("expected fallback to default workers, got %d", cfg.Ingest.Workers)
	}
	if !cfg.AuthEnabled() {
		t.Error("expected auth enabled")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FLEET_NATS_SUBJECT=devices.fixes\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("FLEET_NATS_SUBJECT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NATS.Subject != "devices.fixes" {
		t.Fatalf("expected subject from .env, got %q", cfg.NATS.Subject)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FLEET_IDLE_MOVEMENT_KM", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for negative idle threshold")
	}
}

func TestLoadGeofences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geofences.yml")
	data := `geofences:
  - id: depot
    name: Main Depot
    lat: 40.7128
    lng: -74.0060
    radius_km: 1.0
  - name: Airport
    lat: 40.6413
    lng: -73.7781
    radius_km: 2.5
    inactive: true
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fences, err := LoadGeofences(path)
	if err != nil {
		t.Fatalf("load geofences: %v", err)
	}
	if len(fences) != 2 {
		t.Fatalf("expected 2 geofences, got %d", len(fences))
	}
	if fences[0].ID != "depot" || fences[0].RadiusKm != 1.0 || fences[0].Lng != -74.0060 {
		t.Errorf("unexpected first geofence %+v", fences[0])
	}
	if fences[1].ID != "" || !fences[1].Inactive {
		t.Errorf("unexpected second geofence %+v", fences[1])
	}

	if _, err := LoadGeofences(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}
