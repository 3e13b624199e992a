// README: Config loader with env defaults (optionally from .env) for HTTP, storage, brokers and tracking settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fleet/internal/modules/asset"
)

type TrackingConfig struct {
	IdleMovementKm   float64       `validate:"gt=0"`
	IdleWindowMin    float64       `validate:"gt=0"`
	DefaultAccuracyM float64       `validate:"gte=0"`
	OfflineAfter     time.Duration `validate:"gt=0"`
	MonitorInterval  time.Duration `validate:"gt=0"`
}

type IngestConfig struct {
	Workers       int           `validate:"gt=0"`
	Buffer        int           `validate:"gt=0"`
	Timeout       time.Duration `validate:"gt=0"`
	StatsInterval time.Duration `validate:"gt=0"`
}

type Config struct {
	HTTP struct {
		Addr string `validate:"required"`
	}
	// Empty DSN / address select the in-memory backends.
	DB struct {
		DSN           string
		MigrationsDir string
	}
	Redis struct {
		Addr string
	}
	MQTT struct {
		Broker   string `validate:"omitempty,url"`
		ClientID string `validate:"required_with=Broker"`
		Topic    string
	}
	NATS struct {
		URL     string `validate:"omitempty,url"`
		Subject string
	}
	RabbitMQ struct {
		URL string `validate:"omitempty,url"`
	}
	Auth struct {
		ProjectID       string
		CredentialsFile string
	}
	Tracking     TrackingConfig
	Ingest       IngestConfig
	GeofenceFile string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}

	var cfg Config
	cfg.HTTP.Addr = envOrDefault("FLEET_HTTP_ADDR", ":8080")
	cfg.DB.DSN = envOrDefault("FLEET_DB_DSN", "")
	cfg.DB.MigrationsDir = envOrDefault("FLEET_MIGRATIONS_DIR", "")
	cfg.Redis.Addr = envOrDefault("FLEET_REDIS_ADDR", "")
	cfg.MQTT.Broker = envOrDefault("FLEET_MQTT_BROKER", "")
	cfg.MQTT.ClientID = envOrDefault("FLEET_MQTT_CLIENT_ID", "fleet-api")
	cfg.MQTT.Topic = envOrDefault("FLEET_MQTT_TOPIC", "fleet/assets/+/location")
	cfg.NATS.URL = envOrDefault("FLEET_NATS_URL", "")
	cfg.NATS.Subject = envOrDefault("FLEET_NATS_SUBJECT", "fleet.fixes")
	cfg.RabbitMQ.URL = envOrDefault("FLEET_RABBITMQ_URL", "")
	cfg.Auth.ProjectID = envOrDefault("FLEET_FIREBASE_PROJECT_ID", "")
	cfg.Auth.CredentialsFile = envOrDefault("FLEET_FIREBASE_CREDENTIALS", "")

	cfg.Tracking.IdleMovementKm = envOrDefaultFloat("FLEET_IDLE_MOVEMENT_KM", 0.05)
	cfg.Tracking.IdleWindowMin = envOrDefaultFloat("FLEET_IDLE_WINDOW_MIN", 30)
	cfg.Tracking.DefaultAccuracyM = envOrDefaultFloat("FLEET_DEFAULT_ACCURACY_M", 10)
	cfg.Tracking.OfflineAfter = envOrDefaultDuration("FLEET_OFFLINE_AFTER", 15*time.Minute)
	cfg.Tracking.MonitorInterval = envOrDefaultDuration("FLEET_MONITOR_INTERVAL", 30*time.Second)

	cfg.Ingest.Workers = envOrDefaultInt("FLEET_INGEST_WORKERS", 5)
	cfg.Ingest.Buffer = envOrDefaultInt("FLEET_INGEST_BUFFER", 100)
	cfg.Ingest.Timeout = envOrDefaultDuration("FLEET_INGEST_TIMEOUT", 5*time.Second)
	cfg.Ingest.StatsInterval = envOrDefaultDuration("FLEET_INGEST_STATS_INTERVAL", 120*time.Second)

	cfg.GeofenceFile = envOrDefault("FLEET_GEOFENCE_FILE", "")

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// AuthEnabled reports whether API callers must present a Firebase ID token.
func (c Config) AuthEnabled() bool {
	return c.Auth.ProjectID != ""
}

type geofenceFile struct {
	Geofences []asset.GeofenceCommand `yaml:"geofences"`
}

// LoadGeofences reads geofence seed definitions from a YAML file:
//
//	geofences:
//	  - id: depot
//	    name: Main Depot
//	    lat: 40.7128
//	    lng: -74.0060
//	    radius_km: 1.0
func LoadGeofences(path string) ([]asset.GeofenceCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f geofenceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Geofences, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
