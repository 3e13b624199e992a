// README: Fleet simulator; registers assets and a depot geofence, drives fixes over HTTP/MQTT/NATS and prints check results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	sim := NewRunner(cfg)
	results := sim.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case "PASS":
			pass++
		case "FAIL":
			fail++
		case "SKIP":
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL   string
	DSN       string
	RedisAddr string

	// Transport for fixes: http, mqtt or nats.
	Transport  string
	MQTTBroker string
	MQTTTopic  string
	NATSURL    string
	NATSSubj   string

	Assets  int
	Steps   int
	StepKm  float64
	Timeout time.Duration
	Settle  time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("FLEET_SIM_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", envOrDefault("FLEET_DB_DSN", ""), "Postgres DSN (optional, enables ledger checks)")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("FLEET_REDIS_ADDR", ""), "Redis address (optional, enables index checks)")
	flag.StringVar(&cfg.Transport, "transport", envOrDefault("FLEET_SIM_TRANSPORT", "http"), "Fix transport: http, mqtt or nats")
	flag.StringVar(&cfg.MQTTBroker, "mqtt", envOrDefault("FLEET_MQTT_BROKER", "tcp://localhost:1883"), "MQTT broker URL")
	flag.StringVar(&cfg.MQTTTopic, "mqtt-topic", envOrDefault("FLEET_SIM_MQTT_TOPIC", "fleet/assets/%s/location"), "MQTT topic pattern, %s is the asset id")
	flag.StringVar(&cfg.NATSURL, "nats", envOrDefault("FLEET_NATS_URL", "nats://localhost:4222"), "NATS URL")
	flag.StringVar(&cfg.NATSSubj, "nats-subject", envOrDefault("FLEET_NATS_SUBJECT", "fleet.fixes"), "NATS subject")
	flag.IntVar(&cfg.Assets, "assets", envOrDefaultInt("FLEET_SIM_ASSETS", 10), "Number of simulated assets")
	flag.IntVar(&cfg.Steps, "steps", envOrDefaultInt("FLEET_SIM_STEPS", 20), "Fixes per asset")
	flag.Float64Var(&cfg.StepKm, "step-km", envOrDefaultFloat("FLEET_SIM_STEP_KM", 0.2), "Distance travelled per fix")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("FLEET_SIM_TIMEOUT", 60*time.Second), "Total timeout")
	flag.DurationVar(&cfg.Settle, "settle", envOrDefaultDuration("FLEET_SIM_SETTLE", 2*time.Second), "Wait after broker publishing before checks")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Transport = strings.ToLower(cfg.Transport)
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
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
