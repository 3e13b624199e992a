// README: Entry point; loads config, wires stores and services, starts HTTP, ingest and background monitors.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet/internal/config"
	httptransport "fleet/internal/http"
	"fleet/internal/infra"
	"fleet/internal/ingest"
	"fleet/internal/modules/analytics"
	"fleet/internal/modules/asset"
	"fleet/internal/modules/geofence"
	"fleet/internal/modules/ledger"
	"fleet/internal/modules/proximity"
	"fleet/internal/modules/tracking"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		assetRepo  asset.Repository
		ledgerRepo ledger.Repository
		tx         tracking.TxRunner
	)
	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer dbPool.Close()
		if cfg.DB.MigrationsDir != "" {
			if err := infra.ApplyMigrations(ctx, dbPool, cfg.DB.MigrationsDir); err != nil {
				log.Fatalf("migrations: %v", err)
			}
		}
		assetRepo = asset.NewStore(dbPool)
		ledgerRepo = ledger.NewStore(dbPool)
		tx = infra.NewTxManager(dbPool)
		log.Printf("storage: postgres")
	} else {
		assetRepo = asset.NewMemoryStore()
		ledgerRepo = ledger.NewMemoryStore()
		tx = infra.NoTx{}
		log.Printf("storage: in-memory")
	}

	var (
		state geofence.StateStore = geofence.NewMemoryState()
		index proximity.Index     = proximity.NewMemoryIndex()
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatal(err)
		}
		defer redisClient.Close()
		state = geofence.NewRedisState(redisClient)
		index = proximity.NewRedisIndex(redisClient)
	}

	var publisher geofence.Publisher = geofence.NopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		conn, err := infra.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()
		rabbit, err := geofence.NewRabbitPublisher(conn)
		if err != nil {
			log.Fatal(err)
		}
		defer rabbit.Close()
		publisher = rabbit
	}

	var verifier infra.TokenVerifier
	if cfg.AuthEnabled() {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Auth.ProjectID, cfg.Auth.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
	}

	assetSvc := asset.NewService(assetRepo)
	ledgerSvc := ledger.NewService(ledgerRepo, assetRepo)
	engine := geofence.NewEngine(state, ledgerSvc, assetRepo)
	analyticsSvc := analytics.NewService(ledgerSvc, assetRepo, cfg.Tracking.IdleMovementKm)
	proximitySvc := proximity.NewService(index, assetRepo)

	coordinator := tracking.NewCoordinator(tracking.Deps{
		Assets:    assetRepo,
		Registry:  assetSvc,
		Ledger:    ledgerSvc,
		Engine:    engine,
		Analytics: analyticsSvc,
		Proximity: proximitySvc,
		Publisher: publisher,
		Tx:        tx,
	}, tracking.Options{
		DefaultAccuracyM: cfg.Tracking.DefaultAccuracyM,
		MonitorInterval:  cfg.Tracking.MonitorInterval,
		OfflineAfter:     cfg.Tracking.OfflineAfter,
		IdleWindow:       time.Duration(cfg.Tracking.IdleWindowMin * float64(time.Minute)),
	})

	if cfg.GeofenceFile != "" {
		cmds, err := config.LoadGeofences(cfg.GeofenceFile)
		if err != nil {
			log.Fatalf("geofence file: %v", err)
		}
		n, err := assetSvc.SeedGeofences(ctx, cmds)
		if err != nil {
			log.Fatalf("seed geofences: %v", err)
		}
		log.Printf("seeded %d geofences from %s", n, cfg.GeofenceFile)
	}

	if n, err := proximitySvc.Rebuild(ctx); err != nil {
		log.Fatalf("proximity rebuild: %v", err)
	} else {
		log.Printf("proximity index loaded with %d assets", n)
	}

	pool := ingest.NewPool(coordinator, cfg.Ingest.Workers, cfg.Ingest.Buffer, cfg.Ingest.Timeout)
	pool.Start()
	defer pool.Close()
	go pool.RunStatsReporter(ctx, cfg.Ingest.StatsInterval)

	if cfg.MQTT.Broker != "" {
		client, err := infra.NewMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			log.Fatal(err)
		}
		defer client.Disconnect(250)
		sub := ingest.NewMQTTSubscriber(client, pool, cfg.MQTT.Topic)
		if err := sub.Start(); err != nil {
			log.Fatalf("mqtt subscribe: %v", err)
		}
		defer sub.Stop()
		log.Printf("ingest: mqtt %s topic %s", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}
	if cfg.NATS.URL != "" {
		nc, err := infra.NewNATS(cfg.NATS.URL)
		if err != nil {
			log.Fatal(err)
		}
		defer nc.Close()
		sub := ingest.NewNATSSubscriber(nc, pool, cfg.NATS.Subject)
		if err := sub.Start(); err != nil {
			log.Fatalf("nats subscribe: %v", err)
		}
		defer sub.Stop()
		log.Printf("ingest: nats %s subject %s", cfg.NATS.URL, cfg.NATS.Subject)
	}

	go coordinator.RunStatusMonitor(ctx)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Assets:   assetSvc,
		Tracking: coordinator,
		Verifier: verifier,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("fleet-api listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
