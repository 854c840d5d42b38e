package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/registry-core/internal/api"
	"github.com/nerrad567/registry-core/internal/audit"
	"github.com/nerrad567/registry-core/internal/auth"
	"github.com/nerrad567/registry-core/internal/infrastructure/config"
	"github.com/nerrad567/registry-core/internal/infrastructure/database"
	"github.com/nerrad567/registry-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/registry-core/internal/infrastructure/logging"
	"github.com/nerrad567/registry-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/registry-core/internal/registry"
	"github.com/nerrad567/registry-core/internal/store"
	"github.com/nerrad567/registry-core/migrations"
)

// gaugeInterval is how often device-count gauges are written to InfluxDB.
const gaugeInterval = time.Minute

// run is the service, separated from main for testability. It returns
// nil on clean shutdown once ctx is cancelled.
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting registryd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	// Audit entries are drained before the database closes.
	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db.DB), cfg.Registry.AuditBuffer)
	recorder.SetLogger(log.Component("audit"))
	auditCtx, stopAudit := context.WithCancel(context.Background())
	recorder.Start(auditCtx)
	defer func() {
		stopAudit()
		recorder.Wait()
	}()

	mode, err := registry.ParseAccessMode(cfg.Registry.AccessMode)
	if err != nil {
		return fmt.Errorf("registry config: %w", err)
	}
	st := store.New(store.NewSQLiteRepository(db.DB), store.Options{
		AccessMode: mode,
		MaxDevices: cfg.Registry.MaxDevices,
		Audit:      recorder,
	})
	st.SetLogger(log.Component("store"))
	if loadErr := st.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading registry store: %w", loadErr)
	}
	stats := st.Stats()
	log.Info("registry store loaded",
		"registries", stats.Registries,
		"devices", stats.Devices,
		"access_mode", stats.AccessMode,
	)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		publisher := mqtt.NewPublisher(mqttClient, byte(cfg.MQTT.QoS), 0)
		publisher.SetLogger(log.Component("mqtt"))
		pubCtx, stopPublisher := context.WithCancel(context.Background())
		publisher.Start(pubCtx)
		defer func() {
			stopPublisher()
			publisher.Wait()
		}()
		st.Subscribe(publisher)

		if cfg.MQTT.Ingest.Enabled {
			ingestor := mqtt.NewIngestor(mqttClient, st, registry.Identity(cfg.MQTT.Ingest.Identity), byte(cfg.MQTT.QoS))
			if startErr := ingestor.Start(); startErr != nil {
				return fmt.Errorf("starting MQTT ingest: %w", startErr)
			}
			defer func() {
				if stopErr := ingestor.Stop(); stopErr != nil {
					log.Warn("error stopping MQTT ingest", "error", stopErr)
				}
			}()
			log.Info("MQTT ingest enabled", "topic", mqtt.Topics{}.AllIngestData(), "identity", cfg.MQTT.Ingest.Identity)
		}
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		st.Subscribe(influxClient)
		go influxClient.RunGauges(ctx, gaugeInterval, st.Stats)
	} else {
		log.Info("InfluxDB disabled")
	}

	var apiKeys *auth.Authenticator
	if cfg.Security.APIKeys.Enabled {
		apiKeys = auth.NewAuthenticator(auth.NewSQLiteAPIKeyRepository(db.DB))
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Store:    st,
		Audit:    audit.NewSQLiteRepository(db.DB),
		APIKeys:  apiKeys,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, InfluxDB, MQTT publisher and
	// client, audit drain, database.
	return nil
}

// openDatabase opens the configured database and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already returning the migration error
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// healthCheck verifies the connected infrastructure. Disabled components
// are passed as nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
