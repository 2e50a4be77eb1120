// Relaylight forwarder.
//
// Stores command records and delivers each one to its device exactly once:
// POST /api/v1/commands creates a pending record, a creation event is
// published, and the forwarder sends a single GET to the device and writes
// the outcome back to the record.
//
// With MQTT enabled, creation events travel through the broker; otherwise
// they are handed to the forwarder in-process.
//
// "relaylight-forwarder migrate-down" rolls back the latest schema
// migration and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/relaylight/migrations"

	"github.com/nerrad567/relaylight/internal/forwarder"
	"github.com/nerrad567/relaylight/internal/infrastructure/config"
	"github.com/nerrad567/relaylight/internal/infrastructure/database"
	"github.com/nerrad567/relaylight/internal/infrastructure/influxdb"
	"github.com/nerrad567/relaylight/internal/infrastructure/logging"
	"github.com/nerrad567/relaylight/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// defaultClientID identifies the forwarder to the broker when
// mqtt.broker.client_id is unset.
const defaultClientID = "relaylight-forwarder"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate-down" {
		err = migrateDown(ctx)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting relaylight forwarder",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("region", cfg.Forwarder.Region)
	defer log.Close() //nolint:errcheck // nothing to report to
	log.Info("configuration loaded", "path", configPath)

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store := forwarder.NewSQLiteRepository(db.DB)

	fwdOpts := forwarder.Options{
		Store:          store,
		RequestTimeout: cfg.Forwarder.GetRequestTimeout(),
		UserAgent:      cfg.Forwarder.UserAgent,
		Headers:        cfg.Forwarder.Headers,
		Region:         cfg.Forwarder.Region,
		MaxInstances:   cfg.Forwarder.MaxInstances,
		Logger:         log.With("component", "forwarder"),
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		fwdOpts.Metrics = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	fwd, err := forwarder.New(fwdOpts)
	if err != nil {
		return fmt.Errorf("creating forwarder: %w", err)
	}
	// Runs after the API and broker close and before the database does.
	defer func() {
		log.Info("waiting for in-flight deliveries")
		fwd.Wait()
	}()

	// Deliveries outlive the shutdown signal; the request timeout bounds them.
	deliveryCtx := context.WithoutCancel(ctx)

	apiDeps := forwarder.APIDeps{
		Config:  cfg.Forwarder.API,
		Logger:  log,
		Store:   store,
		DB:      db,
		Version: version,
	}
	deps := []dependency{{"database", db}}
	if influxClient != nil {
		apiDeps.Metrics = influxClient
		deps = append(deps, dependency{"influxdb", influxClient})
	}

	if cfg.MQTT.Enabled {
		mqttCfg := cfg.MQTT.WithClientID(defaultClientID)
		mqttClient, err := mqtt.Connect(mqttCfg)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected", "client_id", mqttCfg.Broker.ClientID)
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", mqttCfg.Broker.Host, mqttCfg.Broker.Port),
			"client_id", mqttCfg.Broker.ClientID,
		)

		qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated 0..2
		if err := forwarder.Subscribe(deliveryCtx, mqttClient, qos, fwd); err != nil {
			return err
		}
		// Stop taking events before the broker link closes.
		defer func() {
			if unsubErr := forwarder.Unsubscribe(mqttClient); unsubErr != nil {
				log.Warn("error unsubscribing from created events", "error", unsubErr)
			}
		}()
		apiDeps.Publisher = forwarder.NewMQTTPublisher(mqttClient, qos)
		apiDeps.Broker = mqttClient
		deps = append(deps, dependency{"mqtt", mqttClient})
	} else {
		log.Info("MQTT disabled, dispatching in-process")
		apiDeps.Publisher = forwarder.NewInlinePublisher(deliveryCtx, fwd)
	}

	api, err := forwarder.NewAPI(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API: %w", err)
	}
	if err := api.Start(ctx); err != nil {
		return err
	}
	defer func() {
		log.Info("stopping API")
		if closeErr := api.Close(); closeErr != nil {
			log.Error("error stopping API", "error", closeErr)
		}
	}()

	deps = append(deps, dependency{"api", api})
	if err := healthCheck(ctx, deps); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", api.Addr())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, unsubscribe, MQTT,
	// in-flight deliveries, InfluxDB, database.
	log.Info("relaylight forwarder stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RELAYLIGHT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RELAYLIGHT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// migrateDown rolls back the most recently applied migration.
func migrateDown(ctx context.Context) error {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing to report to

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-only after rollback

	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	log.Info("latest migration rolled back", "path", cfg.Database.Path)
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// dependency is an infrastructure client verified before serving.
type dependency struct {
	name  string
	check interface{ HealthCheck(ctx context.Context) error }
}

// healthCheck verifies each dependency in order and returns the first
// failure.
func healthCheck(ctx context.Context, deps []dependency) error {
	for _, d := range deps {
		if err := d.check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}
