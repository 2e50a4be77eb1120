// Relaylight device agent.
//
// Runs on the device that owns the light output. It joins the network,
// starts the device event loop and serves the command intake:
//
//	GET /command?cmd=BLINK&duration=1000
//	GET /health
//
// Heartbeats and actuation events go to MQTT, and actuation metrics to
// InfluxDB, when those are enabled in the config.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/relaylight/internal/actuator"
	"github.com/nerrad567/relaylight/internal/device"
	"github.com/nerrad567/relaylight/internal/executor"
	"github.com/nerrad567/relaylight/internal/infrastructure/config"
	"github.com/nerrad567/relaylight/internal/infrastructure/influxdb"
	"github.com/nerrad567/relaylight/internal/infrastructure/logging"
	"github.com/nerrad567/relaylight/internal/infrastructure/mqtt"
	"github.com/nerrad567/relaylight/internal/intake"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// probeTimeout bounds each network join attempt.
const probeTimeout = 2 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting relaylight device",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("device_id", cfg.Device.ID)
	defer log.Close() //nolint:errcheck // nothing to report to
	log.Info("configuration loaded", "path", configPath)

	// The device does nothing useful offline; give up after the join budget.
	probe := device.TCPProbe(cfg.Device.Network.ProbeAddress, probeTimeout)
	if err := device.JoinNetwork(ctx, probe,
		cfg.Device.Network.JoinAttempts,
		cfg.Device.Network.GetJoinDelay(),
		log,
	); err != nil {
		return fmt.Errorf("joining network: %w", err)
	}

	out, err := openOutput(cfg.Actuator)
	if err != nil {
		return err
	}
	driver := actuator.NewDriver(out, actuator.Options{
		Inverted: cfg.Actuator.Inverted,
		MaxLevel: uint8(cfg.Actuator.MaxLevel), //nolint:gosec // validated 1..255
		Logger:   log,
	})
	driver.SetState(false)
	exec := executor.New(driver, executor.Options{Logger: log})
	log.Info("actuator ready",
		"output", cfg.Actuator.Output,
		"inverted", cfg.Actuator.Inverted,
	)

	loopOpts := device.Options{
		DeviceID:          cfg.Device.ID,
		Executor:          exec,
		HeartbeatInterval: cfg.Device.GetHeartbeatInterval(),
		Logger:            log.With("component", "loop"),
	}

	// Checked once the intake is listening.
	var deps []dependency

	if cfg.MQTT.Enabled {
		mqttCfg := cfg.MQTT.WithClientID(cfg.Device.ID)
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
		loopOpts.Publisher = mqttClient
		deps = append(deps, dependency{"mqtt", mqttClient})
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
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
		loopOpts.Metrics = influxClient
		deps = append(deps, dependency{"influxdb", influxClient})
	} else {
		log.Info("InfluxDB disabled")
	}

	loop := device.NewLoop(loopOpts)
	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()
	defer func() {
		stopLoop()
		if loopErr := <-loopDone; loopErr != nil && !errors.Is(loopErr, context.Canceled) {
			log.Error("device loop stopped with error", "error", loopErr)
		}
		// Leave the light off on the way out.
		driver.SetState(false)
	}()

	srv, err := intake.New(intake.Deps{
		Config:  cfg.Intake,
		Logger:  log,
		Device:  loop,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating intake: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer func() {
		log.Info("stopping intake")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping intake", "error", closeErr)
		}
	}()

	deps = append(deps, dependency{"intake", srv})
	if err := healthCheck(ctx, deps); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", srv.Addr())

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case loopErr := <-loopDone:
		// Put the result back for the deferred stop.
		loopDone <- loopErr
		return fmt.Errorf("device loop exited: %w", loopErr)
	}

	// Deferred calls run in reverse order: intake, loop, InfluxDB, MQTT.
	log.Info("relaylight device stopped")
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

// openOutput selects the physical output.
func openOutput(cfg config.ActuatorConfig) (actuator.Output, error) {
	switch strings.ToLower(cfg.Output) {
	case "sysfs":
		return actuator.NewSysfs(cfg.SysfsPath), nil
	case "simulated", "":
		return actuator.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown actuator output %q", cfg.Output)
	}
}
