// Netwatch - device reachability monitor
//
// Netwatch keeps a registry of network devices in SQLite, probes each
// monitored device on a fixed interval, and records Online/Offline
// transitions in a bounded per-device history. Results are served over a
// JSON API and a WebSocket feed, and optionally exported to MQTT and
// InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/netwatch-core/migrations"

	"github.com/nerrad567/netwatch-core/internal/api"
	"github.com/nerrad567/netwatch-core/internal/device"
	"github.com/nerrad567/netwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/netwatch-core/internal/infrastructure/database"
	"github.com/nerrad567/netwatch-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/netwatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/netwatch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/netwatch-core/internal/monitor"
	"github.com/nerrad567/netwatch-core/internal/probe"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until ctx is cancelled, then shuts
// down in reverse order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Netwatch",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Nothing useful to do on shutdown
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	db, err := database.OpenHandle(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := device.NewRegistry(device.NewSQLiteRepository(db))
	registry.SetLogger(log.With("component", "registry"))

	devices, err := registry.List(ctx)
	if err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}
	log.Info("device registry initialised", "devices", len(devices))

	prober, err := probe.New(cfg.Monitor.Prober, cfg.Monitor.PingBinary, log.With("component", "probe"))
	if err != nil {
		return fmt.Errorf("creating prober: %w", err)
	}

	supervisor := monitor.New(registry, prober, monitor.Options{
		Interval: cfg.Monitor.Interval(),
		Timeout:  cfg.Monitor.Timeout(),
	})
	supervisor.SetLogger(log.With("component", "monitor"))
	log.Info("supervisor ready",
		"prober", cfg.Monitor.Prober,
		"interval", cfg.Monitor.Interval(),
		"timeout", cfg.Monitor.Timeout(),
	)

	checks := map[string]api.HealthChecker{"database": db}
	connections := map[string]api.ConnectionReporter{}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := connectMQTT(cfg.MQTT, registry, supervisor, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
		connections["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		supervisor.AddObserver(monitor.NewInfluxObserver(influxClient))
		checks["influxdb"] = influxClient
		connections["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Registered after the exporters so sessions stop before they close.
	defer func() {
		log.Info("stopping all monitoring")
		if closeErr := supervisor.Close(); closeErr != nil {
			log.Error("error stopping monitoring", "error", closeErr)
		}
	}()

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.With("component", "api"),
		Registry:    registry,
		Supervisor:  supervisor,
		Checks:      checks,
		Store:       db,
		Connections: connections,
		Version:     version,
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
	log.Info("API server listening", "address", server.Addr())

	if cfg.Monitor.AutoStart {
		supervisor.StartAll(ctx)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// connectMQTT connects the broker client, exports checks through it, and
// accepts remote monitoring commands.
func connectMQTT(cfg config.MQTTConfig, registry *device.Registry, supervisor *monitor.Supervisor, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg, func() mqtt.Summary {
		return mqtt.Summary{Devices: registry.Count(), Running: len(supervisor.Running())}
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	client.SetStateHandler(func(connected bool, err error) {
		if connected {
			log.Info("MQTT reconnected")
			return
		}
		log.Warn("MQTT disconnected", "error", err)
	})

	topics := client.Topics()
	// #nosec G115 -- qos validated to 0..2 by config
	supervisor.AddObserver(monitor.NewMQTTObserver(client, topics, byte(cfg.QoS)))
	if err := supervisor.SubscribeCommands(client, topics); err != nil {
		client.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("subscribing to monitoring commands: %w", err)
	}
	log.Info("listening for monitoring commands", "topic", topics.MonitoringCommand())

	return client, nil
}
