// RoastSight Core - Simulated Roaster Rig Service
//
// This is the main entry point for the RoastSight Core application.
// It hosts a simulated process-control rig driver behind an HTTP/WebSocket
// API, records sampled state to SQLite, and optionally publishes telemetry
// to MQTT and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/Eventect/roastsight-core/migrations"

	"github.com/Eventect/roastsight-core/internal/api"
	"github.com/Eventect/roastsight-core/internal/driver"
	"github.com/Eventect/roastsight-core/internal/history"
	"github.com/Eventect/roastsight-core/internal/infrastructure/config"
	"github.com/Eventect/roastsight-core/internal/infrastructure/database"
	"github.com/Eventect/roastsight-core/internal/infrastructure/influxdb"
	"github.com/Eventect/roastsight-core/internal/infrastructure/logging"
	"github.com/Eventect/roastsight-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting RoastSight Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration. The simulator runs with built-in defaults when no
	// config file exists at the resolved path.
	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// History recording (optional)
	var repo *history.Repository
	var recorder *history.Recorder
	if cfg.History.Enabled {
		db, openErr := database.Open(database.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.History.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		repo = history.NewRepository(db)
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		recorder = history.NewRecorder(repo, retention, log)
		defer recorder.Close()
	} else {
		log.Info("history recording disabled")
	}

	// MQTT telemetry (optional)
	var mqttClient *mqtt.Client
	var publisher *mqtt.Publisher
	if cfg.Telemetry.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.Telemetry.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Telemetry.MQTT.Broker.Host, cfg.Telemetry.MQTT.Broker.Port),
			"client_id", cfg.Telemetry.MQTT.Broker.ClientID,
		)

		publisher = mqtt.NewPublisher(mqttClient)
		defer publisher.Close()
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.Telemetry.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.Telemetry.InfluxDB)
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
			"url", cfg.Telemetry.InfluxDB.URL,
			"org", cfg.Telemetry.InfluxDB.Org,
			"bucket", cfg.Telemetry.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the rig driver
	rig, err := driver.New(driverConfig(cfg.Driver), driver.RoasterProfile(), driver.WithLogger(log))
	if err != nil {
		return fmt.Errorf("creating rig driver: %w", err)
	}
	defer rig.Close()
	log.Info("rig driver created", "rig_id", cfg.Rig.ID, "name", cfg.Rig.Name)

	// Attach observers before connecting so no tick or event is missed
	if recorder != nil {
		rig.AddObserver(recorder)
	}
	if publisher != nil {
		rig.AddObserver(publisher)
	}
	if influxClient != nil {
		rig.AddObserver(influxClient)
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Rig:     rig,
		History: repo,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Initiate the rig connection. Rejected attempts retry in the background.
	rig.Connect()

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Rig driver (stops sampling, cancels actuation)
	// 3. InfluxDB (if enabled)
	// 4. MQTT publisher + client (if enabled)
	// 5. History recorder + database (if enabled)

	log.Info("RoastSight Core stopped")
	return nil
}

// loadConfig resolves the config path and loads it, falling back to the
// built-in defaults when no file exists at the resolved path.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path := getConfigPath()

	cfg, err := config.Load(path)
	if err == nil {
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		log.Info("no config file found, using defaults", "path", path)
		return config.Default(), nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

// getConfigPath returns the configuration file path.
// Uses ROASTSIGHT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ROASTSIGHT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// driverConfig maps the file-level driver settings to the driver's options.
func driverConfig(cfg config.DriverConfig) driver.Config {
	return driver.Config{
		ConnectionRejectionPercentage:   cfg.ConnectionRejectionPercentage,
		SamplingInterval:                cfg.SamplingInterval(),
		ReconnectDelay:                  cfg.ReconnectDelay(),
		MaxReconnectionAttempts:         cfg.MaxReconnectionAttempts,
		CommandRetryLimited:             cfg.CommandRetryLimited,
		MaxNumberOfRetries:              cfg.MaxNumberOfRetries,
		RetryFrequency:                  cfg.RetryFrequency,
		DisconnectionOnUpdatePercentage: cfg.DisconnectionOnUpdatePercentage,
		ActuationStep:                   cfg.ActuationStep,
		ActuationStepInterval:           cfg.ActuationStepInterval(),
		ConvergenceBand:                 cfg.ConvergenceBand,
		ConvergenceTolerance:            cfg.ConvergenceTolerance,
	}
}

// healthCheck verifies the optional telemetry connections are healthy.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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
