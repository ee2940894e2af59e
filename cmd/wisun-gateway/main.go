// Wi-SUN gateway for ECHONET Lite smart electricity meters.
//
// The gateway joins the meter's Wi-SUN B-route PAN through a serial
// Wi-SUN module, polls the meter over ECHONET Lite, and republishes
// readings to MQTT (with Home Assistant discovery), InfluxDB, SQLite
// history, and a REST/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nana4rider/wisun-gateway/migrations"

	"github.com/nana4rider/wisun-gateway/internal/api"
	"github.com/nana4rider/wisun-gateway/internal/infrastructure/config"
	"github.com/nana4rider/wisun-gateway/internal/infrastructure/database"
	"github.com/nana4rider/wisun-gateway/internal/infrastructure/influxdb"
	"github.com/nana4rider/wisun-gateway/internal/infrastructure/logging"
	"github.com/nana4rider/wisun-gateway/internal/infrastructure/mqtt"
	"github.com/nana4rider/wisun-gateway/internal/meter"
	"github.com/nana4rider/wisun-gateway/internal/readings"
	"github.com/nana4rider/wisun-gateway/internal/wisun"
)

// Build metadata, stamped via -ldflags "-X main.version=..." at
// release time.
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	// Ctrl+C or SIGTERM cancels the root context and unwinds run().
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run holds the real startup and shutdown sequence; main only maps
// its error to an exit code.
func run(ctx context.Context) error {
	// Log with defaults until the config tells us otherwise.
	log := logging.Default()
	log.Info("starting Wi-SUN gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Swap in the configured logger.
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	readingRepo := readings.NewSQLiteRepository(db.DB)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
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

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// InfluxDB is an optional sink; a nil client means disabled.
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
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to the Wi-SUN module
	wisunClient, err := wisun.Connect(ctx, wisun.Config{
		Device:         cfg.WiSUN.Device,
		BaudRate:       cfg.WiSUN.BaudRate,
		CommandTimeout: cfg.WiSUN.GetCommandTimeout(),
		ScanTimeout:    cfg.WiSUN.GetScanTimeout(),
		JoinTimeout:    cfg.WiSUN.GetJoinTimeout(),
	})
	if err != nil {
		return fmt.Errorf("connecting to Wi-SUN module: %w", err)
	}
	defer func() {
		log.Info("closing Wi-SUN module")
		wisunClient.Close()
	}()
	wisunClient.SetLogger(log)
	log.Info("Wi-SUN module connected", "device", cfg.WiSUN.Device)

	// Shared WebSocket hub: the bridge broadcasts readings into it and
	// the API server accepts client connections on it.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Start the meter bridge
	bridge, err := startMeterBridge(ctx, cfg, wisunClient, mqttClient, influxClient, readingRepo, hub, log)
	if err != nil {
		return fmt.Errorf("starting meter bridge: %w", err)
	}
	defer func() {
		log.Info("stopping meter bridge")
		bridge.Stop()
	}()

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Bridge:      bridge,
		Repo:        readingRepo,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Meter bridge
	// 3. Wi-SUN module
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("Wi-SUN gateway stopped")
	return nil
}

// getConfigPath resolves the config file location, preferring the
// WISUN_CONFIG environment variable over the built-in default.
func getConfigPath() string {
	if path := os.Getenv("WISUN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startMeterBridge wires the meter bridge to the Wi-SUN link and all
// publishing targets, then starts it.
//
// The bridge scans for the meter's PAN and completes the PANA join during
// Start(), so a successful return means the meter session is up.
func startMeterBridge(
	ctx context.Context,
	cfg *config.Config,
	wisunClient *wisun.Client,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	repo readings.Repository,
	hub *api.Hub,
	log *logging.Logger,
) (*meter.Bridge, error) {
	opts := meter.BridgeOptions{
		Config:      cfg,
		Connector:   wisunClient,
		MQTTClient:  mqttClient,
		Repository:  repo,
		Broadcaster: hub,
		Logger:      log,
		Version:     version,
	}
	// Leave Metrics nil rather than wrapping a nil client in the interface.
	if influxClient != nil {
		opts.Metrics = influxClient
	}

	bridge, err := meter.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating meter bridge: %w", err)
	}

	log.Info("starting meter bridge",
		"poll_interval", cfg.Meter.GetPollInterval(),
		"discovery", cfg.Meter.Discovery,
	)

	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting meter bridge: %w", err)
	}
	log.Info("meter bridge started")

	return bridge, nil
}

// healthCheck pings every connected backend once and returns the
// first failure. influxClient may be nil when the sink is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// The meter session is verified during bridge Start(), which scans
	// and joins before returning successfully.

	return nil
}
