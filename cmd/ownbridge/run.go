package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/own-bridge/internal/api"
	"github.com/nerrad567/own-bridge/internal/bridges/openwebnet"
	"github.com/nerrad567/own-bridge/internal/infrastructure/config"
	"github.com/nerrad567/own-bridge/internal/infrastructure/database"
	"github.com/nerrad567/own-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/own-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/own-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/own-bridge/internal/inventory"
	"github.com/nerrad567/own-bridge/migrations"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath(cmd))
		},
	}
}

// run is the service logic, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - path: Service configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, path string) error {
	log := logging.Default()
	log.Info("starting own-bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Bridge definitions are validated before anything connects.
	owCfg, err := openwebnet.LoadConfig(cfg.OpenWebNet.ConfigFile)
	if err != nil {
		return err
	}
	log.Info("openwebnet config loaded",
		"path", cfg.OpenWebNet.ConfigFile,
		"gateways", len(owCfg.Gateways),
		"things", len(owCfg.Things),
	)

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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := inventory.NewSQLiteRepository(db.DB)

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
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	svcCfg := openwebnet.ServiceConfig{
		Config:            owCfg,
		ConnectTimeout:    cfg.GetConnectTimeout(),
		ReconnectInterval: cfg.GetReconnectInterval(),
		MQTT:              mqttClient,
		QoS:               byte(cfg.MQTT.QoS), //nolint:gosec // validated 0..2
		Inventory:         repo,
		Logger:            log.Component("openwebnet"),
	}
	// Assigned only when enabled so the interface is not a typed nil.
	if influxClient != nil {
		svcCfg.History = influxClient
	}

	service, err := openwebnet.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("creating openwebnet service: %w", err)
	}
	if err := service.Start(ctx); err != nil {
		service.Close()
		return fmt.Errorf("starting openwebnet service: %w", err)
	}

	reporter := openwebnet.NewHealthReporter(openwebnet.HealthReporterConfig{
		Version:   version,
		Interval:  cfg.GetHealthInterval(),
		Publisher: mqttClient,
		Bridges:   service,
		Logger:    log.Component("health"),
	})

	var server *api.Server
	if cfg.API.Enabled {
		server, err = api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log.Component("api"),
			Service:   service,
			Inventory: repo,
			MQTT:      mqttClient,
			Database:  db,
			Version:   version,
		})
		if err != nil {
			service.Close()
			return fmt.Errorf("creating API server: %w", err)
		}
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	err = supervise(ctx, service, reporter, server)
	log.Info("own-bridge stopped")
	return err
}

// supervise runs the long-lived parts until ctx is cancelled or one of them
// fails, then stops them. Health reporting stops first so its final
// "stopping" messages go out before the bridges disconnect.
func supervise(ctx context.Context, service *openwebnet.Service, reporter *openwebnet.HealthReporter, server *api.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		reporter.Start(gctx)
		<-gctx.Done()
		reporter.Stop()
		return nil
	})

	if server != nil {
		g.Go(func() error {
			if err := server.Start(gctx); err != nil {
				return fmt.Errorf("starting API server: %w", err)
			}
			<-gctx.Done()
			return server.Close()
		})
	}

	err := g.Wait()
	service.Close()
	return err
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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
	// Gateways are not checked: an unreachable gateway is reported through
	// the bridge status and retried, not treated as a startup failure.
	return nil
}
