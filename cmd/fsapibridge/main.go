// Gray Logic FSAPI Bridge
//
// Connects Frontier Silicon (FSAPI) internet radios and network audio
// receivers to the Gray Logic MQTT bus. Each receiver is polled over HTTP,
// its state published as retained MQTT messages, and commands received on
// graylogic/command/fsapi/{id} are executed against it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-fsapi/internal/api"
	fsbridge "github.com/nerrad567/gray-logic-fsapi/internal/bridges/fsapi"
	"github.com/nerrad567/gray-logic-fsapi/internal/discovery"
	"github.com/nerrad567/gray-logic-fsapi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fsapi/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-fsapi/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fsapi/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fsapi/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fsapi/internal/receiver"
	"github.com/nerrad567/gray-logic-fsapi/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the infrastructure and the bridge, then blocks until ctx ends.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting FSAPI bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, logging.DefaultService, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	if !cfg.Protocols.FSAPI.Enabled {
		log.Warn("FSAPI bridge disabled in configuration, nothing to do")
		return nil
	}

	bridgeCfg, err := fsbridge.LoadConfig(cfg.Protocols.FSAPI.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading bridge config: %w", err)
	}
	log.Info("bridge config loaded",
		"path", cfg.Protocols.FSAPI.ConfigFile,
		"receivers", len(bridgeCfg.Receivers),
		"discovery", bridgeCfg.Discovery.Enabled,
	)

	opts := fsbridge.BridgeOptions{
		Config:  bridgeCfg,
		Logger:  log.Component("bridge"),
		Version: version,
	}

	if cfg.Database.Enabled {
		db, dbErr := openRegistry(ctx, cfg.Database, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		opts.Registry = newRegistryAdapter(receiver.NewSQLiteRepository(db.DB))
	} else {
		log.Info("receiver registry disabled")
	}

	mqttClient, err := connectMQTT(cfg.MQTT, bridgeCfg.Bridge.ID)
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	opts.MQTTClient = &mqttBridgeAdapter{client: mqttClient}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		opts.Telemetry = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	if bridgeCfg.Discovery.Enabled {
		opts.Discoverer = discovery.NewScanner(discovery.Options{
			LocalAddr: bridgeCfg.Discovery.LocalAddr,
			Logger:    log.Component("discovery"),
		})
	}

	bridge, err := fsbridge.NewBridge(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Health is retained, so republish it after the broker comes back;
	// the LWT may have replaced it while we were away.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if pubErr := bridge.Health().PublishNow(); pubErr != nil {
			log.Warn("failed to republish health after reconnect", "error", pubErr)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("FSAPI bridge running", "bridge_id", bridgeCfg.Bridge.ID, "receivers", len(bridge.ReceiverIDs()))

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = startAPI(ctx, cfg, log, bridge)
		if err != nil {
			bridge.Stop()
			return err
		}
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	if apiServer != nil {
		if err := apiServer.Close(); err != nil {
			log.Warn("API server shutdown error", "error", err)
		}
	}
	bridge.Stop()
	log.Info("FSAPI bridge stopped")
	return nil
}

// startAPI starts the HTTP status API over the running bridge.
func startAPI(ctx context.Context, cfg *config.Config, log *logging.Logger, bridge api.Bridge) (*api.Server, error) {
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Bridge:   bridge,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return server, nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openRegistry opens the SQLite database and applies pending migrations.
func openRegistry(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path(), "migrations_applied", applied)
	return db, nil
}

// connectMQTT connects with the bridge's offline health message as the LWT.
func connectMQTT(cfg config.MQTTConfig, bridgeID string) (*mqtt.Client, error) {
	lwt, err := json.Marshal(fsbridge.NewLWTMessage(bridgeID))
	if err != nil {
		return nil, fmt.Errorf("marshalling LWT: %w", err)
	}
	return mqtt.Connect(cfg, &mqtt.Will{
		Topic:   mqtt.Topics{}.BridgeHealth(fsbridge.Protocol),
		Payload: lwt,
		QoS:     1,
	})
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// the bridge's handlers report problems as acks, not errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements fsbridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements fsbridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements fsbridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements fsbridge.MQTTClient. The client is closed by run's
// defer chain, after the bridge has published its stopping status.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
