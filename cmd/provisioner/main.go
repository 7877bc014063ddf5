// FIWARE Provisioner
//
// This is the main entry point for the provisioning service. It accepts
// device registrations on POST /devices and makes sure the IoT Agent holds
// a device group and a device record, the first measure reaches the context
// broker and a QuantumLeap subscription exists for the entity type.
//
// Usage:
//
//	provisioner                          run the HTTP service
//	provisioner token <subject> <role>   print a signed bearer token
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/nerrad567/fiware-provisioner/migrations"

	"github.com/nerrad567/fiware-provisioner/internal/api"
	"github.com/nerrad567/fiware-provisioner/internal/audit"
	"github.com/nerrad567/fiware-provisioner/internal/auth"
	"github.com/nerrad567/fiware-provisioner/internal/fiware"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/config"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/database"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/influxdb"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/logging"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/mqtt"
	"github.com/nerrad567/fiware-provisioner/internal/provisioning"
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
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the service and blocks until ctx is cancelled. Returning an
// error lets main handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting FIWARE provisioner",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
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

	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	checks := []api.HealthCheck{{Name: "database", Required: true, Check: db.HealthCheck}}

	// MQTT is optional: provisioning events are published when enabled.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		checks = append(checks, api.HealthCheck{Name: "mqtt", Check: mqttClient.HealthCheck})
	} else {
		log.Info("MQTT disabled")
	}

	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		influxClient = nil
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
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
		checks = append(checks, api.HealthCheck{Name: "influxdb", Check: influxClient.HealthCheck})
	}

	schemas, err := provisioning.SchemasFromConfig(cfg.EntityTypes, cfg.Provisioning.HealthStatus)
	if err != nil {
		return fmt.Errorf("loading entity schemas: %w", err)
	}
	log.Info("entity schemas loaded", "types", schemas.Types())

	provisioner, err := newProvisioner(cfg, db, schemas)
	if err != nil {
		return err
	}
	provisioner.SetLogger(log)
	log.Info("provisioner initialised",
		"entity_type", provisioner.EntityType(),
		"allocator", cfg.Provisioning.Allocator,
		"iot_agent", cfg.IoTAgent.NorthURL(),
		"orion", cfg.Orion.URL(),
		"compensate", cfg.Provisioning.Compensate,
	)

	metrics, err := provisioning.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	provisioner.AddObserver(metrics)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	provisioner.AddObserver(auditRepo)

	if influxClient != nil {
		provisioner.AddObserver(provisioning.NewTimeSeriesObserver(influxClient))
	}
	if mqttClient != nil {
		provisioner.AddObserver(provisioning.NewEventObserver(mqttClient, schemas))
	}

	var hub *api.Hub
	if cfg.WebSocket.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		go hub.Run(ctx)
		provisioner.AddObserver(hub)
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Provisioner: provisioner,
		Audit:       auditRepo,
		Gatherer:    prometheus.DefaultGatherer,
		Checks:      checks,
		Hub:         hub,
		Version:     version,
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

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API server, InfluxDB,
	// MQTT, database.
	return nil
}

// newProvisioner builds the FIWARE clients and the identifier allocator
// selected by provisioning.allocator.
func newProvisioner(cfg *config.Config, db *database.DB, schemas *provisioning.Schemas) (*provisioning.Provisioner, error) {
	opts := fiware.Options{
		Tenant: fiware.Tenant{
			Service:     cfg.Tenant.Service,
			ServicePath: cfg.Tenant.ServicePath,
		},
		Timeout:  cfg.Upstream.Timeout(),
		PageSize: cfg.Upstream.PageSize,
	}
	agent := fiware.NewIoTAgent(cfg.IoTAgent.NorthURL(), cfg.IoTAgent.SouthURL(),
		cfg.IoTAgent.APIKey, cfg.IoTAgent.Resource, opts)
	orion := fiware.NewOrion(cfg.Orion.URL(), opts)

	var allocator provisioning.Allocator
	switch cfg.Provisioning.Allocator {
	case config.AllocatorRegistry:
		allocator = provisioning.RegistryAllocator{}
	default:
		allocator = provisioning.NewSequenceAllocator(db.DB)
	}

	p, err := provisioning.New(agent, orion, schemas, allocator, provisioning.Settings{
		EntityType:       cfg.Provisioning.EntityType,
		AnonymousID:      cfg.Provisioning.AnonymousID,
		StrictValidation: cfg.Provisioning.StrictValidation,
		Compensate:       cfg.Provisioning.Compensate,
		Group: provisioning.GroupSettings{
			APIKey:    cfg.IoTAgent.APIKey,
			BrokerURL: cfg.Orion.URL(),
			Resource:  cfg.IoTAgent.Resource,
		},
		Device: provisioning.DeviceSettings{
			Protocol:  cfg.IoTAgent.Protocol,
			Transport: cfg.IoTAgent.Transport,
		},
		Subscription: provisioning.SubscriptionSettings{
			NotifyURL:  cfg.QuantumLeap.NotifyURL(),
			Throttling: cfg.Provisioning.Throttling,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating provisioner: %w", err)
	}
	return p, nil
}

// runToken prints a bearer token for the API. The signing secret comes
// from the loaded configuration (security.jwt.secret or
// PROVISIONER_JWT_SECRET).
//
//	provisioner token <subject> <role> [ttl]
func runToken(args []string, out io.Writer) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: provisioner token <subject> <role> [ttl]")
	}

	var ttl time.Duration
	if len(args) == 3 {
		d, err := time.ParseDuration(args[2])
		if err != nil {
			return fmt.Errorf("parsing ttl: %w", err)
		}
		ttl = d
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is not set")
	}

	token, err := auth.GenerateAccessToken(args[0], auth.Role(args[1]), cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// getConfigPath returns the configuration file path.
// Uses PROVISIONER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PROVISIONER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
