package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Allocator modes for provisioning.allocator.
const (
	AllocatorRegistry = "registry"
	AllocatorSequence = "sequence"
)

// Config is the root configuration structure for the provisioner.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	IoTAgent     IoTAgentConfig     `yaml:"iotagent"`
	Orion        OrionConfig        `yaml:"orion"`
	QuantumLeap  QuantumLeapConfig  `yaml:"quantumleap"`
	Tenant       TenantConfig       `yaml:"tenant"`
	Upstream     UpstreamConfig     `yaml:"upstream"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	EntityTypes  []EntityTypeConfig `yaml:"entity_types"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	Security     SecurityConfig     `yaml:"security"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host" env:"PROVISIONER_API_HOST"`
	Port     int              `yaml:"port" env:"PROVISIONER_API_PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the live provisioning event stream.
type WebSocketConfig struct {
	Enabled        bool `yaml:"enabled" env:"PROVISIONER_WEBSOCKET_ENABLED"`
	MaxMessageSize int  `yaml:"max_message_size"`
	PingInterval   int  `yaml:"ping_interval"`
	PongTimeout    int  `yaml:"pong_timeout"`
}

// IoTAgentConfig locates the device registry (FIWARE IoT Agent).
// The north port serves the provisioning API, the south port ingests measures.
type IoTAgentConfig struct {
	Host      string `yaml:"host" env:"IOTAGENT_HOST"`
	NorthPort int    `yaml:"north_port" env:"IOTAGENT_NORTH_PORT"`
	SouthPort int    `yaml:"south_port" env:"IOTAGENT_SOUTH_PORT"`
	APIKey    string `yaml:"api_key" env:"API_KEY"`
	Resource  string `yaml:"resource"`
	Protocol  string `yaml:"protocol"`
	Transport string `yaml:"transport"`
}

// NorthURL returns the base URL of the IoT Agent provisioning API.
func (c IoTAgentConfig) NorthURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.NorthPort)
}

// SouthURL returns the base URL of the IoT Agent measure ingestion endpoint.
func (c IoTAgentConfig) SouthURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.SouthPort)
}

// OrionConfig locates the context broker.
type OrionConfig struct {
	Host string `yaml:"host" env:"ORION_HOST"`
	Port int    `yaml:"port" env:"ORION_PORT"`
}

// URL returns the base URL of the context broker.
func (c OrionConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// QuantumLeapConfig locates the time-series notification sink.
type QuantumLeapConfig struct {
	Host string `yaml:"host" env:"QUANTUMLEAP_HOST"`
	Port int    `yaml:"port" env:"QUANTUMLEAP_PORT"`
}

// NotifyURL returns the sink endpoint subscriptions deliver to.
func (c QuantumLeapConfig) NotifyURL() string {
	return fmt.Sprintf("http://%s:%d/v2/notify", c.Host, c.Port)
}

// TenantConfig holds the FIWARE multi-tenancy identifiers sent on every call.
type TenantConfig struct {
	Service     string `yaml:"service" env:"SERVICE"`
	ServicePath string `yaml:"service_path" env:"SERVICEPATH"`
}

// UpstreamConfig controls outbound HTTP behaviour.
type UpstreamConfig struct {
	// TimeoutSeconds bounds every single outbound call.
	TimeoutSeconds int `yaml:"timeout" env:"PROVISIONER_UPSTREAM_TIMEOUT"`

	// PageSize is the limit used when walking paginated list endpoints.
	PageSize int `yaml:"page_size" env:"PROVISIONER_UPSTREAM_PAGE_SIZE"`
}

// Timeout returns the per-call timeout as a Duration.
func (c UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProvisioningConfig contains orchestration behaviour switches.
type ProvisioningConfig struct {
	// EntityType is the entity type every registration is provisioned as.
	EntityType string `yaml:"entity_type" env:"PROVISIONER_ENTITY_TYPE"`

	// Allocator selects the identifier authority: "registry" or "sequence".
	Allocator string `yaml:"allocator" env:"PROVISIONER_ALLOCATOR"`

	// AnonymousID is recorded when a request carries no external id.
	AnonymousID string `yaml:"anonymous_id"`

	// HealthStatus adds the health_status attribute to every schema.
	HealthStatus bool `yaml:"health_status" env:"PROVISIONER_HEALTH_STATUS"`

	// StrictValidation makes the external id a required request field.
	StrictValidation bool `yaml:"strict_validation" env:"PROVISIONER_STRICT_VALIDATION"`

	// Compensate deletes the device record when a later stage fails.
	Compensate bool `yaml:"compensate" env:"PROVISIONER_COMPENSATE"`

	// Throttling is the subscription notification interval in seconds.
	Throttling int `yaml:"throttling"`
}

// EntityTypeConfig declares the attribute schema of one entity type.
type EntityTypeConfig struct {
	Name            string            `yaml:"name"`
	IDPrefix        string            `yaml:"id_prefix"`
	NamePrefix      string            `yaml:"name_prefix"`
	StaticAttribute string            `yaml:"static_attribute"`
	Attributes      []AttributeConfig `yaml:"attributes"`
}

// AttributeConfig maps a wire object id to an entity attribute. Required
// attributes must be present in every registration request.
type AttributeConfig struct {
	ObjectID string `yaml:"object_id"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"PROVISIONER_DATABASE_PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker settings for provisioning events.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" env:"PROVISIONER_MQTT_ENABLED"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"PROVISIONER_MQTT_HOST"`
	Port     int    `yaml:"port" env:"PROVISIONER_MQTT_PORT"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"PROVISIONER_MQTT_USERNAME"`
	Password string `yaml:"password" env:"PROVISIONER_MQTT_PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"PROVISIONER_INFLUXDB_ENABLED"`
	URL           string `yaml:"url" env:"PROVISIONER_INFLUXDB_URL"`
	Token         string `yaml:"token" env:"PROVISIONER_INFLUXDB_TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"PROVISIONER_LOG_LEVEL"`
	Format string `yaml:"format" env:"PROVISIONER_LOG_FORMAT"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings.
type JWTConfig struct {
	Enabled bool   `yaml:"enabled" env:"PROVISIONER_JWT_ENABLED"`
	Secret  string `yaml:"secret" env:"PROVISIONER_JWT_SECRET"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// The deployment variables of the FIWARE stack keep their usual names
// (ORION_HOST, IOTAGENT_NORTH_PORT, API_KEY, SERVICE, ...); everything
// else follows PROVISIONER_SECTION_KEY.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  120,
			},
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		IoTAgent: IoTAgentConfig{
			Host:      "localhost",
			NorthPort: 4041,
			SouthPort: 7896,
			Resource:  "/iot/json",
			Protocol:  "PDI-IoTA-JSON",
			Transport: "HTTP",
		},
		Orion: OrionConfig{
			Host: "localhost",
			Port: 1026,
		},
		QuantumLeap: QuantumLeapConfig{
			Host: "localhost",
			Port: 8668,
		},
		Tenant: TenantConfig{
			ServicePath: "/",
		},
		Upstream: UpstreamConfig{
			TimeoutSeconds: 10,
			PageSize:       1000,
		},
		Provisioning: ProvisioningConfig{
			EntityType:  "Mobile",
			Allocator:   AllocatorSequence,
			AnonymousID: "anonymous",
			Throttling:  1,
		},
		EntityTypes: []EntityTypeConfig{DefaultMobileType()},
		Database: DatabaseConfig{
			Path:        "./data/provisioner.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fiware-provisioner",
			},
			QoS:         1,
			TopicPrefix: "provisioner",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// DefaultMobileType is the built-in schema for mobile devices reporting a position.
func DefaultMobileType() EntityTypeConfig {
	return EntityTypeConfig{
		Name:            "Mobile",
		IDPrefix:        "Mobile",
		NamePrefix:      "urn-ngsi",
		StaticAttribute: "received_id",
		Attributes: []AttributeConfig{
			{ObjectID: "lat", Name: "latitude", Type: "Float", Required: true},
			{ObjectID: "lon", Name: "longitude", Type: "Float", Required: true},
		},
	}
}

// applyEnvOverrides overlays environment variables onto every section that
// declares env tags. Entity types are file-only.
func applyEnvOverrides(cfg *Config) error {
	sections := []any{
		&cfg.API,
		&cfg.WebSocket,
		&cfg.IoTAgent,
		&cfg.Orion,
		&cfg.QuantumLeap,
		&cfg.Tenant,
		&cfg.Upstream,
		&cfg.Provisioning,
		&cfg.Database,
		&cfg.MQTT,
		&cfg.InfluxDB,
		&cfg.Logging,
		&cfg.Security,
	}
	for _, section := range sections {
		if err := env.Parse(section); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Entity type schemas are checked structurally here; the provisioning
// package performs the semantic checks when it builds its schema registry.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.IoTAgent.Host == "" {
		errs = append(errs, "iotagent.host is required")
	}
	if !validPort(c.IoTAgent.NorthPort) {
		errs = append(errs, "iotagent.north_port must be between 1 and 65535")
	}
	if !validPort(c.IoTAgent.SouthPort) {
		errs = append(errs, "iotagent.south_port must be between 1 and 65535")
	}
	if c.IoTAgent.APIKey == "" {
		errs = append(errs, "iotagent.api_key is required (set API_KEY environment variable)")
	}

	if c.Orion.Host == "" {
		errs = append(errs, "orion.host is required")
	}
	if !validPort(c.Orion.Port) {
		errs = append(errs, "orion.port must be between 1 and 65535")
	}

	if c.QuantumLeap.Host == "" {
		errs = append(errs, "quantumleap.host is required")
	}
	if !validPort(c.QuantumLeap.Port) {
		errs = append(errs, "quantumleap.port must be between 1 and 65535")
	}

	if c.Upstream.TimeoutSeconds <= 0 {
		errs = append(errs, "upstream.timeout must be positive")
	}
	if c.Upstream.PageSize <= 0 {
		errs = append(errs, "upstream.page_size must be positive")
	}

	switch c.Provisioning.Allocator {
	case AllocatorRegistry, AllocatorSequence:
	default:
		errs = append(errs, fmt.Sprintf("provisioning.allocator %q must be %q or %q",
			c.Provisioning.Allocator, AllocatorRegistry, AllocatorSequence))
	}
	if c.Provisioning.EntityType == "" {
		errs = append(errs, "provisioning.entity_type is required")
	}
	if c.Provisioning.Throttling < 0 {
		errs = append(errs, "provisioning.throttling must not be negative")
	}
	if len(c.EntityTypes) == 0 {
		errs = append(errs, "entity_types must declare at least one entity type")
	}

	if c.Provisioning.Allocator == AllocatorSequence && c.Database.Path == "" {
		errs = append(errs, "database.path is required by the sequence allocator")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Enabled && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters (set PROVISIONER_JWT_SECRET)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
