package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
iotagent:
  host: "iot-agent"
  north_port: 4041
  south_port: 7896
  api_key: "4jggokgpepnvsb2uv4s40d59ov"
orion:
  host: "orion"
  port: 1026
quantumleap:
  host: "quantumleap"
  port: 8668
tenant:
  service: "openiot"
  service_path: "/"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://iot-agent:4041", cfg.IoTAgent.NorthURL())
	assert.Equal(t, "http://iot-agent:7896", cfg.IoTAgent.SouthURL())
	assert.Equal(t, "http://orion:1026", cfg.Orion.URL())
	assert.Equal(t, "http://quantumleap:8668/v2/notify", cfg.QuantumLeap.NotifyURL())
	assert.Equal(t, "openiot", cfg.Tenant.Service)
	assert.Equal(t, "Mobile", cfg.Provisioning.EntityType)
	assert.Equal(t, AllocatorSequence, cfg.Provisioning.Allocator)
	require.Len(t, cfg.EntityTypes, 1)
	assert.Equal(t, "Mobile", cfg.EntityTypes[0].Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	// No API key anywhere.
	path := writeConfig(t, `
iotagent:
  host: "iot-agent"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iotagent.api_key")
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
iotagent:
  host: "from-file"
  api_key: "file-key"
orion:
  host: "orion"
`)

	t.Setenv("IOTAGENT_HOST", "from-env")
	t.Setenv("IOTAGENT_NORTH_PORT", "14041")
	t.Setenv("API_KEY", "env-key")
	t.Setenv("ORION_PORT", "11026")
	t.Setenv("SERVICE", "tenant-a")
	t.Setenv("SERVICEPATH", "/fleet")
	t.Setenv("QUANTUMLEAP_HOST", "ql")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.IoTAgent.Host)
	assert.Equal(t, 14041, cfg.IoTAgent.NorthPort)
	assert.Equal(t, 7896, cfg.IoTAgent.SouthPort, "unset variables keep file/default values")
	assert.Equal(t, "env-key", cfg.IoTAgent.APIKey)
	assert.Equal(t, "orion", cfg.Orion.Host)
	assert.Equal(t, 11026, cfg.Orion.Port)
	assert.Equal(t, "tenant-a", cfg.Tenant.Service)
	assert.Equal(t, "/fleet", cfg.Tenant.ServicePath)
	assert.Equal(t, "ql", cfg.QuantumLeap.Host)
}

func TestApplyEnvOverrides_Flags(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("PROVISIONER_HEALTH_STATUS", "true")
	t.Setenv("PROVISIONER_STRICT_VALIDATION", "true")
	t.Setenv("PROVISIONER_ALLOCATOR", "registry")
	t.Setenv("PROVISIONER_MQTT_PASSWORD", "testpass")
	t.Setenv("PROVISIONER_INFLUXDB_TOKEN", "secret-token")

	require.NoError(t, applyEnvOverrides(cfg))

	assert.True(t, cfg.Provisioning.HealthStatus)
	assert.True(t, cfg.Provisioning.StrictValidation)
	assert.False(t, cfg.Provisioning.Compensate)
	assert.Equal(t, AllocatorRegistry, cfg.Provisioning.Allocator)
	assert.Equal(t, "testpass", cfg.MQTT.Auth.Password)
	assert.Equal(t, "secret-token", cfg.InfluxDB.Token)
	assert.Len(t, cfg.EntityTypes, 1, "entity types are not touched by the environment")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.IoTAgent.APIKey = "key"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "invalid api port", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "missing iotagent host", mutate: func(c *Config) { c.IoTAgent.Host = "" }, wantErr: "iotagent.host"},
		{name: "invalid south port", mutate: func(c *Config) { c.IoTAgent.SouthPort = 0 }, wantErr: "iotagent.south_port"},
		{name: "missing api key", mutate: func(c *Config) { c.IoTAgent.APIKey = "" }, wantErr: "iotagent.api_key"},
		{name: "invalid orion port", mutate: func(c *Config) { c.Orion.Port = -1 }, wantErr: "orion.port"},
		{name: "missing quantumleap host", mutate: func(c *Config) { c.QuantumLeap.Host = "" }, wantErr: "quantumleap.host"},
		{name: "zero timeout", mutate: func(c *Config) { c.Upstream.TimeoutSeconds = 0 }, wantErr: "upstream.timeout"},
		{name: "unknown allocator", mutate: func(c *Config) { c.Provisioning.Allocator = "uuid" }, wantErr: "provisioning.allocator"},
		{name: "no entity types", mutate: func(c *Config) { c.EntityTypes = nil }, wantErr: "entity_types"},
		{name: "sequence without database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{
			name: "registry allocator without database",
			mutate: func(c *Config) {
				c.Provisioning.Allocator = AllocatorRegistry
				c.Database.Path = ""
			},
		},
		{
			name: "mqtt qos out of range",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name:    "influxdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name: "jwt secret too short",
			mutate: func(c *Config) {
				c.Security.JWT.Enabled = true
				c.Security.JWT.Secret = "short"
			},
			wantErr: "security.jwt.secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
		Upstream: UpstreamConfig{TimeoutSeconds: 7},
	}

	assert.Equal(t, 30*time.Second, cfg.GetReadTimeout())
	assert.Equal(t, 45*time.Second, cfg.GetWriteTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetIdleTimeout())
	assert.Equal(t, 7*time.Second, cfg.Upstream.Timeout())
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, 3000, cfg.API.Port)
	assert.Equal(t, 4041, cfg.IoTAgent.NorthPort)
	assert.Equal(t, 7896, cfg.IoTAgent.SouthPort)
	assert.Equal(t, 1026, cfg.Orion.Port)
	assert.Equal(t, 8668, cfg.QuantumLeap.Port)
	assert.Equal(t, "anonymous", cfg.Provisioning.AnonymousID)
	assert.Equal(t, 1, cfg.Provisioning.Throttling)
	assert.False(t, cfg.Provisioning.Compensate)
}
