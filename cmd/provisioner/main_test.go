package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/fiware-provisioner/internal/auth"
)

const testSecret = "test-secret-for-development-only-0123456789"

// writeConfig writes a minimal valid configuration plus extra YAML and
// points PROVISIONER_CONFIG at it.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
api:
  host: "127.0.0.1"
  port: 38417
  timeouts:
    read: 5
    write: 5
    idle: 5

iotagent:
  host: "127.0.0.1"
  north_port: 4041
  south_port: 7896
  api_key: "4jggokgpepnvsb2uv4s40d59ov"

orion:
  host: "127.0.0.1"
  port: 1026

quantumleap:
  host: "127.0.0.1"
  port: 8668

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

security:
  jwt:
    enabled: false
    secret: "` + testSecret + `"
` + extra

	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("PROVISIONER_CONFIG", configPath)
	return tmpDir
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("PROVISIONER_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when the database cannot
// be opened. The registry allocator lets the config validate without a path.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, `
provisioning:
  allocator: registry

database:
  path: ""
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "opening database") {
		t.Errorf("error = %v, want an opening database error", err)
	}
}

// TestRun_StartupAndShutdown runs the whole service with MQTT and InfluxDB
// disabled until the context expires.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, `
database:
  path: "`+filepath.Join(tmpDir, "provisioner.db")+`"
  wal_mode: true
  busy_timeout: 5
`)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "provisioner.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("PROVISIONER_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("PROVISIONER_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestRunToken(t *testing.T) {
	writeConfig(t, "")

	var out bytes.Buffer
	if err := runToken([]string{"gateway-01", "operator", "2h"}, &out); err != nil {
		t.Fatalf("runToken() error: %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Subject != "gateway-01" || claims.Role != auth.RoleOperator {
		t.Errorf("claims = %+v", claims)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl > 2*time.Hour || ttl < time.Hour {
		t.Errorf("token expires in %v, want about 2h", ttl)
	}
}

func TestRunToken_Errors(t *testing.T) {
	writeConfig(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"missing role", []string{"gateway"}},
		{"too many args", []string{"a", "operator", "1h", "extra"}},
		{"bad ttl", []string{"gateway", "operator", "soon"}},
		{"unknown role", []string{"gateway", "superuser"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runToken(tt.args, &out); err == nil {
				t.Errorf("runToken(%v) should fail", tt.args)
			}
			if out.Len() != 0 {
				t.Errorf("unexpected output %q", out.String())
			}
		})
	}
}
