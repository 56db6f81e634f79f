package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testConfigYAML = `
server:
  address: ":9090"
  name: "test-gate"
  version: "1.2.3"
  log_level: "debug"
  ssl:
    enabled: true
    mode: "acme"
    acme_domains: ["gate.example.com"]
    acme_email: "ops@example.com"
comm:
  rate_limit_ceiling: 10
  rate_limit_window: "30s"
  request_timeout: "5s"
collaborators:
  memory_service_url: "http://localhost:8765"
  monitoring_dsn: "postgres://localhost/monitoring"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestYamlConfigLoad(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfig(t, testConfigYAML), zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	addr, err := cfg.ListenAddr()
	require.NoError(t, err)
	assert.Equal(t, ":9090", addr)

	name, _ := cfg.ServerName()
	assert.Equal(t, "test-gate", name)
	version, _ := cfg.ServerVersion()
	assert.Equal(t, "1.2.3", version)
	logLevel, _ := cfg.LogLevel()
	assert.Equal(t, "debug", logLevel)

	ceiling, _ := cfg.RateLimitCeiling()
	assert.Equal(t, 10, ceiling)
	window, _ := cfg.RateLimitWindow()
	assert.Equal(t, 30*time.Second, window)
	timeout, _ := cfg.RequestTimeout()
	assert.Equal(t, 5*time.Second, timeout)

	memURL, _ := cfg.MemoryServiceURL()
	assert.Equal(t, "http://localhost:8765", memURL)
	dsn, _ := cfg.MonitoringDSN()
	assert.Equal(t, "postgres://localhost/monitoring", dsn)

	sslEnabled, _ := cfg.SSLEnabled()
	assert.True(t, sslEnabled)
	sslMode, _ := cfg.SSLMode()
	assert.Equal(t, "acme", sslMode)
	domains, _ := cfg.SSLAcmeDomains()
	assert.Equal(t, []string{"gate.example.com"}, domains)

	assert.NoError(t, cfg.Status(context.Background()))
}

func TestYamlConfigDefaults(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfig(t, "server:\n  address: \":8080\"\n"), zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	name, _ := cfg.ServerName()
	assert.Equal(t, "meshgate", name)
	logLevel, _ := cfg.LogLevel()
	assert.Equal(t, "info", logLevel)

	ceiling, _ := cfg.RateLimitCeiling()
	assert.Equal(t, DefaultRateLimitCeiling, ceiling)
	window, _ := cfg.RateLimitWindow()
	assert.Equal(t, DefaultRateLimitWindow, window)
	timeout, _ := cfg.RequestTimeout()
	assert.Equal(t, DefaultRequestTimeout, timeout)

	sslEnabled, _ := cfg.SSLEnabled()
	assert.False(t, sslEnabled)
	sslMode, _ := cfg.SSLMode()
	assert.Equal(t, "manual", sslMode)
}

func TestYamlConfigMissingFile(t *testing.T) {
	_, err := NewYamlConfig("/nonexistent/config.yaml", zap.NewNop())
	assert.Error(t, err)
}

func TestYamlConfigInvalidDuration(t *testing.T) {
	_, err := NewYamlConfig(writeConfig(t, "comm:\n  rate_limit_window: \"soon\"\n"), zap.NewNop())
	assert.Error(t, err)
}

func TestYamlConfigUpdate(t *testing.T) {
	path := writeConfig(t, testConfigYAML)
	cfg, err := NewYamlConfig(path, zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":7070\"\n"), 0644))
	require.NoError(t, cfg.Update())

	addr, err := cfg.ListenAddr()
	require.NoError(t, err)
	assert.Equal(t, ":7070", addr)
}

func TestYamlConfigWatcherReloads(t *testing.T) {
	path := writeConfig(t, testConfigYAML)
	cfg, err := NewYamlConfig(path, zap.NewNop())
	require.NoError(t, err)
	defer cfg.Close()

	require.NoError(t, cfg.StartWatcher())
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":6060\"\n"), 0644))

	assert.Eventually(t, func() bool {
		addr, err := cfg.ListenAddr()
		return err == nil && addr == ":6060"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestInternalConfigDefaults(t *testing.T) {
	cfg := NewInternalConfig()

	addr, err := cfg.ListenAddr()
	require.NoError(t, err)
	assert.Equal(t, ":8080", addr)

	cfg.SetListenAddr(":9999")
	addr, _ = cfg.ListenAddr()
	assert.Equal(t, ":9999", addr)

	ceiling, _ := cfg.RateLimitCeiling()
	assert.Equal(t, DefaultRateLimitCeiling, ceiling)
	assert.NoError(t, cfg.Status(context.Background()))
	assert.NoError(t, cfg.Close())
}
