package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphsession.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg := LoadDefaults()
	assert.Equal(t, 100_000, cfg.Cache.VertexCapacity)
	assert.Equal(t, 100_000, cfg.Cache.EdgeCapacity)
	assert.Equal(t, "./data", cfg.Store.DataDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, `
cache:
  vertex_capacity: 10
store:
  in_memory: true
logging:
  format: json
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Cache.VertexCapacity)
	assert.Equal(t, 100_000, cfg.Cache.EdgeCapacity, "unset keys keep their defaults")
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_Missing(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, LoadDefaults(), cfg)
}

func TestLoadFromFile_Malformed(t *testing.T) {
	_, err := LoadFromFile(writeFile(t, "cache: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "cache:\n  edge_capacity: 50\nlogging:\n  level: warn\n")
	t.Setenv("GRAPHSESSION_CACHE_EDGE_CAPACITY", "75")
	t.Setenv("GRAPHSESSION_LOG_LEVEL", "debug")
	t.Setenv("GRAPHSESSION_METRICS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Cache.EdgeCapacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("GRAPHSESSION_CACHE_VERTEX_CAPACITY", "lots")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"vertex capacity", func(c *Config) { c.Cache.VertexCapacity = 0 }, ErrInvalidVertexCapacity},
		{"edge capacity", func(c *Config) { c.Cache.EdgeCapacity = -1 }, ErrInvalidEdgeCapacity},
		{"data dir", func(c *Config) { c.Store.DataDir = "" }, ErrInvalidDataDir},
		{"log format", func(c *Config) { c.Logging.Format = "text" }, ErrInvalidLogFormat},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, ErrInvalidLogLevel},
		{"metrics addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, ErrInvalidMetricsAddr},
		{"in memory needs no dir", func(c *Config) { c.Store.DataDir = ""; c.Store.InMemory = true }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestString(t *testing.T) {
	cfg := LoadDefaults()
	cfg.Store.InMemory = true
	assert.Equal(t, "Config{Cache: 100000/100000, Store: memory, Log: info/console, Metrics: off}", cfg.String())
}
