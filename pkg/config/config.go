// Package config handles graphsession configuration via YAML files and
// environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--config, --metrics-addr, etc.)
//  2. Environment variables (GRAPHSESSION_*)
//  3. Config file (graphsession.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.Load(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables (all use GRAPHSESSION_ prefix):
//
// Cache:
//   - GRAPHSESSION_CACHE_VERTEX_CAPACITY=100000
//   - GRAPHSESSION_CACHE_EDGE_CAPACITY=100000
//
// Store:
//   - GRAPHSESSION_STORE_DATA_DIR="./data"
//   - GRAPHSESSION_STORE_IN_MEMORY=false
//   - GRAPHSESSION_STORE_SYNC_WRITES=false
//   - GRAPHSESSION_STORE_LOW_MEMORY=false
//
// Logging:
//   - GRAPHSESSION_LOG_LEVEL="info"
//   - GRAPHSESSION_LOG_FORMAT="console"
//
// Metrics:
//   - GRAPHSESSION_METRICS_ENABLED=false
//   - GRAPHSESSION_METRICS_ADDR=":9090"
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by ApplyEnv.
const EnvPrefix = "GRAPHSESSION"

// Config validation errors
var (
	ErrInvalidVertexCapacity = errors.New("cache.vertex_capacity must be positive")
	ErrInvalidEdgeCapacity   = errors.New("cache.edge_capacity must be positive")
	ErrInvalidDataDir        = errors.New("store.data_dir cannot be empty unless store.in_memory is set")
	ErrInvalidLogFormat      = errors.New("logging.format must be 'json' or 'console'")
	ErrInvalidLogLevel       = errors.New("logging.level must be trace, debug, info, warn, or error")
	ErrInvalidMetricsAddr    = errors.New("metrics.addr cannot be empty when metrics are enabled")
)

// Config holds all graphsession configuration.
//
// Configuration is organized into logical sections:
//   - Cache: bounds of the global cache layers shared by sessions
//   - Store: the embedded Badger store sessions commit to
//   - Logging: zerolog level and output format
//   - Metrics: Prometheus endpoint
type Config struct {
	Cache   CacheConfig   `yaml:"cache" envconfig:"CACHE"`
	Store   StoreConfig   `yaml:"store" envconfig:"STORE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOG"`
	Metrics MetricsConfig `yaml:"metrics" envconfig:"METRICS"`
}

// CacheConfig bounds the global cache layers.
type CacheConfig struct {
	// VertexCapacity is the maximum number of vertex states kept globally.
	VertexCapacity int `yaml:"vertex_capacity" envconfig:"VERTEX_CAPACITY"`
	// EdgeCapacity is the maximum number of edge states kept globally.
	EdgeCapacity int `yaml:"edge_capacity" envconfig:"EDGE_CAPACITY"`
}

// StoreConfig configures the embedded store.
type StoreConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	InMemory   bool   `yaml:"in_memory" envconfig:"IN_MEMORY"`
	SyncWrites bool   `yaml:"sync_writes" envconfig:"SYNC_WRITES"`
	LowMemory  bool   `yaml:"low_memory" envconfig:"LOW_MEMORY"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (trace, debug, info, warn, error)
	Level string `yaml:"level" envconfig:"LEVEL"`
	// Format (json, console)
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Addr    string `yaml:"addr" envconfig:"ADDR"`
}

// LoadDefaults returns the built-in configuration.
func LoadDefaults() *Config {
	return &Config{
		Cache: CacheConfig{
			VertexCapacity: 100_000,
			EdgeCapacity:   100_000,
		},
		Store: StoreConfig{
			DataDir: "./data",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// LoadFromFile returns the defaults overlaid with the YAML file at path. A
// missing file is not an error; the defaults are returned.
func LoadFromFile(path string) (*Config, error) {
	cfg := LoadDefaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays GRAPHSESSION_* environment variables onto cfg. Unset
// variables leave the current value alone.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// Load reads the file at path, applies the environment and validates the
// result.
func Load(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Cache.VertexCapacity <= 0 {
		return ErrInvalidVertexCapacity
	}
	if c.Cache.EdgeCapacity <= 0 {
		return ErrInvalidEdgeCapacity
	}
	if !c.Store.InMemory && c.Store.DataDir == "" {
		return ErrInvalidDataDir
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return ErrInvalidLogFormat
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return ErrInvalidMetricsAddr
	}
	return nil
}

// String returns a one-line summary suitable for logging.
func (c *Config) String() string {
	store := c.Store.DataDir
	if c.Store.InMemory {
		store = "memory"
	}
	metrics := "off"
	if c.Metrics.Enabled {
		metrics = c.Metrics.Addr
	}
	return fmt.Sprintf(
		"Config{Cache: %d/%d, Store: %s, Log: %s/%s, Metrics: %s}",
		c.Cache.VertexCapacity, c.Cache.EdgeCapacity,
		store,
		c.Logging.Level, c.Logging.Format,
		metrics,
	)
}

// FindConfigFile returns the first existing config file among the usual
// locations, or "" if there is none.
func FindConfigFile() string {
	candidates := []string{"graphsession.yaml", "config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".graphsession", "config.yaml"),
			filepath.Join(home, ".config", "graphsession", "config.yaml"),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
