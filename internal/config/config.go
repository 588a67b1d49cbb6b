// Package config loads the daemon's own operating parameters: where the
// graph document lives, which addresses to listen on, and how to reach
// the optional Postgres run ledger and Redis state cache. This is
// separate from internal/graph.Config, which describes the pipeline
// itself; this package describes the process running it.
//
// Grounded on internal/config/config.go's YAML-plus-env-override
// pattern and internal/config/manager.go's sync.Once singleton, adapted
// from a multi-tenant override merge to a single-process daemon config.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds every daemon-level setting. yaml tags mirror the on-disk
// document; env overrides are applied on top after decode.
type Config struct {
	GraphPath string `yaml:"graph_path"`

	HTTP HTTPConfig `yaml:"http"`

	Broker BrokerConfig `yaml:"broker"`

	Runlog RunlogConfig `yaml:"runlog"`

	Statecache StatecacheConfig `yaml:"statecache"`

	ShutdownGraceSec int `yaml:"shutdown_grace_sec"`
}

// HTTPConfig is the control-plane/state/events/metrics listen address.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// BrokerConfig configures the WebSocket data-plane listener.
type BrokerConfig struct {
	Addr       string `yaml:"addr"`
	QueueDepth int    `yaml:"queue_depth"`
}

// RunlogConfig configures the optional Postgres run ledger.
type RunlogConfig struct {
	DSN string `yaml:"dsn"`
}

// StatecacheConfig configures the optional Redis state mirror.
type StatecacheConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads and decodes the daemon config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.GraphPath = getEnv("DAQD_GRAPH_PATH", c.GraphPath)
	c.HTTP.Addr = getEnv("DAQD_HTTP_ADDR", c.HTTP.Addr)
	c.Broker.Addr = getEnv("DAQD_BROKER_ADDR", c.Broker.Addr)
	if v := getEnvInt("DAQD_BROKER_QUEUE_DEPTH", 0); v > 0 {
		c.Broker.QueueDepth = v
	}
	c.Runlog.DSN = getEnv("DAQD_RUNLOG_DSN", c.Runlog.DSN)
	c.Statecache.Addr = getEnv("DAQD_REDIS_ADDR", c.Statecache.Addr)
	c.Statecache.Password = getEnv("DAQD_REDIS_PASSWORD", c.Statecache.Password)
	if v := getEnvInt("DAQD_REDIS_DB", -1); v >= 0 {
		c.Statecache.DB = v
	}
	if v := getEnvInt("DAQD_SHUTDOWN_GRACE_SEC", 0); v > 0 {
		c.ShutdownGraceSec = v
	}
}

func (c *Config) applyDefaults() {
	if c.GraphPath == "" {
		c.GraphPath = "graph.yaml"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Broker.Addr == "" {
		c.Broker.Addr = ":9001"
	}
	if c.Broker.QueueDepth == 0 {
		c.Broker.QueueDepth = 64
	}
	if c.ShutdownGraceSec == 0 {
		c.ShutdownGraceSec = 5
	}
}

var (
	instance *Config
	once     sync.Once
)

// Get resolves and caches the effective config for the life of the
// process. CONFIG_PATH selects the file; default "config.yaml". A
// .env file in the working directory, if present, is loaded first so
// its values are visible to applyEnvOverrides.
//
// Absence of the config file is fatal per the exit-code table
// (configuration error, code 1); callers should os.Exit(1) on a
// non-nil error rather than falling back to zero-value defaults.
func Get() (*Config, error) {
	var err error
	once.Do(func() {
		if loadErr := godotenv.Load(); loadErr != nil {
			slog.Debug("config: no .env file found", "error", loadErr)
		}
		path := getEnv("CONFIG_PATH", "config.yaml")
		instance, err = Load(path)
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
