// Package graph implements the declarative pipeline configuration and DAG
// build: parsing a YAML document into stages, memory pools, and typed
// connections, then topologically ordering the result. Grounded on
// internal/config/config.go's YAML-struct-tag + env-override loading
// style, generalized from a SaaS service config to a pipeline graph
// config.
package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the declarative graph document. JSON tags mirror the YAML
// ones so the same struct decodes a Reconfigure command's inline
// "config" object (internal/httpapi) without a second set of types.
type Config struct {
	Version     int                `yaml:"version" json:"version"`
	RunID       string             `yaml:"run_id" json:"run_id"`
	Seed        *int64             `yaml:"seed,omitempty" json:"seed,omitempty"`
	MemoryPools []PoolConfig       `yaml:"memory_pools" json:"memory_pools"`
	Stages      []StageConfig      `yaml:"stages" json:"stages"`
	Connections []ConnectionConfig `yaml:"connections" json:"connections"`
}

// PoolConfig declares one named memory pool.
type PoolConfig struct {
	ID            string `yaml:"id" json:"id"`
	ElementType   string `yaml:"element_type" json:"element_type"`
	BatchCapacity int    `yaml:"batch_capacity" json:"batch_capacity"`
	PoolDepth     int    `yaml:"pool_depth" json:"pool_depth"`
}

// PortRef names a stage's port as "stage.port", used in connections and
// stage input lists.
type PortRef string

// StageConfig declares one pipeline stage.
type StageConfig struct {
	ID     string                 `yaml:"id" json:"id"`
	Type   string                 `yaml:"type" json:"type"`
	Params map[string]interface{} `yaml:"params" json:"params"`
	Inputs []PortRef              `yaml:"inputs" json:"inputs"`
}

// ConnectionConfig declares one typed queue edge between two stage ports.
type ConnectionConfig struct {
	From     PortRef `yaml:"from" json:"from"`
	To       PortRef `yaml:"to" json:"to"`
	Capacity int     `yaml:"capacity" json:"capacity"`
	Policy   string  `yaml:"policy" json:"policy"`
}

// Load reads and parses a graph configuration document from path.
// Absence of the file is a configuration error, surfaced here as a
// plain error for the caller to classify (and map to the daemon's
// configuration-error exit code).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("graph: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("graph: invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate performs structural configuration-error checks. Unknown stage
// type is checked by the executor's stage factory (it alone knows the
// registered set); here we check shape-level invariants that don't
// require a registry.
func (c *Config) Validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("version must be positive")
	}
	seen := make(map[string]bool, len(c.Stages))
	for _, s := range c.Stages {
		if s.ID == "" {
			return fmt.Errorf("stage with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate stage id %q", s.ID)
		}
		seen[s.ID] = true
	}
	pools := make(map[string]bool, len(c.MemoryPools))
	for _, p := range c.MemoryPools {
		if p.ID == "" {
			return fmt.Errorf("memory pool with empty id")
		}
		if pools[p.ID] {
			return fmt.Errorf("duplicate pool id %q", p.ID)
		}
		pools[p.ID] = true
	}
	for _, c := range c.Connections {
		if c.Capacity <= 0 {
			return fmt.Errorf("connection %s -> %s: capacity must be positive", c.From, c.To)
		}
	}
	return nil
}
