package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsForZeroFields(t *testing.T) {
	path := writeConfig(t, "graph_path: graph.yaml\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, ":9001", cfg.Broker.Addr)
	assert.Equal(t, 64, cfg.Broker.QueueDepth)
	assert.Equal(t, 5, cfg.ShutdownGraceSec)
}

func TestLoadPreservesExplicitValues(t *testing.T) {
	path := writeConfig(t, `
graph_path: /etc/daqd/graph.yaml
http:
  addr: ":9090"
broker:
  addr: ":9100"
  queue_depth: 128
shutdown_grace_sec: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/daqd/graph.yaml", cfg.GraphPath)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, ":9100", cfg.Broker.Addr)
	assert.Equal(t, 128, cfg.Broker.QueueDepth)
	assert.Equal(t, 10, cfg.ShutdownGraceSec)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrideWinsOverFileValue(t *testing.T) {
	path := writeConfig(t, "broker:\n  addr: \":9001\"\n")

	t.Setenv("DAQD_BROKER_ADDR", ":9500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9500", cfg.Broker.Addr)
}
