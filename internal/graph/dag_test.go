package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearConfig() *Config {
	return &Config{
		Version: 1,
		MemoryPools: []PoolConfig{
			{ID: "raw", ElementType: "raw_sample", BatchCapacity: 64, PoolDepth: 4},
			{ID: "volts", ElementType: "voltage", BatchCapacity: 64, PoolDepth: 4},
		},
		Stages: []StageConfig{
			{ID: "source", Type: "sensor"},
			{ID: "tov", Type: "to_voltage"},
			{ID: "sink", Type: "csv_sink"},
		},
		Connections: []ConnectionConfig{
			{From: "source.out", To: "tov.in", Capacity: 8, Policy: "block"},
			{From: "tov.out", To: "sink.in", Capacity: 8, Policy: "block"},
		},
	}
}

func TestBuildOrdersStagesTopologically(t *testing.T) {
	g, err := Build(linearConfig())
	require.NoError(t, err)
	require.Len(t, g.Order, 3)
	assert.Equal(t, "source", g.Order[0].ID)
	assert.Equal(t, "tov", g.Order[1].ID)
	assert.Equal(t, "sink", g.Order[2].ID)
}

func TestBuildWiresSharedQueueBetweenPorts(t *testing.T) {
	g, err := Build(linearConfig())
	require.NoError(t, err)
	source, _ := g.Node("source")
	tov, _ := g.Node("tov")
	assert.Same(t, source.Outputs["out"], tov.Inputs["in"])
}

func TestBuildRejectsCycle(t *testing.T) {
	cfg := &Config{
		Version: 1,
		Stages: []StageConfig{
			{ID: "a"},
			{ID: "b"},
		},
		Connections: []ConnectionConfig{
			{From: "a.out", To: "b.in", Capacity: 4, Policy: "block"},
			{From: "b.out", To: "a.in", Capacity: 4, Policy: "block"},
		},
	}
	_, err := Build(cfg)
	assert.Error(t, err)
}

func TestBuildRejectsUnknownStageReference(t *testing.T) {
	cfg := &Config{
		Version: 1,
		Stages:  []StageConfig{{ID: "a"}},
		Connections: []ConnectionConfig{
			{From: "a.out", To: "ghost.in", Capacity: 4, Policy: "block"},
		},
	}
	_, err := Build(cfg)
	assert.Error(t, err)
}

func TestBuildWiresFanInToSharedMPSCQueue(t *testing.T) {
	cfg := &Config{
		Version: 1,
		Stages:  []StageConfig{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Connections: []ConnectionConfig{
			{From: "a.out", To: "c.in", Capacity: 4, Policy: "block"},
			{From: "b.out", To: "c.in", Capacity: 4, Policy: "block"},
		},
	}
	g, err := Build(cfg)
	require.NoError(t, err)
	a, _ := g.Node("a")
	b, _ := g.Node("b")
	c, _ := g.Node("c")
	assert.Same(t, a.Outputs["out"], c.Inputs["in"])
	assert.Same(t, b.Outputs["out"], c.Inputs["in"])
}

func TestBuildRejectsDuplicateOutputPortBinding(t *testing.T) {
	cfg := &Config{
		Version: 1,
		Stages:  []StageConfig{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Connections: []ConnectionConfig{
			{From: "a.out", To: "b.in", Capacity: 4, Policy: "block"},
			{From: "a.out", To: "c.in", Capacity: 4, Policy: "block"},
		},
	}
	_, err := Build(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsDuplicateStageID(t *testing.T) {
	cfg := &Config{
		Version: 1,
		Stages:  []StageConfig{{ID: "a"}, {ID: "a"}},
	}
	assert.Error(t, cfg.Validate())
}
