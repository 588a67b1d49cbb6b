package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elata-eeg/daqd/internal/events"
	"github.com/elata-eeg/daqd/internal/graph"
	"github.com/elata-eeg/daqd/internal/pool"
)

func trivialFactory(n *graph.Node, pools *pool.Manager) (Stage, error) {
	return &passthroughStage{id: n.ID}, nil
}

func oneStageConfig() *graph.Config {
	return &graph.Config{
		Version: 1,
		Stages:  []graph.StageConfig{{ID: "solo", Type: "noop"}},
	}
}

func TestSupervisorStartRunsFirstGeneration(t *testing.T) {
	bus := events.NewBus(8)
	s := NewSupervisor(trivialFactory, 4, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.Start(ctx, oneStageConfig())
	require.NoError(t, err)
	require.NotNil(t, s.CurrentGraph())
	assert.NotNil(t, s.Inbox("solo"))
}

func TestSupervisorReconfigureSwapsGeneration(t *testing.T) {
	bus := events.NewBus(8)
	s := NewSupervisor(trivialFactory, 4, bus)

	ctx := context.Background()
	_, err := s.Start(ctx, oneStageConfig())
	require.NoError(t, err)
	first := s.CurrentGraph()

	newCfg := &graph.Config{
		Version: 1,
		Stages:  []graph.StageConfig{{ID: "solo2", Type: "noop"}},
	}
	_, err = s.Reconfigure(ctx, newCfg)
	require.NoError(t, err)

	second := s.CurrentGraph()
	assert.NotSame(t, first, second)
	assert.Nil(t, s.Inbox("solo"))
	assert.NotNil(t, s.Inbox("solo2"))

	s.Stop()
}

func TestSupervisorReconfigureRejectsInvalidConfig(t *testing.T) {
	bus := events.NewBus(8)
	s := NewSupervisor(trivialFactory, 4, bus)
	ctx := context.Background()
	_, err := s.Start(ctx, oneStageConfig())
	require.NoError(t, err)

	_, err = s.Reconfigure(ctx, &graph.Config{Version: 0})
	assert.Error(t, err)

	s.Stop()
}
