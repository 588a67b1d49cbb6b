package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/events"
	"github.com/elata-eeg/daqd/internal/graph"
	"github.com/elata-eeg/daqd/internal/pool"
)

// StageFactory builds a runnable Stage for a graph node, resolving its
// configured type and params against the stage registry. pools is the
// specific generation's pool manager (graph.Graph.Pools), since each
// Reconfigure builds a fresh one — a stage factory must never resolve a
// pool name against a stale generation's manager.
type StageFactory func(n *graph.Node, pools *pool.Manager) (Stage, error)

// Supervisor owns the currently-running Group and applies Reconfigure
// commands by building a replacement graph, then swapping it in once every
// stage of the old one has stopped — the graph never runs two overlapping generations
// against the same hardware pool at once.
type Supervisor struct {
	bus        *events.Bus
	factory    StageFactory
	inboxDepth int

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *Group
	current *graph.Graph
}

// NewSupervisor builds a Supervisor that will construct stages through
// factory and publish fatal events to bus.
func NewSupervisor(factory StageFactory, inboxDepth int, bus *events.Bus) *Supervisor {
	return &Supervisor{factory: factory, inboxDepth: inboxDepth, bus: bus}
}

// Inbox exposes the running generation's per-stage control inbox, or nil
// if no generation is running or the stage id is unknown.
func (s *Supervisor) Inbox(stageID string) *control.Inbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group == nil {
		return nil
	}
	return s.group.Inbox(stageID)
}

// CurrentGraph returns the graph currently running, or nil before the
// first Start.
func (s *Supervisor) CurrentGraph() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Start builds and launches the first generation from cfg. parentCtx
// controls the overall supervisor lifetime; cancelling it stops every
// stage.
func (s *Supervisor) Start(parentCtx context.Context, cfg *graph.Config) (<-chan error, error) {
	g, err := graph.Build(cfg)
	if err != nil {
		return nil, err
	}
	grp, err := NewGroup(g, s.factory, s.inboxDepth, s.bus)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.mu.Lock()
	s.cancel = cancel
	s.group = grp
	s.current = g
	s.mu.Unlock()

	errs := grp.Start(ctx)
	return errs, nil
}

// Reconfigure validates cfg and builds a new graph from it, then stops
// the current generation and starts the new one. Stopping cancels the old
// generation's context and waits for its Runners to return; packets still
// queued in the old graph are not processed. Returns once the new
// generation is running.
func (s *Supervisor) Reconfigure(parentCtx context.Context, cfg *graph.Config) (<-chan error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("executor: reconfigure rejected: %w", err)
	}
	newGraphCandidate, err := graph.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("executor: reconfigure rejected: %w", err)
	}
	newGroup, err := NewGroup(newGraphCandidate, s.factory, s.inboxDepth, s.bus)
	if err != nil {
		return nil, fmt.Errorf("executor: reconfigure rejected: %w", err)
	}

	s.mu.Lock()
	oldCancel := s.cancel
	oldGroup := s.group
	s.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if oldGroup != nil {
		oldGroup.Wait()
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.mu.Lock()
	s.cancel = cancel
	s.group = newGroup
	s.current = newGraphCandidate
	s.mu.Unlock()

	errs := newGroup.Start(ctx)
	return errs, nil
}

// Stop cancels the running generation and waits for every stage to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	grp := s.group
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if grp != nil {
		grp.Wait()
	}
}
