package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/events"
	"github.com/elata-eeg/daqd/internal/graph"
	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
	"github.com/elata-eeg/daqd/internal/queue"
	"github.com/elata-eeg/daqd/internal/sensor"
)

// idleBackoff is how long a Runner sleeps after a pass that produced no
// packet, so a stage waiting on a currently-empty upstream queue doesn't
// spin the CPU.
const idleBackoff = 500 * time.Microsecond

// Runner drives one Stage's iteration loop in its own goroutine.
type Runner struct {
	stage Stage
	node  *graph.Node
	inbox *control.Inbox
	bus   *events.Bus

	stopped chan struct{}
}

// NewRunner builds a Runner for one graph node, bound to the stage
// implementation and its wired input/output queues.
func NewRunner(stage Stage, node *graph.Node, inboxDepth int, bus *events.Bus) *Runner {
	return &Runner{
		stage:   stage,
		node:    node,
		inbox:   control.NewInbox(inboxDepth),
		bus:     bus,
		stopped: make(chan struct{}),
	}
}

// Inbox returns the stage's control-command inbox, used by the control
// plane to route commands by stage id.
func (r *Runner) Inbox() *control.Inbox { return r.inbox }

// Stopped reports whether the run loop has exited.
func (r *Runner) Stopped() <-chan struct{} { return r.stopped }

// Run executes the cooperative iteration loop until ctx is cancelled or
// the stage faults. It recovers a panic from the stage's Step, publishing
// a PipelineFailed event and returning an error rather than crashing the
// process. A fault closes this stage's output queues, so the stages it
// feeds stop once they have consumed what is already queued; stages that
// do not read from it keep running until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)
	defer r.stage.Close()

	requiredPorts := r.requiredInputPorts()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		r.inbox.Drain(func(cmd control.Command) {
			if err := r.stage.HandleCommand(cmd); err != nil {
				r.bus.PublishPipelineFailed(r.node.ID, events.ErrorKindProtocol, err.Error(), nil)
			}
		})

		if r.stage.Paused() {
			time.Sleep(idleBackoff)
			continue
		}

		ins, closedUpstream, err := r.gatherInputs(requiredPorts)
		if err != nil {
			r.fault(err, nil)
			return err
		}
		if ins == nil {
			if closedUpstream {
				return nil
			}
			time.Sleep(idleBackoff)
			continue
		}

		outs, stepErr := r.stepSafely(ctx, ins)
		if stepErr != nil {
			r.fault(stepErr, frameIDOf(ins))
			return stepErr
		}

		for port, p := range outs {
			if p == nil {
				continue
			}
			q, ok := r.node.Outputs[port]
			if !ok {
				p.Release()
				continue
			}
			if err := q.Send(p); err != nil {
				frameID := p.Header.FrameID
				r.fault(fmt.Errorf("send on port %s: %w", port, err), &frameID)
				return err
			}
		}
	}
}

// requiredInputPorts resolves which of the node's wired input ports must
// be present before Step runs.
func (r *Runner) requiredInputPorts() map[string]bool {
	req := make(map[string]bool, len(r.node.Inputs))
	for port := range r.node.Inputs {
		req[port] = true
	}
	if opt, ok := r.stage.(OptionalInputs); ok {
		for port := range opt.OptionalInputPorts() {
			delete(req, port)
		}
	}
	return req
}

// gatherInputs tries to receive one packet from every required input
// port without blocking. It returns (nil, false, nil) if any required
// port is currently empty (try again next iteration), or
// (nil, true, nil) if a required port's queue has closed and drained
// (upstream shutdown, propagate shutdown downstream).
func (r *Runner) gatherInputs(required map[string]bool) (map[string]*packet.Packet, bool, error) {
	if len(r.node.Inputs) == 0 {
		return map[string]*packet.Packet{}, false, nil
	}

	ins := make(map[string]*packet.Packet, len(r.node.Inputs))
	for port, q := range r.node.Inputs {
		p, err := q.Recv()
		if err == queue.ErrClosed {
			releaseAll(ins)
			if required[port] {
				return nil, true, nil
			}
			continue
		}
		if err != nil {
			releaseAll(ins)
			return nil, false, err
		}
		if p == nil {
			releaseAll(ins)
			if required[port] {
				return nil, false, nil
			}
			continue
		}
		ins[port] = p
	}
	return ins, false, nil
}

func releaseAll(ins map[string]*packet.Packet) {
	for _, p := range ins {
		p.Release()
	}
}

// frameIDOf picks the frame id to attach to a PipelineFailed event for a
// Step error, preferring the conventional "in" port and falling back to
// whichever input packet is present for a multi-input stage.
func frameIDOf(ins map[string]*packet.Packet) *uint64 {
	if p, ok := ins["in"]; ok && p != nil {
		id := p.Header.FrameID
		return &id
	}
	for _, p := range ins {
		if p != nil {
			id := p.Header.FrameID
			return &id
		}
	}
	return nil
}

// stepSafely calls the stage's Step, converting a panic into an error so
// one misbehaving stage cannot take down the daemon.
func (r *Runner) stepSafely(ctx context.Context, ins map[string]*packet.Packet) (outs map[string]*packet.Packet, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("stage %s panicked: %v", r.node.ID, rec)
		}
	}()
	return r.stage.Step(ctx, ins)
}

// classifyError maps a Step/queue/gather error onto the §7 PipelineFailed
// taxonomy. A *sensor.Error identifies a hardware fault; the pool and
// queue sentinels identify the two resource-pressure causes; anything
// else (including a recovered panic's wrapped message) falls back to
// ErrorKindPanic.
func classifyError(err error) events.ErrorKind {
	var sensorErr *sensor.Error
	switch {
	case errors.As(err, &sensorErr):
		return events.ErrorKindHardware
	case errors.Is(err, pool.ErrPoolExhausted):
		return events.ErrorKindResource
	case errors.Is(err, queue.ErrQueueFull):
		return events.ErrorKindBackpressure
	default:
		return events.ErrorKindPanic
	}
}

func (r *Runner) fault(err error, frameID *uint64) {
	r.bus.PublishPipelineFailed(r.node.ID, classifyError(err), err.Error(), frameID)
	for _, q := range r.node.Outputs {
		q.Close()
	}
}

// Group runs every node's Runner concurrently and coordinates shutdown.
type Group struct {
	runners map[string]*Runner
	order   []*graph.Node
}

// NewGroup builds one Runner per node in g, in the graph's topological
// order.
func NewGroup(g *graph.Graph, makeStage StageFactory, inboxDepth int, bus *events.Bus) (*Group, error) {
	runners := make(map[string]*Runner, len(g.Order))
	for _, n := range g.Order {
		stage, err := makeStage(n, g.Pools)
		if err != nil {
			return nil, fmt.Errorf("executor: build stage %s: %w", n.ID, err)
		}
		runners[n.ID] = NewRunner(stage, n, inboxDepth, bus)
	}
	return &Group{runners: runners, order: g.Order}, nil
}

// Inbox returns the control inbox for a named stage, or nil if unknown.
func (grp *Group) Inbox(stageID string) *control.Inbox {
	r, ok := grp.runners[stageID]
	if !ok {
		return nil
	}
	return r.Inbox()
}

// Start launches every stage's Runner in its own goroutine. Stages start
// in topological order (producers before consumers) so an early consumer
// iteration never observes a producer's queue as permanently empty.
func (grp *Group) Start(ctx context.Context) <-chan error {
	errs := make(chan error, len(grp.order))
	var wg sync.WaitGroup
	for _, n := range grp.order {
		r := grp.runners[n.ID]
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				errs <- err
			}
		}(r)
	}
	go func() {
		wg.Wait()
		close(errs)
	}()
	return errs
}

// Wait blocks until every stage's Runner has returned, checking them in
// reverse topological order. All Runners share one context, so once it is
// cancelled every stage returns at its next iteration without processing
// the packets still queued; the order only decides which Runner is waited
// on first.
func (grp *Group) Wait() {
	for i := len(grp.order) - 1; i >= 0; i-- {
		r := grp.runners[grp.order[i].ID]
		<-r.Stopped()
	}
}
