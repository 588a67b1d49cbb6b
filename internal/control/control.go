// Package control implements the control plane: typed commands routed by
// stage id, a small per-stage inbox, and the parameter hot-reload
// protocol. Grounded on internal/fabric/hub.go's MessageHandler
// registration/dispatch shape and internal/circuitbreaker's explicit
// State-enum idiom for the stage lifecycle.
package control

import (
	"fmt"
)

// Kind identifies a control command's variant.
type Kind int

const (
	Pause Kind = iota
	Resume
	UpdateParam
	Shutdown
	Reconfigure
)

func (k Kind) String() string {
	switch k {
	case Pause:
		return "Pause"
	case Resume:
		return "Resume"
	case UpdateParam:
		return "UpdateParam"
	case Shutdown:
		return "Shutdown"
	case Reconfigure:
		return "Reconfigure"
	default:
		return "Unknown"
	}
}

// Command is a single control-plane message, routed to a stage by
// StageID (or to the whole graph, for Reconfigure).
type Command struct {
	StageID string
	Kind    Kind

	// UpdateParam fields.
	Key   string
	Value any

	// Reconfigure field: a graph.Config-shaped value, kept as `any` so this
	// package does not depend on internal/graph. Nothing in the daemon reads
	// it: internal/httpapi hands a Reconfigure request straight to
	// executor.Supervisor.Reconfigure instead of routing it through an inbox.
	GraphConfig any
}

// ErrBusy is returned by a stage's UpdateParam handler when a recording
// sink is active and the parameter is not marked safe-to-hot-change.
type ErrBusy struct {
	Key string
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("control: parameter %q is locked while recording", e.Key)
}

// Inbox is a stage's small control-command channel, drained non-blockingly
// at the top of every iteration.
type Inbox struct {
	ch chan Command
}

// NewInbox creates a stage control inbox with the given buffer depth.
// Depth is small and fixed: control traffic is low-rate by design and
// allowed to allocate, unlike the hot data path.
func NewInbox(depth int) *Inbox {
	if depth <= 0 {
		depth = 8
	}
	return &Inbox{ch: make(chan Command, depth)}
}

// Send enqueues a command for the stage to pick up on its next iteration.
// Returns false if the inbox is full (a slow or stuck stage); callers
// should treat this as a transient condition and retry at the control
// plane's low rate.
func (b *Inbox) Send(cmd Command) bool {
	select {
	case b.ch <- cmd:
		return true
	default:
		return false
	}
}

// Drain pulls every currently queued command and invokes handle for each,
// in order, without blocking. Called once per stage iteration.
func (b *Inbox) Drain(handle func(Command)) {
	for {
		select {
		case cmd := <-b.ch:
			handle(cmd)
		default:
			return
		}
	}
}
