// Package executor drives the built graph: one cooperative goroutine per
// stage, each running a fixed iteration contract (drain control commands,
// honor pause, gather one packet per input port, run the stage's pure
// transform, dispatch the results downstream), with panic containment at
// the stage boundary and orderly startup/shutdown in topological order.
// Grounded on internal/ghostpool/pool_manager.go's background-goroutine-
// per-concern shape; panic recovery follows the teacher's general
// defer/recover idiom at service boundaries.
package executor

import (
	"context"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/packet"
)

// Stage is the pure-transform contract every pipeline stage implements.
// A Stage never touches its queues directly — the Runner gathers input
// packets and dispatches output packets on its behalf — so a Stage's
// Step method is easy to test in isolation.
type Stage interface {
	// ID returns the stage's configured identifier.
	ID() string

	// Step consumes exactly the packets present in ins (keyed by input
	// port name) and returns the packets to send on each output port.
	// A port absent from the returned map emits nothing this iteration
	// (used by stages whose output cadence differs from their input
	// cadence, like FFT's windowed accumulation). Step must not retain
	// or release packets the Runner didn't hand it, and must not mutate
	// a packet it doesn't own exclusively.
	Step(ctx context.Context, ins map[string]*packet.Packet) (outs map[string]*packet.Packet, err error)

	// HandleCommand applies one control command synchronously, called
	// between Step invocations so parameter changes never apply
	// mid-iteration.
	HandleCommand(cmd control.Command) error

	// Paused reports whether the stage should skip Step this iteration.
	Paused() bool

	// Close releases any resources the stage owns (files, hardware
	// handles) on graph shutdown. Called exactly once, after the
	// stage's last Step.
	Close() error
}

// OptionalInputs lets a stage name the input ports Step may run without,
// for stages whose ports don't all need to be present on every
// iteration. If a Stage doesn't implement OptionalInputs, the
// Runner treats every currently-wired input port as required.
type OptionalInputs interface {
	// OptionalInputPorts lists port names that Step may run without.
	OptionalInputPorts() map[string]bool
}
