// Package stages implements the stage library: ToVoltage, Filter, FFT,
// CsvSink, and WebSocketSink, each a pure transform over packets plus a
// control-command handler. Every stage embeds base for the Pause/Resume/
// Shutdown handling common to all of them, grounded on
// internal/circuitbreaker/breaker.go's explicit state-enum idiom for
// lifecycle transitions.
package stages

import (
	"github.com/elata-eeg/daqd/internal/control"
)

// base implements the parts of executor.Stage shared by every concrete
// stage: identity, pause/resume, and the default no-op Close.
type base struct {
	id     string
	paused control.BoolParam

	// lock is nil for stages that never touch the recording lock
	// (FFT, WebSocketSink, SensorSource). Stages that set or consult it
	// are built with newBaseWithLock instead of newBase.
	lock *control.RecordingLock
}

func newBase(id string) base {
	return base{id: id}
}

// newBaseWithLock builds a base for a stage that either marks recording
// active (CsvSink) or must gate its hot-reloadable parameters against it
// (ToVoltage, Filter).
func newBaseWithLock(id string, lock *control.RecordingLock) base {
	return base{id: id, lock: lock}
}

func (b *base) ID() string   { return b.id }
func (b *base) Paused() bool { return b.paused.Load() }
func (b *base) Close() error { return nil }

// gate checks the shared RecordingLock before applying an UpdateParam
// whose key is not in safeKeys. A nil lock (stage built with newBase)
// never blocks.
func (b *base) gate(key string, safeKeys map[string]bool) error {
	if b.lock == nil {
		return nil
	}
	return b.lock.Gate(key, safeKeys)
}

// handleLifecycle applies Pause/Resume/Shutdown uniformly. Shutdown is
// accepted and has no effect: the stage keeps running until the
// executor's context is cancelled. Reports handled=false for any other command kind so the
// embedding stage can apply its own UpdateParam logic.
func (b *base) handleLifecycle(cmd control.Command) (handled bool, err error) {
	switch cmd.Kind {
	case control.Pause:
		b.paused.Store(true)
		return true, nil
	case control.Resume:
		b.paused.Store(false)
		return true, nil
	case control.Shutdown:
		return true, nil
	default:
		return false, nil
	}
}
