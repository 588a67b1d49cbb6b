package control

import (
	"sync"
	"sync/atomic"
)

// Float64Param is an atomically-readable scalar parameter. A stage reads
// it once per iteration and caches the value in a local, so no packet is
// ever processed with a parameter that changed mid-iteration.
type Float64Param struct {
	bits atomic.Uint64
}

// NewFloat64Param constructs a parameter with an initial value.
func NewFloat64Param(initial float64) *Float64Param {
	p := &Float64Param{}
	p.Store(initial)
	return p
}

func (p *Float64Param) Load() float64 {
	return float64frombits(p.bits.Load())
}

func (p *Float64Param) Store(v float64) {
	p.bits.Store(float64bits(v))
}

// BoolParam is an atomic on/off flag, used for the Filter stage's
// `enabled` bypass switch.
type BoolParam struct {
	v atomic.Bool
}

func NewBoolParam(initial bool) *BoolParam {
	p := &BoolParam{}
	p.v.Store(initial)
	return p
}

func (p *BoolParam) Load() bool   { return p.v.Load() }
func (p *BoolParam) Store(v bool) { p.v.Store(v) }

// CoeffParam is a read-mostly cell for vector coefficients (filter taps).
// Updates replace the whole slice atomically via an internal pointer swap
// so readers never observe a torn write.
type CoeffParam struct {
	mu  sync.RWMutex
	val []float64
}

func NewCoeffParam(initial []float64) *CoeffParam {
	c := &CoeffParam{}
	c.Store(initial)
	return c
}

// Load returns the current coefficient slice. Callers must not mutate the
// returned slice; Store always installs a fresh one.
func (c *CoeffParam) Load() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *CoeffParam) Store(v []float64) {
	cp := make([]float64, len(v))
	copy(cp, v)
	c.mu.Lock()
	c.val = cp
	c.mu.Unlock()
}

// RecordingLock gates UpdateParam commands while a recording sink is
// active: parameters not marked safe-to-hot-change are rejected with
// ErrBusy; a rejected update is not queued for later application. The
// policy of which parameters are safe lives with each
// stage (it knows its own parameters); RecordingLock only tracks whether
// recording is currently active.
type RecordingLock struct {
	active atomic.Bool
}

func (r *RecordingLock) SetActive(active bool) { r.active.Store(active) }
func (r *RecordingLock) Active() bool           { return r.active.Load() }

// Gate returns an error if key is not in safeKeys and recording is active;
// otherwise nil, meaning the update may be applied immediately.
func (r *RecordingLock) Gate(key string, safeKeys map[string]bool) error {
	if !r.Active() {
		return nil
	}
	if safeKeys[key] {
		return nil
	}
	return &ErrBusy{Key: key}
}
