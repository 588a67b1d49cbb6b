// Package sensor implements the blocking ADC acquisition loop: reset and
// configure the chip, arm a data-ready GPIO interrupt, and on each edge
// read one frame of samples for all channels into a pooled packet,
// batching several frames per packet before handoff. Grounded on
// internal/ringbuf/reader.go's blocking-read-with-mock-fallback shape and
// on other_examples/jangala-dev-devicecode-go's HAL trait split between
// transactional buses (SPI) and GPIO pin handles.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
)

// State is the sensor driver's lifecycle state machine:
// Uninit -> Configured -> Running -> (Draining | Faulted) -> Released.
type State int32

const (
	StateUninit State = iota
	StateConfigured
	StateRunning
	StateDraining
	StateFaulted
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "Uninit"
	case StateConfigured:
		return "Configured"
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateFaulted:
		return "Faulted"
	case StateReleased:
		return "Released"
	default:
		return "Unknown"
	}
}

// ADC is the abstract sensor chip trait; register-level bring-up is
// covered abstractly through this interface rather than named here. A
// concrete implementation owns SPI; nothing else in the graph may touch
// the hardware it wraps.
type ADC interface {
	// Reset puts the chip in a known state.
	Reset(ctx context.Context) error
	// Configure sets channel gains and sample rate.
	Configure(cfg ChannelConfig) error
	// StartContinuous commands continuous-read mode.
	StartContinuous(ctx context.Context) error
	// ReadFrame reads one frame (one sample per enabled channel) into buf,
	// which has length == cfg.ChannelCount, returning a non-nil error if
	// the frame could not be read.
	ReadFrame(ctx context.Context, buf []int32) error
	// StopConversion halts sampling; called on every terminal transition.
	StopConversion(ctx context.Context) error
	// Close releases any OS-level handle (SPI device node, etc).
	Close() error
}

// DataReadyLine is the GPIO edge-interrupt trait for the ADC's data-ready
// pin.
type DataReadyLine interface {
	// WaitEdge blocks for a rising edge up to timeout, returning
	// (true, nil) on an edge, (false, nil) on timeout (the caller
	// re-checks the stop flag and loops), or an error on a GPIO subsystem
	// failure.
	WaitEdge(ctx context.Context, timeout time.Duration) (bool, error)
	// Close releases the GPIO line claim.
	Close() error
}

// ChannelConfig describes the acquisition shape: sample rate, channel
// count, and per-channel gain.
type ChannelConfig struct {
	SampleRateHz int
	ChannelCount int
	Gain         float64
	// VRefVolts and BitsPerSample reach the ADC through Configure (the
	// ToVoltage stage takes its own copies from its params); the driver's
	// loop itself only reads ChannelCount.
	VRefVolts     float64
	BitsPerSample int
}

// Error wraps a hardware fault: non-recoverable in this iteration, fatal
// to the sensor stage and therefore the graph.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("sensor: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// BridgeMsg is the typed item the driver emits on its output channel,
// bridging the synchronous hardware-facing world into the rest of the
// pipeline: a small bridge task copies BridgeMsg values from the
// synchronous world into the async runtime.
type BridgeMsg struct {
	Data *packet.Packet
	Err  error
}

// Driver runs the blocking hardware acquisition loop.
type Driver struct {
	adc   ADC
	gpio  DataReadyLine
	pool  *pool.Pool
	cfg   ChannelConfig

	batchSize int // frames accumulated per emitted packet (typical 16-32)

	state     atomic.Int32
	frameID   atomic.Uint64
	metaRev   uint64
	interruptTimeout time.Duration
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithBatchSize sets how many hardware frames accumulate into one
// emitted packet. Default 16.
func WithBatchSize(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithInterruptTimeout sets the GPIO wait timeout (bounded to 100ms or
// less so the loop can observe cancellation promptly). Default 50ms.
func WithInterruptTimeout(t time.Duration) Option {
	return func(d *Driver) {
		if t > 100*time.Millisecond {
			t = 100 * time.Millisecond
		}
		if t > 0 {
			d.interruptTimeout = t
		}
	}
}

// New builds a Driver bound to the given hardware traits, output pool, and
// channel configuration. The pool's element must be ElementRawSample and
// its capacity must be >= cfg.ChannelCount * batchSize.
func New(adc ADC, gpio DataReadyLine, p *pool.Pool, cfg ChannelConfig, opts ...Option) *Driver {
	d := &Driver{
		adc:              adc,
		gpio:             gpio,
		pool:             p,
		cfg:              cfg,
		batchSize:        16,
		interruptTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.state.Store(int32(StateUninit))
	return d
}

// State returns the driver's current lifecycle state.
func (d *Driver) State() State { return State(d.state.Load()) }

// BumpMetaRevision increments the stream's meta revision, e.g. after a
// Reconfigure changes channel count or sample rate. Must only be called
// between packets, i.e. while not Running.
func (d *Driver) BumpMetaRevision() { d.metaRev++ }

// Acquire runs the acquisition loop synchronously until ctx is cancelled
// or a hardware fault occurs. It emits BridgeMsg
// values on out, and guarantees that every terminal state calls the
// driver's hardware-release path exactly once before returning.
func (d *Driver) Acquire(ctx context.Context, out chan<- BridgeMsg) error {
	if err := d.adc.Reset(ctx); err != nil {
		d.state.Store(int32(StateFaulted))
		d.release(ctx)
		return &Error{Op: "reset", Err: err}
	}
	if err := d.adc.Configure(d.cfg); err != nil {
		d.state.Store(int32(StateFaulted))
		d.release(ctx)
		return &Error{Op: "configure", Err: err}
	}
	d.state.Store(int32(StateConfigured))

	if err := d.adc.StartContinuous(ctx); err != nil {
		d.state.Store(int32(StateFaulted))
		d.release(ctx)
		return &Error{Op: "start_continuous", Err: err}
	}
	d.state.Store(int32(StateRunning))

	runErr := d.runLoop(ctx, out)

	if runErr != nil {
		d.state.Store(int32(StateFaulted))
	} else {
		d.state.Store(int32(StateDraining))
	}
	d.release(ctx)
	d.state.Store(int32(StateReleased))

	if runErr != nil {
		select {
		case out <- BridgeMsg{Err: runErr}:
		default:
		}
		return runErr
	}
	return nil
}

func (d *Driver) runLoop(ctx context.Context, out chan<- BridgeMsg) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		buf, ok := d.pool.TryAcquire()
		if !ok {
			// Acquisition-pool exhaustion is fatal for the sensor source:
			// the raw pool must be sized to never starve under nominal
			// load.
			return &Error{Op: "raw_pool_acquire", Err: errors.New("pool exhausted")}
		}

		framesInBatch := 0
		raw := buf.RawBuf()
		for framesInBatch < d.batchSize {
			edge, err := d.gpio.WaitEdge(ctx, d.interruptTimeout)
			if err != nil {
				buf.Release()
				return &Error{Op: "gpio_wait", Err: err}
			}
			if !edge {
				select {
				case <-ctx.Done():
					buf.Release()
					return nil
				default:
					continue
				}
			}

			frame := raw[framesInBatch*d.cfg.ChannelCount : (framesInBatch+1)*d.cfg.ChannelCount]
			if err := d.adc.ReadFrame(ctx, frame); err != nil {
				buf.Release()
				return &Error{Op: "read_frame", Err: err}
			}
			framesInBatch++
		}

		buf.Header.FrameID = d.frameID.Add(1) - 1
		buf.Header.TimestampNs = time.Now().UnixNano()
		buf.Header.SampleCount = framesInBatch * d.cfg.ChannelCount
		buf.Header.MetaRevision = d.metaRev
		buf.Header.ChannelCount = d.cfg.ChannelCount

		select {
		case out <- BridgeMsg{Data: buf}:
		case <-ctx.Done():
			buf.Release()
			return nil
		}
	}
}

// release calls the hardware-release path: stop conversion, release the
// GPIO claim, close the SPI handle. Every terminal state (Draining,
// Faulted) reaches this exactly once.
func (d *Driver) release(ctx context.Context) {
	_ = d.adc.StopConversion(ctx)
	_ = d.gpio.Close()
	_ = d.adc.Close()
}
