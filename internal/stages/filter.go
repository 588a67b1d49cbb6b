package stages

import (
	"context"
	"fmt"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/packet"
)

// Filter is a direct-form-I IIR/FIR filter (an FIR is the special case
// a == [1]) applied independently per channel. Packet handoff through a
// Queue is always a move (internal/packet's single-ownership invariant),
// so the executor guarantees Step's input packet is uniquely owned —
// Filter exploits this by transforming the packet's buffer in place
// rather than acquiring a second packet from a pool.
type Filter struct {
	base

	channels int
	enabled  control.BoolParam

	b control.CoeffParam // feed-forward taps
	a control.CoeffParam // feedback taps (a[0] implicitly normalized to 1)

	// per-channel history, indexed [channel][tap]; rebuilt whenever
	// coefficients change so a stale history never mixes with new taps.
	xHist [][]float64
	yHist [][]float64
}

// NewFilter builds a Filter for channels channels, with feed-forward taps
// b and feedback taps a (a[0] is assumed 1; pass a == nil for a pure
// FIR). enabled defaults to true. lock gates enabled/coefficients
// updates while a recording sink is active; pass nil to leave both
// always hot-reloadable.
func NewFilter(id string, channels int, params map[string]interface{}, lock *control.RecordingLock) (*Filter, error) {
	b, err := paramFloat64Slice(params, "b")
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		b = []float64{1}
	}
	a, err := paramFloat64Slice(params, "a")
	if err != nil {
		return nil, err
	}

	f := &Filter{base: newBaseWithLock(id, lock), channels: channels}
	f.enabled.Store(paramBoolDefault(params, "enabled", true))
	f.b.Store(b)
	f.a.Store(a)
	f.resetHistory(len(b), len(a))
	return f, nil
}

func (f *Filter) resetHistory(bLen, aLen int) {
	f.xHist = make([][]float64, f.channels)
	f.yHist = make([][]float64, f.channels)
	for ch := 0; ch < f.channels; ch++ {
		if bLen > 1 {
			f.xHist[ch] = make([]float64, bLen-1)
		}
		if aLen > 1 {
			f.yHist[ch] = make([]float64, aLen-1)
		}
	}
}

func (f *Filter) Step(ctx context.Context, ins map[string]*packet.Packet) (map[string]*packet.Packet, error) {
	in := ins["in"]
	if in == nil {
		return nil, nil
	}

	if !f.enabled.Load() {
		return map[string]*packet.Packet{"out": in}, nil
	}

	samples := in.Float64()
	channelCount := in.Header.ChannelCount
	if channelCount == 0 || len(samples)%channelCount != 0 {
		in.Release()
		return nil, fmt.Errorf("filter %s: sample count %d not divisible by channel count %d", f.id, len(samples), channelCount)
	}

	b := f.b.Load()
	a := f.a.Load()
	framesPerChannel := len(samples) / channelCount

	for frame := 0; frame < framesPerChannel; frame++ {
		for ch := 0; ch < channelCount && ch < f.channels; ch++ {
			idx := frame*channelCount + ch
			samples[idx] = f.applyOne(ch, samples[idx], b, a)
		}
	}

	return map[string]*packet.Packet{"out": in}, nil
}

// applyOne runs one sample through the direct-form-I difference equation
// for channel ch, updating that channel's history in place.
func (f *Filter) applyOne(ch int, x float64, b, a []float64) float64 {
	y := b[0] * x
	xh := f.xHist[ch]
	for i := 1; i < len(b); i++ {
		y += b[i] * xh[i-1]
	}
	yh := f.yHist[ch]
	for i := 1; i < len(a); i++ {
		y -= a[i] * yh[i-1]
	}

	for i := len(xh) - 1; i > 0; i-- {
		xh[i] = xh[i-1]
	}
	if len(xh) > 0 {
		xh[0] = x
	}
	for i := len(yh) - 1; i > 0; i-- {
		yh[i] = yh[i-1]
	}
	if len(yh) > 0 {
		yh[0] = y
	}
	return y
}

func (f *Filter) HandleCommand(cmd control.Command) error {
	if handled, err := f.handleLifecycle(cmd); handled {
		return err
	}
	if cmd.Kind != control.UpdateParam {
		return nil
	}
	// enabled and coefficients both change the transfer function applied
	// to the signal; neither is safe to hot-change mid-recording.
	if err := f.gate(cmd.Key, nil); err != nil {
		return err
	}
	switch cmd.Key {
	case "enabled":
		v, ok := cmd.Value.(bool)
		if !ok {
			return fmt.Errorf("filter %s: enabled wants bool, got %T", f.id, cmd.Value)
		}
		f.enabled.Store(v)
	case "coefficients":
		coeffs, ok := cmd.Value.(map[string][]float64)
		if !ok {
			return fmt.Errorf("filter %s: coefficients wants map[string][]float64{\"b\":...,\"a\":...}, got %T", f.id, cmd.Value)
		}
		b := coeffs["b"]
		if len(b) == 0 {
			b = []float64{1}
		}
		a := coeffs["a"]
		// Coefficients reset atomically with history to avoid a transient
		// blow-up from mixing old state with a new transfer function.
		f.b.Store(b)
		f.a.Store(a)
		f.resetHistory(len(b), len(a))
	default:
		return fmt.Errorf("filter %s: unknown parameter %q", f.id, cmd.Key)
	}
	return nil
}
