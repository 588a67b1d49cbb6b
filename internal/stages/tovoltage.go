package stages

import (
	"context"
	"fmt"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
)

// ToVoltage converts raw integer ADC codes to float64 voltages:
// voltage = raw * (vref / ((2^(bits-1) - 1) * gain)). The scale factor
// is recomputed only on parameter change; the hot loop is a single
// multiply per sample.
type ToVoltage struct {
	base

	outPool *pool.Pool
	scale   control.Float64Param
}

// NewToVoltage builds a ToVoltage stage drawing its output packets from
// outPool. The initial scale factor comes from params: vref_volts
// (required), gain (default 1) and bits_per_sample (default 24).
// lock gates scale_factor updates while a recording sink is active; pass
// nil to leave the parameter always hot-reloadable.
func NewToVoltage(id string, outPool *pool.Pool, params map[string]interface{}, lock *control.RecordingLock) (*ToVoltage, error) {
	vref, err := paramFloat64(params, "vref_volts")
	if err != nil {
		return nil, err
	}
	gain := paramFloat64Default(params, "gain", 1.0)
	bits := paramIntDefault(params, "bits_per_sample", 24)

	s := &ToVoltage{base: newBaseWithLock(id, lock), outPool: outPool}
	s.scale.Store(scaleFactor(vref, gain, bits))
	return s, nil
}

func scaleFactor(vref, gain float64, bits int) float64 {
	fullScale := float64(int64(1)<<(uint(bits)-1) - 1)
	return vref / (fullScale * gain)
}

func (s *ToVoltage) Step(ctx context.Context, ins map[string]*packet.Packet) (map[string]*packet.Packet, error) {
	in := ins["in"]
	if in == nil {
		return nil, nil
	}
	defer in.Release()

	out, err := s.outPool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("tovoltage %s: acquire output: %w", s.id, err)
	}

	scale := s.scale.Load()
	raw := in.Raw()
	dst := out.Float64Buf()
	for i, v := range raw {
		dst[i] = float64(v) * scale
	}

	in.Header.CloneShapeInto(&out.Header)
	out.Header.SampleCount = len(raw)

	return map[string]*packet.Packet{"out": out}, nil
}

func (s *ToVoltage) HandleCommand(cmd control.Command) error {
	if handled, err := s.handleLifecycle(cmd); handled {
		return err
	}
	if cmd.Kind != control.UpdateParam {
		return nil
	}
	// scale_factor changes the meaning of every sample already recorded
	// in the current file, so it has no safe-to-hot-change exemption.
	if err := s.gate(cmd.Key, nil); err != nil {
		return err
	}
	switch cmd.Key {
	case "scale_factor":
		v, ok := cmd.Value.(float64)
		if !ok {
			return fmt.Errorf("tovoltage %s: scale_factor wants float64, got %T", s.id, cmd.Value)
		}
		s.scale.Store(v)
	default:
		return fmt.Errorf("tovoltage %s: unknown parameter %q", s.id, cmd.Key)
	}
	return nil
}
