package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
)

func TestToVoltageScalesSamples(t *testing.T) {
	outPool := pool.New("volts", packet.ElementVoltage, 4, 2)
	s, err := NewToVoltage("tov", outPool, map[string]interface{}{
		"vref_volts": 4.5, "gain": 1.0, "bits_per_sample": 24,
	}, nil)
	require.NoError(t, err)

	rawPool := pool.New("raw", packet.ElementRawSample, 4, 1)
	in, ok := rawPool.TryAcquire()
	require.True(t, ok)
	in.Header.SampleCount = 4
	in.Header.ChannelCount = 2
	in.Header.FrameID = 7
	copy(in.RawBuf(), []int32{100, -100, 0, 8388607})

	outs, err := s.Step(context.Background(), map[string]*packet.Packet{"in": in})
	require.NoError(t, err)
	out := outs["out"]
	require.NotNil(t, out)
	defer out.Release()

	assert.Equal(t, uint64(7), out.Header.FrameID)
	assert.Equal(t, 4, out.Header.SampleCount)
	vals := out.Float64()
	scale := 4.5 / 8388607.0
	assert.InDelta(t, 100*scale, vals[0], 1e-12)
	assert.InDelta(t, -100*scale, vals[1], 1e-12)
	assert.InDelta(t, 8388607*scale, vals[3], 1e-9)
}

func TestToVoltageIsInvertible(t *testing.T) {
	outPool := pool.New("volts", packet.ElementVoltage, 1, 1)
	s, err := NewToVoltage("tov", outPool, map[string]interface{}{"vref_volts": 4.5, "gain": 2.0, "bits_per_sample": 24}, nil)
	require.NoError(t, err)

	scale := s.scale.Load()
	for _, raw := range []int32{0, 1, -1, 12345, -12345, 8388607, -8388608} {
		v := float64(raw) * scale
		back := int32(v/scale + sign(v/scale)*0.5)
		assert.Equal(t, raw, back)
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func TestToVoltageUpdateScaleFactor(t *testing.T) {
	outPool := pool.New("volts", packet.ElementVoltage, 1, 1)
	s, err := NewToVoltage("tov", outPool, map[string]interface{}{"vref_volts": 4.5, "gain": 1.0, "bits_per_sample": 24}, nil)
	require.NoError(t, err)

	require.NoError(t, s.HandleCommand(commandUpdateParam("tov", "scale_factor", 2.0)))
	assert.Equal(t, 2.0, s.scale.Load())
}

func TestToVoltageRejectsScaleFactorWhileRecording(t *testing.T) {
	outPool := pool.New("volts", packet.ElementVoltage, 1, 1)
	lock := &control.RecordingLock{}
	lock.SetActive(true)
	s, err := NewToVoltage("tov", outPool, map[string]interface{}{"vref_volts": 4.5, "gain": 1.0, "bits_per_sample": 24}, lock)
	require.NoError(t, err)

	err = s.HandleCommand(commandUpdateParam("tov", "scale_factor", 2.0))
	var busy *control.ErrBusy
	assert.ErrorAs(t, err, &busy)
}
