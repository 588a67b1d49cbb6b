package sensor

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// MockADC synthesizes a deterministic multi-channel signal for tests and
// for local end-to-end runs without hardware: a sine wave at a configured
// frequency/amplitude plus a noise tone at a second frequency/amplitude,
// identical on every channel.
type MockADC struct {
	cfg ChannelConfig

	SignalHz  float64
	SignalUV  float64
	NoiseHz   float64
	NoiseUV   float64

	sampleIndex atomic.Int64
	closed      atomic.Bool
}

// NewMockADC builds a synthetic source producing a SignalHz sine of
// amplitude SignalUV microvolts plus a NoiseHz tone of amplitude NoiseUV
// microvolts, identical across all channels.
func NewMockADC(signalHz, signalUV, noiseHz, noiseUV float64) *MockADC {
	return &MockADC{SignalHz: signalHz, SignalUV: signalUV, NoiseHz: noiseHz, NoiseUV: noiseUV}
}

func (m *MockADC) Reset(ctx context.Context) error { return nil }

func (m *MockADC) Configure(cfg ChannelConfig) error {
	m.cfg = cfg
	return nil
}

func (m *MockADC) StartContinuous(ctx context.Context) error { return nil }

func (m *MockADC) ReadFrame(ctx context.Context, buf []int32) error {
	n := m.sampleIndex.Add(1) - 1
	t := float64(n) / float64(m.cfg.SampleRateHz)

	uv := m.SignalUV*math.Sin(2*math.Pi*m.SignalHz*t) + m.NoiseUV*math.Sin(2*math.Pi*m.NoiseHz*t)
	volts := uv * 1e-6

	maxCode := float64(int64(1)<<(m.cfg.BitsPerSample-1) - 1)
	code := int32(volts / (m.cfg.VRefVolts / (maxCode * m.cfg.Gain)))

	for ch := range buf {
		buf[ch] = code
	}
	return nil
}

func (m *MockADC) StopConversion(ctx context.Context) error { return nil }

func (m *MockADC) Close() error {
	m.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called, for tests asserting that
// hardware release runs on every exit path.
func (m *MockADC) Closed() bool { return m.closed.Load() }

// MockDataReadyLine fires an edge on a fixed period, simulating the
// data-ready GPIO interrupt without real hardware.
type MockDataReadyLine struct {
	Period time.Duration
	closed atomic.Bool
}

func NewMockDataReadyLine(period time.Duration) *MockDataReadyLine {
	return &MockDataReadyLine{Period: period}
}

func (g *MockDataReadyLine) WaitEdge(ctx context.Context, timeout time.Duration) (bool, error) {
	wait := g.Period
	if wait <= 0 {
		wait = time.Microsecond
	}
	t := time.NewTimer(minDuration(wait, timeout))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false, nil
	case <-t.C:
		if wait > timeout {
			return false, nil
		}
		return true, nil
	}
}

func (g *MockDataReadyLine) Close() error {
	g.closed.Store(true)
	return nil
}

func (g *MockDataReadyLine) Closed() bool { return g.closed.Load() }

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
