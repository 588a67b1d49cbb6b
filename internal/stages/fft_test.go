package stages

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
)

func newFilteredPacket(t *testing.T, channels int, samples []float64) *packet.Packet {
	t.Helper()
	p := pool.New("filtered", packet.ElementFiltered, len(samples), 1)
	buf, ok := p.TryAcquire()
	require.True(t, ok)
	buf.Header.SampleCount = len(samples)
	buf.Header.ChannelCount = channels
	copy(buf.Float64Buf(), samples)
	return buf
}

func newFFT(t *testing.T, channels, windowLen int, sampleRateHz float64) *FFT {
	t.Helper()
	outPool := pool.New("psd", packet.ElementPSD, channels*(windowLen/2+1), 2)
	f, err := NewFFT("fft1", channels, outPool, map[string]interface{}{
		"window_length":  float64(windowLen),
		"sample_rate_hz": sampleRateHz,
	})
	require.NoError(t, err)
	return f
}

func TestFFTBinCount(t *testing.T) {
	f := newFFT(t, 1, 8, 256)
	assert.Equal(t, 5, f.BinCount())
	assert.InDelta(t, 32.0, f.BinHz(1), 1e-9)
}

func TestFFTWithholdsOutputUntilWindowFull(t *testing.T) {
	f := newFFT(t, 1, 8, 256)

	for i := 0; i < 7; i++ {
		in := newFilteredPacket(t, 1, []float64{1})
		outs, err := f.Step(context.Background(), map[string]*packet.Packet{"in": in})
		require.NoError(t, err)
		assert.Nil(t, outs)
	}

	in := newFilteredPacket(t, 1, []float64{1})
	outs, err := f.Step(context.Background(), map[string]*packet.Packet{"in": in})
	require.NoError(t, err)
	require.NotNil(t, outs["out"])
	outs["out"].Release()
}

func TestFFTDCAndNyquistBinsNotDoubled(t *testing.T) {
	windowLen := 8
	f := newFFT(t, 1, windowLen, 256)

	var lastOut *packet.Packet
	for i := 0; i < windowLen; i++ {
		in := newFilteredPacket(t, 1, []float64{1}) // constant 1 V signal
		outs, err := f.Step(context.Background(), map[string]*packet.Packet{"in": in})
		require.NoError(t, err)
		if outs != nil {
			lastOut = outs["out"]
		}
	}
	require.NotNil(t, lastOut)
	defer lastOut.Release()

	psd := lastOut.Float64()
	binCount := f.BinCount()
	require.Len(t, psd, binCount)

	assert.Greater(t, psd[0], 0.0)
	// A Hann-windowed constant is not pure DC: the window's own spectrum
	// spreads into the neighbouring bins. Each bin must equal a direct DFT
	// of the window scaled to µV²/Hz, doubled only strictly between DC and
	// Nyquist.
	window := make([]float64, windowLen)
	sumSq := 0.0
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(windowLen-1)))
		sumSq += window[i] * window[i]
	}
	for k := 0; k < binCount; k++ {
		var re, im float64
		for i, w := range window {
			angle := -2 * math.Pi * float64(k*i) / float64(windowLen)
			re += w * math.Cos(angle)
			im += w * math.Sin(angle)
		}
		want := (re*re + im*im) * 1e12 / (256 * sumSq)
		if k != 0 && k != binCount-1 {
			want *= 2
		}
		assert.InDelta(t, want, psd[k], want*1e-9+1e-9)
	}
	assert.False(t, math.IsNaN(psd[binCount-1]))
}
