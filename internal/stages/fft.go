package stages

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
)

// hannCoherentGainCorrection is the Hann window's coherent-gain factor
// (its mean value, the DC-bin amplitude response), which converges to 0.5
// as the window length grows. periodogram does not apply it: the output
// is a power spectral density, normalized instead by
// sampleRateHz × sum(window[i]²) (windowPowerSum), the window's
// noise-equivalent power, which already accounts for the window's loss.
const hannCoherentGainCorrection = 0.5

// FFT accumulates a sliding, non-overlapping window of filtered voltage
// samples per channel until windowLen samples have arrived, then emits
// one power-spectral-density packet in µV²/Hz holding every channel's
// BinCount() bins back to back, drawn from a
// distinct pool since the output shape (frequency bins) differs from the
// input shape (time samples). No FFT library exists anywhere in the
// retrieved corpus, so this implements a standard iterative radix-2
// Cooley-Tukey transform directly on math/cmplx complex128 values.
type FFT struct {
	base

	channels     int
	windowLen    int // must be a power of two
	sampleRateHz float64
	outPool      *pool.Pool

	window       []float64 // precomputed Hann window, length windowLen
	windowPowerSum float64 // sum(window[i]^2), the window's noise-equivalent power

	accum     [][]float64 // per-channel sample accumulator, len < windowLen between flushes
	revision  uint64
	frameSeq  uint64
}

// NewFFT builds an FFT stage. windowLen must be a power of two (required
// by the radix-2 transform); sampleRateHz is needed to convert bin index
// to Hz and to normalize power spectral density per Hz.
func NewFFT(id string, channels int, outPool *pool.Pool, params map[string]interface{}) (*FFT, error) {
	windowLen, err := paramInt(params, "window_length")
	if err != nil {
		return nil, err
	}
	if windowLen < 2 || windowLen&(windowLen-1) != 0 {
		return nil, fmt.Errorf("fft %s: window_length must be a power of two >= 2, got %d", id, windowLen)
	}
	sampleRateHz, err := paramFloat64(params, "sample_rate_hz")
	if err != nil {
		return nil, err
	}

	f := &FFT{
		base:         newBase(id),
		channels:     channels,
		windowLen:    windowLen,
		sampleRateHz: sampleRateHz,
		outPool:      outPool,
		accum:        make([][]float64, channels),
	}
	f.buildWindow()
	for ch := range f.accum {
		f.accum[ch] = make([]float64, 0, windowLen)
	}
	return f, nil
}

func (f *FFT) buildWindow() {
	f.window = make([]float64, f.windowLen)
	sumSq := 0.0
	n := float64(f.windowLen)
	for i := range f.window {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/(n-1)))
		f.window[i] = w
		sumSq += w * w
	}
	f.windowPowerSum = sumSq
}

// BinHz returns the center frequency of PSD bin k.
func (f *FFT) BinHz(k int) float64 {
	return float64(k) * f.sampleRateHz / float64(f.windowLen)
}

// BinCount returns the number of one-sided PSD bins this FFT emits per
// channel: windowLen/2 + 1.
func (f *FFT) BinCount() int { return f.windowLen/2 + 1 }

func (f *FFT) Step(ctx context.Context, ins map[string]*packet.Packet) (map[string]*packet.Packet, error) {
	in := ins["in"]
	if in == nil {
		return nil, nil
	}
	defer in.Release()

	channelCount := in.Header.ChannelCount
	samples := in.Float64()
	if channelCount == 0 || len(samples)%channelCount != 0 {
		return nil, fmt.Errorf("fft %s: sample count %d not divisible by channel count %d", f.id, len(samples), channelCount)
	}
	frames := len(samples) / channelCount

	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < channelCount && ch < f.channels; ch++ {
			f.accum[ch] = append(f.accum[ch], samples[frame*channelCount+ch])
		}
	}

	if len(f.accum[0]) < f.windowLen {
		return nil, nil
	}

	out, err := f.outPool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("fft %s: acquire output: %w", f.id, err)
	}

	binCount := f.BinCount()
	dst := out.Float64Buf()
	for ch := 0; ch < f.channels; ch++ {
		psd := f.periodogram(f.accum[ch])
		copy(dst[ch*binCount:(ch+1)*binCount], psd)
		f.accum[ch] = f.accum[ch][:0]
	}

	f.frameSeq++
	in.Header.CloneShapeInto(&out.Header)
	out.Header.FrameID = f.frameSeq
	out.Header.SampleCount = binCount * f.channels
	out.Header.MetaRevision = f.revision
	return map[string]*packet.Packet{"out": out}, nil
}

// periodogram computes the one-sided power spectral density in µV²/Hz
// for one channel's windowLen-sample buffer.
func (f *FFT) periodogram(x []float64) []float64 {
	windowed := make([]complex128, f.windowLen)
	for i, v := range x {
		windowed[i] = complex(v*f.window[i], 0)
	}
	spectrum := fftRadix2(windowed)

	binCount := f.BinCount()
	out := make([]float64, binCount)
	// Normalize by sample rate and window power so the result is a
	// density per Hz rather than merely proportional to |X[k]|^2. The
	// input is in volts, so the 1e12 factor converts V² to µV².
	norm := 1e12 / (f.sampleRateHz * f.windowPowerSum)
	for k := 0; k < binCount; k++ {
		p := cmplx.Abs(spectrum[k])
		power := p * p * norm
		if k != 0 && k != f.windowLen/2 {
			power *= 2 // fold negative frequencies into the one-sided spectrum
		}
		out[k] = power
	}
	return out
}

// fftRadix2 computes the discrete Fourier transform of x (len(x) must be
// a power of two) via the standard iterative Cooley-Tukey algorithm.
func fftRadix2(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	copy(out, x)

	bitLen := bits.Len(uint(n)) - 1
	for i := range out {
		j := bits.Reverse(uint(i)) >> (bits.UintSize - bitLen)
		if j > uint(i) {
			out[i], out[j] = out[j], out[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		angleStep := -2 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := cmplx.Exp(complex(0, angleStep*float64(k)))
				even := out[start+k]
				odd := out[start+k+half] * w
				out[start+k] = even + odd
				out[start+k+half] = even - odd
			}
		}
	}
	return out
}

func (f *FFT) HandleCommand(cmd control.Command) error {
	if handled, err := f.handleLifecycle(cmd); handled {
		return err
	}
	if cmd.Kind != control.UpdateParam {
		return nil
	}
	return fmt.Errorf("fft %s: parameter %q cannot be hot-reloaded (window length is fixed at build time)", f.id, cmd.Key)
}
