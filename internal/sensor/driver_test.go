package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
)

func TestAcquireEmitsBatchedFramesWithMonotonicIDs(t *testing.T) {
	const channels = 4
	const batch = 8
	p := pool.New("raw", packet.ElementRawSample, channels*batch, 4)

	adc := NewMockADC(10, 100, 60, 20)
	gpio := NewMockDataReadyLine(0)

	cfg := ChannelConfig{SampleRateHz: 500, ChannelCount: channels, Gain: 1, VRefVolts: 4.5, BitsPerSample: 24}
	d := New(adc, gpio, p, cfg, WithBatchSize(batch), WithInterruptTimeout(10*time.Millisecond))

	out := make(chan BridgeMsg, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Acquire(ctx, out) }()

	var lastFrame uint64
	seen := 0
	first := true
Collect:
	for {
		select {
		case msg := <-out:
			if msg.Err != nil {
				break Collect
			}
			if !first {
				assert.Equal(t, lastFrame+1, msg.Data.Header.FrameID)
			}
			first = false
			lastFrame = msg.Data.Header.FrameID
			assert.Equal(t, batch*channels, msg.Data.Header.SampleCount)
			assert.Equal(t, channels, msg.Data.Header.ChannelCount)
			msg.Data.Release()
			seen++
		case <-ctx.Done():
			break Collect
		}
	}

	<-done
	assert.Greater(t, seen, 0)
	assert.True(t, adc.Closed(), "hardware must be released on exit")
	assert.True(t, gpio.Closed(), "gpio claim must be released on exit")
	assert.Equal(t, StateReleased, d.State())
}

func TestAcquireReturnsErrorOnPoolExhaustion(t *testing.T) {
	const channels = 2
	const batch = 4
	p := pool.New("raw", packet.ElementRawSample, channels*batch, 1)

	// Hold the only buffer so the driver starves immediately.
	held, ok := p.TryAcquire()
	require.True(t, ok)
	defer held.Release()

	adc := NewMockADC(10, 100, 60, 20)
	gpio := NewMockDataReadyLine(0)
	cfg := ChannelConfig{SampleRateHz: 500, ChannelCount: channels, Gain: 1, VRefVolts: 4.5, BitsPerSample: 24}
	d := New(adc, gpio, p, cfg, WithBatchSize(batch))

	out := make(chan BridgeMsg, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := d.Acquire(ctx, out)
	require.Error(t, err)
	assert.Equal(t, StateReleased, d.State())
	assert.True(t, adc.Closed())
}
