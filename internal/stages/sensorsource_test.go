package stages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
	"github.com/elata-eeg/daqd/internal/sensor"
)

func TestSensorSourceEmitsPacketsFromDriver(t *testing.T) {
	rawPool := pool.New("raw", packet.ElementRawSample, 2, 4)
	adc := sensor.NewMockADC(10, 50, 60, 5)
	gpio := sensor.NewMockDataReadyLine(time.Millisecond)
	driver := sensor.New(adc, gpio, rawPool, sensor.ChannelConfig{
		SampleRateHz: 256, ChannelCount: 1, Gain: 1, VRefVolts: 4.5, BitsPerSample: 24,
	}, sensor.WithBatchSize(2))

	src := NewSensorSource("sensor1", driver, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		outs, err := src.Step(ctx, nil)
		require.NoError(t, err)
		if outs != nil {
			require.NotNil(t, outs["out"])
			assert.Equal(t, 1, outs["out"].Header.ChannelCount)
			outs["out"].Release()
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("sensor source produced no packet within deadline")
}
