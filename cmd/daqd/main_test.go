package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelConfigFromParamsAppliesDefaults(t *testing.T) {
	cfg := channelConfigFromParams(map[string]interface{}{})

	assert.Equal(t, 256, cfg.SampleRateHz)
	assert.Equal(t, 8, cfg.ChannelCount)
	assert.Equal(t, 1.0, cfg.Gain)
	assert.Equal(t, 4.5, cfg.VRefVolts)
	assert.Equal(t, 24, cfg.BitsPerSample)
}

func TestChannelConfigFromParamsHonorsExplicitValues(t *testing.T) {
	cfg := channelConfigFromParams(map[string]interface{}{
		"sample_rate_hz":  float64(512),
		"channel_count":   4,
		"gain":            2.5,
		"vref_volts":      3.3,
		"bits_per_sample": 16,
	})

	assert.Equal(t, 512, cfg.SampleRateHz)
	assert.Equal(t, 4, cfg.ChannelCount)
	assert.Equal(t, 2.5, cfg.Gain)
	assert.Equal(t, 3.3, cfg.VRefVolts)
	assert.Equal(t, 16, cfg.BitsPerSample)
}

func TestParamStringRequiredMissingKey(t *testing.T) {
	_, err := paramStringRequired(map[string]interface{}{}, "spi_path")
	assert.Error(t, err)
}

func TestParamStringRequiredWrongType(t *testing.T) {
	_, err := paramStringRequired(map[string]interface{}{"spi_path": 5}, "spi_path")
	assert.Error(t, err)
}

func TestDriverOptionsOnlySetWhenPositive(t *testing.T) {
	opts := driverOptions(map[string]interface{}{})
	assert.Len(t, opts, 0)

	opts = driverOptions(map[string]interface{}{
		"batch_size":           32,
		"interrupt_timeout_ms": 25,
	})
	assert.Len(t, opts, 2)
}

func TestIntOrOne(t *testing.T) {
	assert.Equal(t, 1, intOrOne(0))
	assert.Equal(t, 1, intOrOne(-5))
	assert.Equal(t, 256, intOrOne(256))
}

func TestNewSensorFactoryRejectsUnknownBackend(t *testing.T) {
	t.Setenv("DAQD_SENSOR_BACKEND", "quantum")
	_, err := newSensorFactory()
	assert.Error(t, err)
}

func TestNewSensorFactoryDefaultsToMock(t *testing.T) {
	t.Setenv("DAQD_SENSOR_BACKEND", "")
	fn, err := newSensorFactory()
	assert.NoError(t, err)
	assert.NotNil(t, fn)
}
