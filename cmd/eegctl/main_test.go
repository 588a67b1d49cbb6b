package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseValueNumeric(t *testing.T) {
	assert.Equal(t, 25.0, parseValue("25"))
	assert.Equal(t, 25.5, parseValue("25.5"))
	assert.Equal(t, 25.0, parseValue("25.0"))
}

func TestParseValueBoolean(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, false, parseValue("false"))
}

func TestParseValueFallsBackToString(t *testing.T) {
	assert.Equal(t, "bandpass", parseValue("bandpass"))
}

func TestParseStageFlags(t *testing.T) {
	f := parseStageFlags([]string{"--stage", "filter1", "--key", "cutoff_hz", "--value", "25.0"})

	assert.Equal(t, "filter1", f.stage)
	assert.Equal(t, "cutoff_hz", f.key)
	assert.Equal(t, "25.0", f.value)
}
