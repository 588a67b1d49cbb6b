package stages

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/packet"
)

func TestCsvSinkWritesHeaderOnceAndRowsPerSample(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCsvSink("sink1", 2, map[string]interface{}{
		"run_id":             "run-a",
		"output_dir":         dir,
		"start_timestamp_ns": 1000.0,
	}, nil)
	require.NoError(t, err)

	in := newVoltagePacket(t, 2, []float64{1, 2, 3, 4})
	in.Header.TimestampNs = 42
	_, err = sink.Step(context.Background(), map[string]*packet.Packet{"in": in})
	require.NoError(t, err)

	in2 := newVoltagePacket(t, 2, []float64{5, 6})
	in2.Header.TimestampNs = 43
	_, err = sink.Step(context.Background(), map[string]*packet.Packet{"in": in2})
	require.NoError(t, err)

	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, "run-a_1000.csv"))
	require.NoError(t, err)
	lines := splitLines(string(data))
	assert.Equal(t, "timestamp_ns,channel_0,channel_1", lines[0])
	assert.Len(t, lines, 4) // header + 2 frames from first packet + 1 from second
}

func TestCsvSinkReportsIOErrorAfterClose(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCsvSink("sink1", 1, map[string]interface{}{
		"run_id":     "run-b",
		"output_dir": dir,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	in := newVoltagePacket(t, 1, []float64{1})
	_, err = sink.Step(context.Background(), map[string]*packet.Packet{"in": in})
	assert.Error(t, err)
}

func TestCsvSinkMarksRecordingLockActiveUntilClose(t *testing.T) {
	dir := t.TempDir()
	lock := &control.RecordingLock{}
	sink, err := NewCsvSink("sink1", 1, map[string]interface{}{
		"run_id":     "run-c",
		"output_dir": dir,
	}, lock)
	require.NoError(t, err)
	assert.False(t, lock.Active())

	in := newVoltagePacket(t, 1, []float64{1})
	_, err = sink.Step(context.Background(), map[string]*packet.Packet{"in": in})
	require.NoError(t, err)
	assert.True(t, lock.Active())

	require.NoError(t, sink.Close())
	assert.False(t, lock.Active())
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
