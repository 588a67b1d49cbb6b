package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithEmptyDSNReturnsNoOp(t *testing.T) {
	rec, err := Open("")
	require.NoError(t, err)
	assert.IsType(t, NoOp{}, rec)
}

func TestNoOpToleratesStopWithoutStart(t *testing.T) {
	var rec Recorder = NoOp{}

	err := rec.StopRun(context.Background(), "run-never-started", time.Now(), StopFatal)
	assert.NoError(t, err)
}

func TestNoOpRecordsNothingButNeverErrors(t *testing.T) {
	var rec Recorder = NoOp{}

	assert.NoError(t, rec.StartRun(context.Background(), "run-1", 3, time.Now()))
	assert.NoError(t, rec.StopRun(context.Background(), "run-1", time.Now(), StopNormal))
	assert.NoError(t, rec.Close())
}

func TestOpenWithMalformedDSNReturnsError(t *testing.T) {
	_, err := Open("not a valid postgres dsn \x00")
	assert.Error(t, err)
}
