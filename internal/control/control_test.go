package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxDrainProcessesAllQueuedCommands(t *testing.T) {
	inbox := NewInbox(4)
	require.True(t, inbox.Send(Command{StageID: "filter", Kind: Pause}))
	require.True(t, inbox.Send(Command{StageID: "filter", Kind: UpdateParam, Key: "cutoff_hz", Value: 25.0}))

	var seen []Kind
	inbox.Drain(func(c Command) { seen = append(seen, c.Kind) })

	assert.Equal(t, []Kind{Pause, UpdateParam}, seen)

	// A second drain with nothing queued must not block or invoke handle.
	inbox.Drain(func(c Command) { t.Fatal("handle called on empty inbox") })
}

func TestInboxSendFailsWhenFull(t *testing.T) {
	inbox := NewInbox(1)
	require.True(t, inbox.Send(Command{Kind: Pause}))
	assert.False(t, inbox.Send(Command{Kind: Resume}))
}

func TestFloat64ParamRoundTrips(t *testing.T) {
	p := NewFloat64Param(50.0)
	assert.Equal(t, 50.0, p.Load())
	p.Store(25.0)
	assert.Equal(t, 25.0, p.Load())
}

func TestCoeffParamStoreIsCopyNotAlias(t *testing.T) {
	src := []float64{1, 2, 3}
	c := NewCoeffParam(src)
	src[0] = 999
	assert.Equal(t, []float64{1, 2, 3}, c.Load())
}

func TestRecordingLockGatesUnsafeParams(t *testing.T) {
	var lock RecordingLock
	lock.SetActive(true)

	safe := map[string]bool{"gain": true}
	assert.NoError(t, lock.Gate("gain", safe))

	err := lock.Gate("coefficients", safe)
	require.Error(t, err)
	var busy *ErrBusy
	assert.ErrorAs(t, err, &busy)

	lock.SetActive(false)
	assert.NoError(t, lock.Gate("coefficients", safe))
}
