package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elata-eeg/daqd/internal/packet"
)

func TestTryAcquireOnEmptyReturnsAbsenceNotPanic(t *testing.T) {
	p := New("viewer-raw", packet.ElementRawSample, 64, 2)

	b1, ok := p.TryAcquire()
	require.True(t, ok)
	b2, ok := p.TryAcquire()
	require.True(t, ok)

	b3, ok := p.TryAcquire()
	assert.False(t, ok)
	assert.Nil(t, b3)
	assert.Equal(t, int64(1), p.ExhaustedCount())

	b1.Release()
	b2.Release()
}

func TestInFlightPlusFreeEqualsDepth(t *testing.T) {
	const depth = 8
	p := New("recording", packet.ElementVoltage, 32, depth)

	leased := make([]*packet.Packet, 0, depth)
	for i := 0; i < depth; i++ {
		b, ok := p.TryAcquire()
		require.True(t, ok)
		leased = append(leased, b)
	}

	stats := p.Stats()
	assert.EqualValues(t, 0, stats.Free)
	assert.EqualValues(t, depth, stats.InFlight)
	assert.Equal(t, depth, stats.Depth)
	assert.Equal(t, stats.InFlight+int64(stats.Free), int64(stats.Depth))

	for _, b := range leased {
		b.Release()
	}

	stats = p.Stats()
	assert.EqualValues(t, depth, stats.Free)
	assert.EqualValues(t, 0, stats.InFlight)
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	p := New("blocking", packet.ElementFiltered, 16, 1)

	held, ok := p.TryAcquire()
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b, err := p.Acquire(ctx)
		require.NoError(t, err)
		assert.NotNil(t, b)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("acquire returned before release freed a slot")
	default:
	}

	held.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after release")
	}
}

func TestAcquireTimesOutWithoutPanic(t *testing.T) {
	p := New("timeout", packet.ElementPSD, 8, 1)
	_, ok := p.TryAcquire()
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m := NewManager()
	_, err := m.Declare("raw", packet.ElementRawSample, 64, 4)
	require.NoError(t, err)

	_, err = m.Declare("raw", packet.ElementRawSample, 64, 4)
	assert.Error(t, err)
}

func TestManagerGetUnknownPool(t *testing.T) {
	m := NewManager()
	_, err := m.Get("missing")
	assert.Error(t, err)
}
