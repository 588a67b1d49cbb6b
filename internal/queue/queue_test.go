package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elata-eeg/daqd/internal/packet"
)

func mkPacket(id uint64) *packet.Packet {
	p := packet.NewFloat64(4, packet.ElementVoltage, nil)
	p.Header.FrameID = id
	p.Header.SampleCount = 4
	return p
}

func TestDropOldestKeepsProducerUnblocked(t *testing.T) {
	q := NewSPSC(2, DropOldest)
	for i := uint64(0); i < 10; i++ {
		require.NoError(t, q.Send(mkPacket(i)))
	}
	assert.Equal(t, int64(8), q.DropCount())
	assert.Equal(t, 2, q.Len())

	p, err := q.Recv()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), p.Header.FrameID)
}

func TestDropNewestDiscardsIncoming(t *testing.T) {
	q := NewSPSC(1, DropNewest)
	require.NoError(t, q.Send(mkPacket(1)))
	require.NoError(t, q.Send(mkPacket(2)))
	assert.Equal(t, int64(1), q.DropCount())

	p, err := q.Recv()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Header.FrameID)
}

func TestErrorPolicyPropagatesBackpressure(t *testing.T) {
	q := NewSPSC(1, Error)
	require.NoError(t, q.Send(mkPacket(1)))
	err := q.Send(mkPacket(2))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestBlockPolicyResumesAfterSlotFrees(t *testing.T) {
	q := NewSPSC(1, Block)
	require.NoError(t, q.Send(mkPacket(1)))

	sent := make(chan struct{})
	go func() {
		require.NoError(t, q.Send(mkPacket(2)))
		close(sent)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-sent:
		t.Fatal("send completed before a slot freed")
	default:
	}

	p, err := q.Recv()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Header.FrameID)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("blocked send never resumed")
	}
}

func TestRecvOnEmptyReturnsNilNilNotError(t *testing.T) {
	q := NewSPSC(4, DropNewest)
	p, err := q.Recv()
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestMPSCFanIn(t *testing.T) {
	q := NewMPSC(100, Block)
	var wg sync.WaitGroup
	for producer := 0; producer < 4; producer++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				require.NoError(t, q.Send(mkPacket(uint64(id*100+i))))
			}
		}(producer)
	}
	wg.Wait()
	assert.Equal(t, 40, q.Len())
}
