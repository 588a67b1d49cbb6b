package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(4)
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	frame := uint64(1234)
	bus.PublishPipelineFailed("filter", ErrorKindPanic, "division by zero", &frame)

	select {
	case ev := <-ch:
		assert.Equal(t, KindPipelineFailed, ev.Kind)
		var payload PipelineFailedPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		assert.Equal(t, "filter", payload.StageID)
		assert.Equal(t, ErrorKindPanic, payload.ErrorKind)
		require.NotNil(t, payload.FrameID)
		assert.Equal(t, uint64(1234), *payload.FrameID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSSEFormatIncludesEventAndID(t *testing.T) {
	bus := NewBus(1)
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	bus.Publish(KindSourceReady, map[string]string{"stage": "sensor"})
	ev := <-ch

	raw, err := ev.SSEFormat()
	require.NoError(t, err)
	s := string(raw)
	assert.Contains(t, s, "event: SourceReady")
	assert.Contains(t, s, "id: "+ev.ID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(4)
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	bus.Publish(KindClientConnected, nil)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after Unsubscribe")
}
