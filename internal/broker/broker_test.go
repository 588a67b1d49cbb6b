package broker

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elata-eeg/daqd/internal/events"
	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/pool"
)

func newTestServer(t *testing.T) (*Broker, *httptest.Server, string) {
	t.Helper()
	b := NewBroker(4, events.NewBus(8), nil)
	srv := httptest.NewServer(http.HandlerFunc(b.HandleWebSocket))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	t.Cleanup(srv.Close)
	return b, srv, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribeTo(t *testing.T, conn *websocket.Conn, topics ...string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(controlFrame{Action: "subscribe", Topics: topics}))
}

func newVoltPacket(t *testing.T, channels int, samples []float64) *packet.Packet {
	t.Helper()
	p := pool.New("v", packet.ElementVoltage, len(samples), 1)
	buf, ok := p.TryAcquire()
	require.True(t, ok)
	buf.Header.SampleCount = len(samples)
	buf.Header.ChannelCount = channels
	buf.Header.FrameID = 1
	copy(buf.Float64Buf(), samples)
	return buf
}

func TestBrokerDeliversMetaUpdateThenDataFrame(t *testing.T) {
	b, _, wsURL := newTestServer(t)
	conn := dial(t, wsURL)
	subscribeTo(t, conn, "filtered")
	time.Sleep(20 * time.Millisecond) // let the subscribe control frame land

	b.Publish("filtered", newVoltPacket(t, 2, []float64{1, 2, 3, 4}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg1, err := conn.ReadMessage()
	require.NoError(t, err)
	var meta metaUpdateFrame
	require.NoError(t, json.Unmarshal(msg1, &meta))
	assert.Equal(t, "meta_update", meta.Type)
	assert.Equal(t, "filtered", meta.Topic)
	assert.Equal(t, 2, meta.ChannelCount)
	assert.Equal(t, "voltage", meta.Element)

	_, msg2, err := conn.ReadMessage()
	require.NoError(t, err)
	headerLen := binary.LittleEndian.Uint32(msg2[0:4])
	var header dataFrameHeader
	require.NoError(t, json.Unmarshal(msg2[4:4+headerLen], &header))
	assert.Equal(t, "filtered", header.Topic)
	assert.Equal(t, uint64(1), header.FrameID)
	assert.Equal(t, 4, header.ElementCount)

	samplesBytes := msg2[4+headerLen:]
	require.Len(t, samplesBytes, 4*8)
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b, _, wsURL := newTestServer(t)
	conn := dial(t, wsURL)
	subscribeTo(t, conn, "filtered")
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, conn.WriteJSON(controlFrame{Action: "unsubscribe", Topics: []string{"filtered"}}))
	time.Sleep(20 * time.Millisecond)

	b.Publish("filtered", newVoltPacket(t, 1, []float64{1}))
	assert.Equal(t, 0, b.SubscriberCounts()["filtered"])
}

func TestBrokerCloseOnFullPolicyDisconnectsSlowClient(t *testing.T) {
	b := NewBroker(1, events.NewBus(8), nil)
	b.SetTopicPolicy("record_mirror", CloseOnFull)
	srv := httptest.NewServer(http.HandlerFunc(b.HandleWebSocket))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn := dial(t, wsURL)
	subscribeTo(t, conn, "record_mirror")
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 5; i++ {
		b.Publish("record_mirror", newVoltPacket(t, 1, []float64{float64(i)}))
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	sawClose := false
	for i := 0; i < 20; i++ {
		_, _, err := conn.ReadMessage()
		if err != nil {
			sawClose = true
			break
		}
	}
	assert.True(t, sawClose)
}
