// Package broker implements the WebSocket fan-out that streams typed
// packets to subscribed clients: a single upgrade endpoint, JSON
// subscribe/unsubscribe control frames, and a binary data-frame wire
// format with its own per-topic revision-tagged metadata. Grounded on
// internal/fabric/websocket.go's ping/pong keepalive and origin-check
// upgrade path, internal/websocket/dag_streamer.go's register/
// unregister hub-loop shape, and internal/fabric/hub.go's read-mostly
// RWMutex subscriber map.
package broker

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/elata-eeg/daqd/internal/events"
	"github.com/elata-eeg/daqd/internal/packet"
)

// DefaultQueueDepth is the per-client outbound queue capacity the spec
// calls out as typical.
const DefaultQueueDepth = 64

// Broker is the WebSocket fan-out: it implements stages.Publisher so a
// WebSocketSink stage can hand it packets without importing this
// package, and it serves the HTTP upgrade endpoint that accepts viewer
// connections.
type Broker struct {
	bus        *events.Bus
	queueDepth int
	upgrader   websocket.Upgrader

	mu     sync.RWMutex
	topics map[string]*topicState

	sampleRateHz map[string]float64
}

// NewBroker builds a Broker with the given per-client outbound queue
// depth (DefaultQueueDepth if <= 0), publishing ClientConnected/
// ClientDisconnected events on bus.
func NewBroker(queueDepth int, bus *events.Bus, checkOrigin func(*http.Request) bool) *Broker {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Broker{
		bus:          bus,
		queueDepth:   queueDepth,
		topics:       make(map[string]*topicState),
		sampleRateHz: make(map[string]float64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// SetTopicPolicy configures the delivery policy for a topic before any
// client subscribes or any packet is published on it; unconfigured
// topics default to DropOldest, the viewer-topic behavior.
func (b *Broker) SetTopicPolicy(topic string, policy Policy) {
	b.topicFor(topic).policy = policy
}

// SetSampleRate records the nominal sample rate a topic's meta_update
// frames should advertise; packets themselves carry no rate field.
func (b *Broker) SetSampleRate(topic string, hz float64) {
	b.mu.Lock()
	b.sampleRateHz[topic] = hz
	b.mu.Unlock()
}

func (b *Broker) topicFor(topic string) *topicState {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		t = newTopicState()
		b.topics[topic] = t
	}
	return t
}

func (b *Broker) sampleRateFor(topic string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sampleRateHz[topic]
}

// Publish implements stages.Publisher: it takes ownership of p, encodes
// it once, and fans it out to every client currently subscribed to
// topic, applying that topic's overflow policy per client. p is always
// released exactly once, whether or not any client is subscribed.
func (b *Broker) Publish(topic string, p *packet.Packet) {
	defer p.Release()

	t := b.topicFor(topic)
	rev, needsMeta := t.observe(p, b.sampleRateFor(topic))

	clients := t.snapshotClients()
	if len(clients) == 0 {
		return
	}

	if needsMeta {
		meta := b.encodeMetaUpdate(topic, p, rev)
		for _, c := range clients {
			c.enqueue(DropOldest, meta) // metadata frames are never worth dropping the connection over
		}
	}

	frame, err := encodeDataFrame(topic, rev, p)
	if err != nil {
		return
	}
	for _, c := range clients {
		c.enqueue(t.policy, frame)
	}
}

func (b *Broker) encodeMetaUpdate(topic string, p *packet.Packet, rev uint64) []byte {
	m := metaUpdateFrame{
		Type:          "meta_update",
		Topic:         topic,
		SampleRateHz:  b.sampleRateFor(topic),
		ChannelCount:  p.Header.ChannelCount,
		ChannelLayout: channelLayout(p.Header.ChannelCount),
		Element:       p.Element.String(),
		MetaRevision:  rev,
	}
	data, err := json.Marshal(m)
	if err != nil {
		return []byte(`{"type":"meta_update"}`)
	}
	return data
}

// HandleWebSocket upgrades the request and runs the new client's
// read/write pumps until it disconnects.
func (b *Broker) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(conn, b, b.queueDepth)
	b.bus.Publish(events.KindClientConnected, map[string]string{"remote_addr": r.RemoteAddr})

	go c.writeLoop()
	c.readLoop()
}

func (b *Broker) subscribe(c *Client, topics []string) {
	for _, topic := range topics {
		t := b.topicFor(topic)
		t.addClient(c)
		c.addSubscription(topic)

		t.mu.RLock()
		shapeSet := t.shapeSet
		rev := t.revision
		t.mu.RUnlock()
		if shapeSet {
			// A late subscriber must see a meta_update before any data
			// frame, even if the topic's revision hasn't changed since
			// an earlier subscriber joined.
			c.enqueue(DropOldest, b.encodeMetaUpdateForKnownShape(topic, t, rev))
		}
	}
}

func (b *Broker) encodeMetaUpdateForKnownShape(topic string, t *topicState, rev uint64) []byte {
	t.mu.RLock()
	s := t.shape
	t.mu.RUnlock()
	m := metaUpdateFrame{
		Type:          "meta_update",
		Topic:         topic,
		SampleRateHz:  b.sampleRateFor(topic),
		ChannelCount:  s.channelCount,
		ChannelLayout: channelLayout(s.channelCount),
		Element:       s.element.String(),
		MetaRevision:  rev,
	}
	data, err := json.Marshal(m)
	if err != nil {
		return []byte(`{"type":"meta_update"}`)
	}
	return data
}

func (b *Broker) unsubscribe(c *Client, topics []string) {
	for _, topic := range topics {
		b.topicFor(topic).removeClient(c)
		c.removeSubscription(topic)
	}
}

func (b *Broker) unregister(c *Client) {
	for _, topic := range c.subscribedTopics() {
		b.topicFor(topic).removeClient(c)
	}
	b.bus.Publish(events.KindClientDisconnected, map[string]string{})
}

// SubscriberCounts reports the current subscriber count per topic, for
// the state query HTTP endpoint.
func (b *Broker) SubscriberCounts() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(b.topics))
	for name, t := range b.topics {
		out[name] = t.count()
	}
	return out
}

// Shutdown closes every connected client with a normal-close frame, as
// the graceful-shutdown protocol requires of the broker's share of
// teardown.
func (b *Broker) Shutdown() {
	b.mu.RLock()
	topics := make([]*topicState, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.mu.RUnlock()

	seen := make(map[*Client]bool)
	for _, t := range topics {
		for _, c := range t.snapshotClients() {
			if !seen[c] {
				seen[c] = true
				c.close(websocket.CloseNormalClosure, "shutting down")
			}
		}
	}
}
