package broker

import (
	"sync"

	"github.com/elata-eeg/daqd/internal/packet"
)

// Policy selects how a topic behaves when a subscriber's outbound queue
// is full: viewer topics tolerate loss (DropOldest), a recording-mirror
// topic must never silently lose a frame and instead disconnects the
// slow client (CloseOnFull).
type Policy int

const (
	DropOldest Policy = iota
	CloseOnFull
)

// shape is the subset of a packet's header that defines a topic's wire
// metadata; a change in any field requires a fresh meta_update before
// the next data frame.
type shape struct {
	channelCount int
	element      packet.Element
	sampleRateHz float64
}

// topicState tracks one topic's subscriber set, its current wire shape,
// and the meta_revision clients must match against. Grounded on
// internal/fabric/hub.go's read-mostly RWMutex subscriber map, narrowed
// from a routing table to a single flat subscriber set per topic.
type topicState struct {
	mu sync.RWMutex

	policy   Policy
	revision uint64
	shape    shape
	shapeSet bool

	clients map[*Client]bool
}

func newTopicState() *topicState {
	return &topicState{clients: make(map[*Client]bool)}
}

func (t *topicState) addClient(c *Client) {
	t.mu.Lock()
	t.clients[c] = true
	t.mu.Unlock()
}

func (t *topicState) removeClient(c *Client) {
	t.mu.Lock()
	delete(t.clients, c)
	t.mu.Unlock()
}

// snapshotClients returns the current subscriber set, safe to range over
// without holding the topic lock for the duration of delivery (the hot
// path internal/fabric/hub.go's Route also favors: take the read lock
// just long enough to copy the set, then let dispatch run lock-free).
func (t *topicState) snapshotClients() []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Client, 0, len(t.clients))
	for c := range t.clients {
		out = append(out, c)
	}
	return out
}

// observe compares the packet's shape to the last seen one for this
// topic; if it differs (including "never seen"), the revision advances
// and observe reports that a fresh meta_update must precede this frame.
func (t *topicState) observe(p *packet.Packet, sampleRateHz float64) (rev uint64, needsMeta bool) {
	s := shape{channelCount: p.Header.ChannelCount, element: p.Element, sampleRateHz: sampleRateHz}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.shapeSet || s != t.shape {
		t.revision++
		t.shape = s
		t.shapeSet = true
		needsMeta = true
	}
	return t.revision, needsMeta
}

func (t *topicState) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}
