// Package events implements the fatal-error/SSE event channel: a small
// in-process pub/sub bus that the executor publishes to on panic or
// fatal error, and that the HTTP layer drains to forward as server-sent
// events. Grounded on internal/events/bus.go's CloudEvent envelope and
// channel-of-channels fan-out, generalized from a generic CloudEvents
// bus to a fixed, domain-specific set of event kinds.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the SSE event kinds the daemon emits.
type Kind string

const (
	KindSourceReady       Kind = "SourceReady"
	KindPipelineFailed    Kind = "PipelineFailed"
	KindStageRestarted    Kind = "StageRestarted"
	KindParameterChanged  Kind = "ParameterChanged"
	KindClientConnected   Kind = "ClientConnected"
	KindClientDisconnected Kind = "ClientDisconnected"
)

// ErrorKind classifies the cause of a PipelineFailed payload.
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindHardware       ErrorKind = "hardware"
	ErrorKindResource       ErrorKind = "resource_exhaustion"
	ErrorKindBackpressure   ErrorKind = "backpressure"
	ErrorKindProtocol       ErrorKind = "protocol"
	ErrorKindSlowConsumer   ErrorKind = "slow_consumer"
	ErrorKindPanic          ErrorKind = "panic"
)

// Event is the envelope delivered to subscribers and rendered as one SSE
// frame: `event: <kind>\ndata: <json>\nid: <id>\n\n`.
type Event struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"data"`
}

// PipelineFailedPayload is the data carried by a PipelineFailed event.
type PipelineFailedPayload struct {
	StageID   string    `json:"stage_id"`
	ErrorKind ErrorKind `json:"error_kind"`
	Detail    string    `json:"detail"`
	FrameID   *uint64   `json:"frame_id,omitempty"`
}

// SSEFormat renders the event in server-sent-events wire format.
func (e *Event) SSEFormat() ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\nid: %s\n\n", e.Kind, data, e.ID)), nil
}

// Bus is an in-process pub/sub fan-out for events, mirroring the shape of
// the teacher's EventBus but specialized to the fixed set of Kinds above.
type Bus struct {
	mu   sync.RWMutex
	subs []chan *Event

	bufferSize int
}

// NewBus creates an event bus whose subscriber channels buffer up to
// bufferSize pending events each.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe returns a channel that receives every event published after
// this call. The caller must eventually call Unsubscribe.
func (b *Bus) Subscribe() chan *Event {
	ch := make(chan *Event, b.bufferSize)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (b *Bus) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	filtered := b.subs[:0]
	for _, s := range b.subs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	b.subs = filtered
	close(ch)
}

// Publish fans event out to every current subscriber. A slow subscriber
// never blocks publication: Publish uses a non-blocking send and drops the
// event for that one subscriber if its buffer is full (control-plane
// events are low rate, so this should never trigger under normal load).
func (b *Bus) Publish(kind Kind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = json.RawMessage(`{}`)
	}
	ev := &Event{ID: uuid.NewString(), Kind: kind, Time: time.Now(), Payload: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// PublishPipelineFailed is a convenience wrapper for the most important
// fatal-error path: executor panic containment.
func (b *Bus) PublishPipelineFailed(stageID string, kind ErrorKind, detail string, frameID *uint64) {
	b.Publish(KindPipelineFailed, PipelineFailedPayload{
		StageID:   stageID,
		ErrorKind: kind,
		Detail:    detail,
		FrameID:   frameID,
	})
}
