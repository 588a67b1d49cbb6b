package stages

import (
	"context"
	"fmt"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/packet"
)

// Publisher is the narrow interface WebSocketSink needs from the
// broker: hand off a packet for a named topic. Publish takes ownership
// of p (the packet's single-owner invariant carries across this
// boundary, same as a queue Send) and is responsible for releasing it
// once it has been serialized to subscribers or dropped.
type Publisher interface {
	Publish(topic string, p *packet.Packet)
}

// WebSocketSink forwards every packet it receives to the broker under a
// fixed topic identifier, without itself holding a socket. There is no
// queue between this stage and the broker: Publish runs on the stage's
// goroutine, encodes the packet and offers it to each subscriber's
// bounded outbound queue; only the socket writes run on the broker's
// per-client goroutines.
type WebSocketSink struct {
	base

	topic     string
	publisher Publisher
}

// NewWebSocketSink builds a sink that forwards to publisher under topic.
func NewWebSocketSink(id, topic string, publisher Publisher) *WebSocketSink {
	return &WebSocketSink{base: newBase(id), topic: topic, publisher: publisher}
}

func (s *WebSocketSink) Step(ctx context.Context, ins map[string]*packet.Packet) (map[string]*packet.Packet, error) {
	in := ins["in"]
	if in == nil {
		return nil, nil
	}
	s.publisher.Publish(s.topic, in)
	return nil, nil
}

func (s *WebSocketSink) HandleCommand(cmd control.Command) error {
	if handled, err := s.handleLifecycle(cmd); handled {
		return err
	}
	return fmt.Errorf("websocketsink %s: unknown parameter %q", s.id, cmd.Key)
}
