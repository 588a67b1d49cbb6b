// Package queue implements the bounded stage-to-stage queues that connect
// pipeline stages: a fixed-capacity channel between one producer and one
// consumer (SPSC) or several producers and one consumer (MPSC), with a
// per-edge overflow policy. No lock-free queue library was prescribed, so
// this is a straightforward channel-backed ring — Go's buffered channels
// already give the single-consumer drain a lock-free fast path, and the
// overflow policies are implemented on top with select/default, matching
// the style of internal/fabric/hub.go's non-blocking spoke bookkeeping.
package queue

import (
	"errors"
	"sync"

	"github.com/elata-eeg/daqd/internal/packet"
)

// Policy is a per-edge overflow policy, configured declaratively in the
// graph document.
type Policy int

const (
	// DropOldest overwrites the oldest queued packet on overflow (viewer).
	DropOldest Policy = iota
	// DropNewest discards the incoming packet on overflow (cheap viewer).
	DropNewest
	// Block suspends the producer until a slot frees (recording).
	Block
	// Error propagates backpressure to the producer as an error (strict).
	Error
)

func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	case Block:
		return "block"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ErrQueueFull is returned by Send under the Error policy when the queue
// has no free slot.
var ErrQueueFull = errors.New("queue: full")

// ErrClosed is returned by Send/Recv once the queue has been closed by its
// owning stage during shutdown.
var ErrClosed = errors.New("queue: closed")

// Queue is a bounded packet channel with one overflow policy. A Queue
// constructed with NewSPSC must have exactly one sender and one receiver;
// NewMPSC allows any number of senders, used only where the graph
// structurally requires fan-in.
type Queue struct {
	ch       chan *packet.Packet
	policy   Policy
	capacity int
	mpsc     bool

	mu         sync.Mutex // guards closed + DropOldest's pop-then-push
	closed     bool
	dropCount  int64
	sendCount  int64
	recvCount  int64
}

// NewSPSC builds a single-producer single-consumer queue of the given
// capacity and overflow policy. This is the default edge type.
func NewSPSC(capacity int, policy Policy) *Queue {
	return &Queue{ch: make(chan *packet.Packet, capacity), policy: policy, capacity: capacity}
}

// NewMPSC builds a multi-producer single-consumer queue. Use only where
// the graph declares genuine fan-in into one input port.
func NewMPSC(capacity int, policy Policy) *Queue {
	return &Queue{ch: make(chan *packet.Packet, capacity), policy: policy, capacity: capacity, mpsc: true}
}

// Capacity returns the configured slot count.
func (q *Queue) Capacity() int { return q.capacity }

// Policy returns the configured overflow policy.
func (q *Queue) Policy() Policy { return q.policy }

// DropCount returns the number of packets dropped (DropOldest/DropNewest)
// since construction. Monotonically non-decreasing.
func (q *Queue) DropCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropCount
}

// Send enqueues a packet, applying the configured overflow policy when the
// queue is full. Send never blocks except under the Block policy.
func (q *Queue) Send(p *packet.Packet) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	switch q.policy {
	case Block:
		q.ch <- p
		q.mu.Lock()
		q.sendCount++
		q.mu.Unlock()
		return nil

	case Error:
		select {
		case q.ch <- p:
			q.mu.Lock()
			q.sendCount++
			q.mu.Unlock()
			return nil
		default:
			return ErrQueueFull
		}

	case DropNewest:
		select {
		case q.ch <- p:
			q.mu.Lock()
			q.sendCount++
			q.mu.Unlock()
			return nil
		default:
			q.mu.Lock()
			q.dropCount++
			q.mu.Unlock()
			p.Release()
			return nil
		}

	case DropOldest:
		q.mu.Lock()
		defer q.mu.Unlock()
		for {
			select {
			case q.ch <- p:
				q.sendCount++
				return nil
			default:
				select {
				case old := <-q.ch:
					q.dropCount++
					old.Release()
				default:
					// Raced with the consumer draining concurrently; retry.
				}
			}
		}

	default:
		return errors.New("queue: unknown policy")
	}
}

// Recv returns the next packet, or (nil, nil) if the queue is currently
// empty (the caller's cooperative-yield cue to try again later), or
// (nil, ErrClosed) once the queue is closed and drained.
func (q *Queue) Recv() (*packet.Packet, error) {
	select {
	case p, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		q.mu.Lock()
		q.recvCount++
		q.mu.Unlock()
		return p, nil
	default:
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed && len(q.ch) == 0 {
			return nil, ErrClosed
		}
		return nil, nil
	}
}

// Close marks the queue closed. The channel itself is never closed, so a
// Block send already waiting on it still completes, and Recv keeps
// returning the packets already queued, reporting ErrClosed only once the
// queue is empty.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
	}
}

// Len reports the number of packets currently queued, for metrics and
// queue-sizing decisions.
func (q *Queue) Len() int { return len(q.ch) }
