// Package pool implements a fixed-capacity packet pool: a free list of N
// pre-allocated buffers of one payload shape, acquired with Acquire or
// TryAcquire and returned when the holder calls Release on the packet. Grounded on
// internal/ghostpool/pool_manager.go's channel-as-free-list shape,
// generalized from recyclable containers to recyclable packet buffers.
package pool

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/elata-eeg/daqd/internal/packet"
)

// ErrPoolExhausted is returned by Acquire when the context is done before
// a buffer becomes free. TryAcquire never returns it: it reports an empty
// pool with ok == false.
var ErrPoolExhausted = errors.New("pool: exhausted")

// Pool owns N pre-allocated packet buffers of one shape (element type and
// capacity). It is safe for concurrent Acquire/TryAcquire/release from any
// number of goroutines.
type Pool struct {
	name     string
	element  packet.Element
	capacity int
	depth    int

	free chan *packet.Packet

	// in-flight bookkeeping for the invariant: free-list size + in-flight
	// count == depth. inFlight is informational (metrics), not load-bearing
	// for correctness — correctness comes entirely from the channel's own
	// accounting.
	inFlight  atomic.Int64
	exhausted atomic.Int64 // count of failed acquires, for viewer-pool drop counters
}

// New builds a Pool of depth buffers, each of the given element/capacity
// shape, allocated up front. Allocation happens once here, at graph build
// time; the steady-state hot path never allocates.
func New(name string, element packet.Element, capacity, depth int) *Pool {
	p := &Pool{
		name:     name,
		element:  element,
		capacity: capacity,
		depth:    depth,
		free:     make(chan *packet.Packet, depth),
	}
	for i := 0; i < depth; i++ {
		var buf *packet.Packet
		if element == packet.ElementRawSample {
			buf = packet.NewRaw(capacity, p)
		} else {
			buf = packet.NewFloat64(capacity, element, p)
		}
		p.free <- buf
	}
	return p
}

// Name returns the pool's configured name, as referenced by stage pool
// bindings in the graph configuration.
func (p *Pool) Name() string { return p.name }

// Element returns the payload element type this pool's buffers carry.
func (p *Pool) Element() packet.Element { return p.element }

// Capacity returns the per-buffer sample capacity.
func (p *Pool) Capacity() int { return p.capacity }

// Depth returns the total number of buffers owned by this pool.
func (p *Pool) Depth() int { return p.depth }

// Acquire blocks until a buffer is free or ctx is done. Recording-class
// pools use this: exhaustion there is backpressure, not a dropped frame.
func (p *Pool) Acquire(ctx context.Context) (*packet.Packet, error) {
	select {
	case buf := <-p.free:
		p.inFlight.Add(1)
		return buf, nil
	case <-ctx.Done():
		p.exhausted.Add(1)
		return nil, ErrPoolExhausted
	}
}

// TryAcquire returns immediately: a buffer if one was free, or ok=false if
// not. Never panics, never blocks. Viewer-class pools use this: failure
// means dropping the frame and incrementing the overrun counter.
func (p *Pool) TryAcquire() (buf *packet.Packet, ok bool) {
	select {
	case buf := <-p.free:
		p.inFlight.Add(1)
		return buf, true
	default:
		p.exhausted.Add(1)
		return nil, false
	}
}

// release implements packet.Returner. It is called exactly once per
// acquired buffer, by whichever stage holds the final reference when the
// lease drops (the queue handoff model means ownership, and therefore the
// obligation to release, transfers with a move — see internal/queue).
func (p *Pool) release(buf *packet.Packet) {
	p.inFlight.Add(-1)
	p.free <- buf
}

// Stats reports the pool's free/in-flight/exhausted counts for metrics and
// the invariant `in_flight + free == depth`.
type Stats struct {
	Name      string
	Free      int
	InFlight  int64
	Exhausted int64
	Depth     int
}

func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Free:      len(p.free),
		InFlight:  p.inFlight.Load(),
		Exhausted: p.exhausted.Load(),
		Depth:     p.depth,
	}
}

// ExhaustedCount returns the running count of failed acquires, the
// pool-exhaustion overrun counter surfaced in metrics.
func (p *Pool) ExhaustedCount() int64 { return p.exhausted.Load() }
