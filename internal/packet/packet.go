// Package packet defines the typed containers that flow between pipeline
// stages: a fixed-capacity payload buffer plus a small header carrying the
// bookkeeping fields downstream observers rely on for drop detection and
// shape tracking.
package packet

import "fmt"

// Element identifies the payload type a packet carries. Stages bind their
// input/output ports to one Element; a shape-changing stage (FFT,
// downsample) draws its output packets from a pool of a different Element.
type Element int

const (
	// ElementRawSample is a raw integer ADC code, one per sample per channel.
	ElementRawSample Element = iota
	// ElementVoltage is a converted float64 voltage.
	ElementVoltage
	// ElementFiltered is a filtered float64 voltage (same shape as ElementVoltage).
	ElementFiltered
	// ElementPSD is a power-spectral-density bin in µV²/Hz.
	ElementPSD
)

func (e Element) String() string {
	switch e {
	case ElementRawSample:
		return "raw"
	case ElementVoltage:
		return "voltage"
	case ElementFiltered:
		return "filtered"
	case ElementPSD:
		return "psd"
	default:
		return "unknown"
	}
}

// Size returns the byte width of one Element value on the wire.
func (e Element) Size() int {
	switch e {
	case ElementRawSample:
		return 4 // int32
	default:
		return 8 // float64
	}
}

// Header carries the bookkeeping fields that travel with every packet,
// independent of payload type.
type Header struct {
	// FrameID is a stream-scoped monotonic counter, strictly increasing by
	// one per produced packet. A gap indicates a dropped frame.
	FrameID uint64
	// TimestampNs is the originating nanosecond timestamp (monotonic clock).
	TimestampNs int64
	// SampleCount is the number of active samples in this packet across
	// all channels (frames × ChannelCount for time-domain payloads);
	// SampleCount <= capacity always.
	SampleCount int
	// MetaRevision increments only between packets, never within one; it
	// changes when the stream's shape or interpretation changes.
	MetaRevision uint64
	// ChannelCount is the number of channels represented in the payload.
	ChannelCount int
}

// Packet is a reusable, fixed-capacity buffer plus its header. Packets are
// owned exclusively by one stage at a time; handoff through a Queue is a
// move, never a copy (see internal/queue).
type Packet struct {
	Header  Header
	Element Element

	// raw holds int32 samples when Element == ElementRawSample.
	raw []int32
	// f64 holds float64 samples for every other Element.
	f64 []float64

	// capacity is the fixed buffer capacity this packet was allocated with;
	// it never changes for the packet's lifetime.
	capacity int
	// owner identifies the pool this buffer must be returned to on release.
	owner Returner
}

// Returner is implemented by the pool that owns a packet's backing buffer.
// It is an unexported-method interface so only internal/pool can satisfy it.
type Returner interface {
	release(p *Packet)
}

// NewRaw allocates a standalone int32-backed packet of the given capacity.
// Used by internal/pool when building its free list; stages never call
// this directly — they acquire from a pool instead.
func NewRaw(capacity int, owner Returner) *Packet {
	return &Packet{raw: make([]int32, capacity), capacity: capacity, Element: ElementRawSample, owner: owner}
}

// NewFloat64 allocates a standalone float64-backed packet of the given
// capacity and element type.
func NewFloat64(capacity int, element Element, owner Returner) *Packet {
	if element == ElementRawSample {
		panic("packet: NewFloat64 called with ElementRawSample")
	}
	return &Packet{f64: make([]float64, capacity), capacity: capacity, Element: element, owner: owner}
}

// Capacity returns the fixed buffer capacity.
func (p *Packet) Capacity() int { return p.capacity }

// Raw returns the active int32 slice, valid only when Element == ElementRawSample.
func (p *Packet) Raw() []int32 {
	if p.Element != ElementRawSample {
		panic("packet: Raw() on non-raw packet")
	}
	return p.raw[:p.Header.SampleCount]
}

// Float64 returns the active float64 slice, valid for any non-raw element.
func (p *Packet) Float64() []float64 {
	if p.Element == ElementRawSample {
		panic("packet: Float64() on raw packet")
	}
	return p.f64[:p.Header.SampleCount]
}

// RawBuf returns the full backing int32 buffer (capacity-sized, not
// length-limited), for producers writing a fresh frame before setting
// Header.SampleCount.
func (p *Packet) RawBuf() []int32 { return p.raw }

// Float64Buf returns the full backing float64 buffer.
func (p *Packet) Float64Buf() []float64 { return p.f64 }

// Release returns the packet's buffer to its owning pool. Callers release
// exactly once per acquire; queue handoff transfers ownership rather than
// sharing it, so exactly one stage holds a given buffer at a time.
func (p *Packet) Release() {
	if p.owner != nil {
		p.owner.release(p)
	}
}

// CloneShapeInto copies header fields that a same-shape transform must
// preserve (frame id, timestamp, meta revision, channel count) onto dst,
// leaving dst's SampleCount to be set by the caller once it knows the
// output length.
func (h Header) CloneShapeInto(dst *Header) {
	dst.FrameID = h.FrameID
	dst.TimestampNs = h.TimestampNs
	dst.MetaRevision = h.MetaRevision
	dst.ChannelCount = h.ChannelCount
}

func (h Header) String() string {
	return fmt.Sprintf("frame=%d ts=%d samples=%d rev=%d ch=%d", h.FrameID, h.TimestampNs, h.SampleCount, h.MetaRevision, h.ChannelCount)
}
