package broker

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/elata-eeg/daqd/internal/packet"
)

// controlFrame is the client-to-server JSON message that registers or
// drops subscription interest: {"action":"subscribe"|"unsubscribe","topics":[...]}.
type controlFrame struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// metaUpdateFrame is the JSON text frame sent once per topic and whenever
// that topic's meta_revision changes. A client must hold the most recent
// one for a topic before it can interpret that topic's binary data frames.
type metaUpdateFrame struct {
	Type          string   `json:"type"`
	Topic         string   `json:"topic"`
	SampleRateHz  float64  `json:"sample_rate_hz"`
	ChannelCount  int      `json:"channel_count"`
	ChannelLayout []string `json:"channel_layout"`
	Element       string   `json:"element"`
	MetaRevision  uint64   `json:"meta_revision"`
}

// dataFrameHeader is the JSON header prefixing every binary data frame.
type dataFrameHeader struct {
	Topic        string `json:"topic"`
	FrameID      uint64 `json:"frame_id"`
	TimestampNs  int64  `json:"timestamp_ns"`
	ElementCount int    `json:"element_count"`
	MetaRevision uint64 `json:"meta_revision"`
}

// encodeDataFrame lays out one binary data frame: a 4-byte little-endian
// header length, the JSON header, then the packet's raw sample bytes in
// native little-endian encoding of the packet's element type. revision
// is the topic's own meta_revision counter, not the packet's internal
// one — topics tie their revision to broker-observed shape changes.
func encodeDataFrame(topic string, revision uint64, p *packet.Packet) ([]byte, error) {
	header := dataFrameHeader{
		Topic:        topic,
		FrameID:      p.Header.FrameID,
		TimestampNs:  p.Header.TimestampNs,
		ElementCount: p.Header.SampleCount,
		MetaRevision: revision,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("broker: marshal data header: %w", err)
	}

	payload := encodePayload(p)

	buf := make([]byte, 4+len(headerJSON)+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(headerJSON)))
	copy(buf[4:], headerJSON)
	copy(buf[4+len(headerJSON):], payload)
	return buf, nil
}

// encodePayload serializes a packet's active samples to little-endian
// bytes: 4-byte int32 codes for a raw packet, 8-byte float64 otherwise.
func encodePayload(p *packet.Packet) []byte {
	if p.Element == packet.ElementRawSample {
		samples := p.Raw()
		buf := make([]byte, 4*len(samples))
		for i, v := range samples {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		}
		return buf
	}
	samples := p.Float64()
	buf := make([]byte, 8*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func channelLayout(n int) []string {
	layout := make([]string, n)
	for i := range layout {
		layout[i] = fmt.Sprintf("ch%d", i)
	}
	return layout
}
