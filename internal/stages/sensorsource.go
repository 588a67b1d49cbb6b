package stages

import (
	"context"
	"fmt"
	"sync"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/packet"
	"github.com/elata-eeg/daqd/internal/sensor"
)

// SensorSource bridges the sensor package's blocking, synchronous
// acquisition loop into the cooperative Step model: Driver.Acquire runs
// on its own goroutine from the first Step call onward, emitting
// BridgeMsg values on a small buffered channel that Step drains
// non-blockingly, one packet per iteration. A driver hardware fault
// (BridgeMsg.Err set) is returned as a Step error so the executor's
// panic/fault containment tears down just this stage's downstream
// queues rather than the whole process.
type SensorSource struct {
	base

	driver *sensor.Driver
	bridge chan sensor.BridgeMsg

	start sync.Once
}

// NewSensorSource builds a source stage around an already-configured
// sensor.Driver. bridgeDepth sizes the channel between the driver's
// blocking loop and Step; a small depth (2-4) is enough since Step is
// called far more often than the driver produces a full batch.
func NewSensorSource(id string, driver *sensor.Driver, bridgeDepth int) *SensorSource {
	if bridgeDepth <= 0 {
		bridgeDepth = 4
	}
	return &SensorSource{
		base:   newBase(id),
		driver: driver,
		bridge: make(chan sensor.BridgeMsg, bridgeDepth),
	}
}

// OptionalInputPorts reports no required ports: SensorSource is a graph
// source, never gated on an input queue.
func (s *SensorSource) OptionalInputPorts() map[string]bool { return nil }

func (s *SensorSource) Step(ctx context.Context, ins map[string]*packet.Packet) (map[string]*packet.Packet, error) {
	s.start.Do(func() {
		go func() {
			_ = s.driver.Acquire(ctx, s.bridge)
		}()
	})

	select {
	case msg := <-s.bridge:
		if msg.Err != nil {
			return nil, fmt.Errorf("sensor %s: %w", s.id, msg.Err)
		}
		if msg.Data == nil {
			return nil, nil
		}
		return map[string]*packet.Packet{"out": msg.Data}, nil
	default:
		return nil, nil
	}
}

func (s *SensorSource) HandleCommand(cmd control.Command) error {
	if handled, err := s.handleLifecycle(cmd); handled {
		return err
	}
	return fmt.Errorf("sensor %s: unknown parameter %q", s.id, cmd.Key)
}
