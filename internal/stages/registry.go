package stages

import (
	"fmt"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/executor"
	"github.com/elata-eeg/daqd/internal/graph"
	"github.com/elata-eeg/daqd/internal/pool"
	"github.com/elata-eeg/daqd/internal/sensor"
)

// SensorFactory builds the hardware-facing sensor.Driver a sensor-typed
// node needs. The concrete ADC/GPIO backend (mock or Linux spidev/
// gpio-cdev) is resolved outside this package, since only the daemon
// entrypoint knows which one the deployment target wants.
type SensorFactory func(n *graph.Node, outPool *pool.Pool) (*sensor.Driver, error)

// NewFactory builds an executor.StageFactory: it resolves each node's
// declared type against the stage library, reading pool bindings and
// parameters from the node's configuration against whichever
// generation's pool.Manager the executor passes in. publisher backs
// every websocket_sink node; sensorFn backs every sensor node; lock is
// the shared RecordingLock every CsvSink marks active and every
// ToVoltage/Filter gates its unsafe parameters against.
func NewFactory(publisher Publisher, sensorFn SensorFactory, lock *control.RecordingLock) executor.StageFactory {
	return func(n *graph.Node, pools *pool.Manager) (executor.Stage, error) {
		switch n.Type {
		case "sensor":
			outPoolName, err := paramString(n.Params, "output_pool")
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", n.ID, err)
			}
			outPool, err := pools.Get(outPoolName)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", n.ID, err)
			}
			driver, err := sensorFn(n, outPool)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", n.ID, err)
			}
			bridgeDepth := paramIntDefault(n.Params, "bridge_depth", 4)
			return NewSensorSource(n.ID, driver, bridgeDepth), nil

		case "to_voltage":
			outPool, err := resolveOutputPool(pools, n)
			if err != nil {
				return nil, err
			}
			return NewToVoltage(n.ID, outPool, n.Params, lock)

		case "filter":
			channels, err := paramInt(n.Params, "channels")
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", n.ID, err)
			}
			return NewFilter(n.ID, channels, n.Params, lock)

		case "fft":
			channels, err := paramInt(n.Params, "channels")
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", n.ID, err)
			}
			outPool, err := resolveOutputPool(pools, n)
			if err != nil {
				return nil, err
			}
			return NewFFT(n.ID, channels, outPool, n.Params)

		case "csv_sink":
			channels, err := paramInt(n.Params, "channels")
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", n.ID, err)
			}
			return NewCsvSink(n.ID, channels, n.Params, lock)

		case "websocket_sink":
			topic, err := paramString(n.Params, "topic")
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", n.ID, err)
			}
			return NewWebSocketSink(n.ID, topic, publisher), nil

		default:
			return nil, fmt.Errorf("stage %s: unknown stage type %q", n.ID, n.Type)
		}
	}
}

func resolveOutputPool(pools *pool.Manager, n *graph.Node) (*pool.Pool, error) {
	name, err := paramString(n.Params, "output_pool")
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", n.ID, err)
	}
	p, err := pools.Get(name)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", n.ID, err)
	}
	return p, nil
}
