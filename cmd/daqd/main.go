// Command daqd is the acquisition daemon: it loads its own operating
// config and a pipeline graph document, wires sensor, transform, and
// sink stages into a running executor.Supervisor, and serves the
// control/state/events/metrics HTTP surface and the WebSocket data
// plane alongside it.
//
// Grounded on cmd/server/main.go's flat sequential wiring (construct
// every component, start listeners, block) and cmd/api/main.go's
// signal.Notify + goroutine + server.Shutdown(ctx) graceful-shutdown
// idiom, adapted to the daemon's own exit-code table.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elata-eeg/daqd/internal/broker"
	"github.com/elata-eeg/daqd/internal/config"
	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/events"
	"github.com/elata-eeg/daqd/internal/executor"
	"github.com/elata-eeg/daqd/internal/graph"
	"github.com/elata-eeg/daqd/internal/httpapi"
	"github.com/elata-eeg/daqd/internal/metrics"
	"github.com/elata-eeg/daqd/internal/pool"
	"github.com/elata-eeg/daqd/internal/runlog"
	"github.com/elata-eeg/daqd/internal/sensor"
	"github.com/elata-eeg/daqd/internal/sensor/hw"
	"github.com/elata-eeg/daqd/internal/stages"
	"github.com/elata-eeg/daqd/internal/statecache"
)

// Exit codes per the environment/config discovery contract.
const (
	exitNormal            = 0
	exitConfigError       = 1
	exitFatalPipelineErr  = 2
	exitHardwareInitError = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Get()
	if err != nil {
		slog.Error("configuration error", "error", err)
		return exitConfigError
	}

	graphCfg, err := graph.Load(cfg.GraphPath)
	if err != nil {
		slog.Error("failed to load pipeline graph", "path", cfg.GraphPath, "error", err)
		return exitConfigError
	}
	if graphCfg.RunID == "" {
		graphCfg.RunID = uuid.NewString()
	}

	bus := events.NewBus(64)
	b := broker.NewBroker(cfg.Broker.QueueDepth, bus, nil)

	sensorFn, err := newSensorFactory()
	if err != nil {
		slog.Error("sensor backend initialization failed", "error", err)
		return exitConfigError
	}
	recordingLock := &control.RecordingLock{}
	factory := stages.NewFactory(b, sensorFn, recordingLock)
	supervisor := executor.NewSupervisor(factory, 8, bus)

	recorder, err := runlog.Open(cfg.Runlog.DSN)
	if err != nil {
		slog.Error("run ledger unavailable", "error", err)
		return exitConfigError
	}
	defer recorder.Close()

	cache, err := newStateCache(cfg.Statecache)
	if err != nil {
		slog.Error("state cache unavailable", "error", err)
		return exitConfigError
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	apiServer := httpapi.NewServer(supervisor, b, bus, cache, slog.Default())
	controlHTTP := &http.Server{Addr: cfg.HTTP.Addr, Handler: apiServer.Router()}

	brokerMux := http.NewServeMux()
	brokerMux.HandleFunc("/ws", b.HandleWebSocket)
	dataHTTP := &http.Server{Addr: cfg.Broker.Addr, Handler: brokerMux}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	errCh, err := supervisor.Start(rootCtx, graphCfg)
	if err != nil {
		slog.Error("pipeline failed to start", "error", err)
		return exitFatalPipelineErr
	}

	if err := recorder.StartRun(rootCtx, graphCfg.RunID, graphCfg.Version, time.Now()); err != nil {
		slog.Warn("run ledger: start run failed", "run_id", graphCfg.RunID, "error", err)
	}
	bus.Publish(events.KindSourceReady, map[string]string{"run_id": graphCfg.RunID})

	go pollMetrics(rootCtx, m, supervisor, b)

	go func() {
		slog.Info("httpapi listening", "addr", cfg.HTTP.Addr)
		if err := controlHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("control server stopped unexpectedly", "error", err)
		}
	}()
	go func() {
		slog.Info("broker listening", "addr", cfg.Broker.Addr)
		if err := dataHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("broker server stopped unexpectedly", "error", err)
		}
	}()

	exitCode := make(chan int, 1)
	go watchPipeline(rootCtx, errCh, bus, exitCode)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var code int
	var reason runlog.StopReason

	select {
	case <-sigChan:
		slog.Info("received shutdown signal, stopping gracefully")
		code, reason = exitNormal, runlog.StopSignal
	case code = <-exitCode:
		slog.Error("pipeline stopped unexpectedly", "exit_code", code)
		reason = runlog.StopFatal
	}

	shutdownGrace := time.Duration(cfg.ShutdownGraceSec) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	supervisor.Stop()
	cancelRoot()

	if err := recorder.StopRun(shutdownCtx, graphCfg.RunID, time.Now(), reason); err != nil {
		slog.Warn("run ledger: stop run failed", "run_id", graphCfg.RunID, "error", err)
	}

	if err := controlHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("control server shutdown error", "error", err)
	}
	if err := dataHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("broker server shutdown error", "error", err)
	}

	b.Shutdown()
	slog.Info("daqd stopped", "exit_code", code)
	return code
}

func pollMetrics(ctx context.Context, m *metrics.Metrics, s *executor.Supervisor, b *broker.Broker) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g := s.CurrentGraph(); g != nil {
				m.PollPools(g.Pools)
			}
			for topic, n := range b.SubscriberCounts() {
				m.SetBrokerClients(topic, n)
			}
		}
	}
}

// watchPipeline drains the supervisor's error channel and the event bus
// and reports the first fatal condition as an exit code: a
// PipelineFailed event classified as a hardware fault takes the
// dedicated hardware exit code so an init script can tell "bad graph"
// from "bad wiring" apart; every other stage error is a generic fatal
// pipeline error.
func watchPipeline(ctx context.Context, errCh <-chan error, bus *events.Bus, exitCode chan<- int) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.Kind != events.KindPipelineFailed {
				continue
			}
			var payload events.PipelineFailedPayload
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				continue
			}
			if payload.ErrorKind == events.ErrorKindHardware {
				select {
				case exitCode <- exitHardwareInitError:
				default:
				}
				return
			}
		case err, ok := <-errCh:
			if !ok {
				return
			}
			if err != nil {
				select {
				case exitCode <- exitFatalPipelineErr:
				default:
				}
				return
			}
		}
	}
}

// newStateCache dials Redis when an address is configured, otherwise
// falls back to NoOp so the state endpoint always computes live.
func newStateCache(cfg config.StatecacheConfig) (httpapi.StateCache, error) {
	if cfg.Addr == "" {
		return statecache.NoOp{}, nil
	}
	adapter, err := statecache.Dial(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}
	return statecache.New(adapter), nil
}

// Sensor backend selection: mock is the default so the daemon runs
// standalone without any spidev/gpio-cdev device nodes present; hw
// drives real SPI/GPIO hardware through internal/sensor/hw.
const (
	backendMock = "mock"
	backendHW   = "hw"
)

func newSensorFactory() (stages.SensorFactory, error) {
	backend := os.Getenv("DAQD_SENSOR_BACKEND")
	if backend == "" {
		backend = backendMock
	}

	switch backend {
	case backendMock:
		return mockSensorFactory, nil
	case backendHW:
		return hwSensorFactory, nil
	default:
		return nil, fmt.Errorf("unknown DAQD_SENSOR_BACKEND %q (want %q or %q)", backend, backendMock, backendHW)
	}
}

func channelConfigFromParams(params map[string]interface{}) sensor.ChannelConfig {
	return sensor.ChannelConfig{
		SampleRateHz:  paramIntDefault(params, "sample_rate_hz", 256),
		ChannelCount:  paramIntDefault(params, "channel_count", 8),
		Gain:          paramFloat64Default(params, "gain", 1.0),
		VRefVolts:     paramFloat64Default(params, "vref_volts", 4.5),
		BitsPerSample: paramIntDefault(params, "bits_per_sample", 24),
	}
}

// mockSensorFactory builds a Driver over the synthetic sine+noise
// signal generator, for development and CI where no ADC is attached.
func mockSensorFactory(n *graph.Node, outPool *pool.Pool) (*sensor.Driver, error) {
	cfg := channelConfigFromParams(n.Params)

	signalHz := paramFloat64Default(n.Params, "signal_hz", 10.0)
	signalUV := paramFloat64Default(n.Params, "signal_uv", 50.0)
	noiseHz := paramFloat64Default(n.Params, "noise_hz", 60.0)
	noiseUV := paramFloat64Default(n.Params, "noise_uv", 5.0)
	adc := sensor.NewMockADC(signalHz, signalUV, noiseHz, noiseUV)

	periodMs := paramIntDefault(n.Params, "period_ms", 1000/intOrOne(cfg.SampleRateHz))
	gpio := sensor.NewMockDataReadyLine(time.Duration(periodMs) * time.Millisecond)

	opts := driverOptions(n.Params)
	return sensor.New(adc, gpio, outPool, cfg, opts...), nil
}

// hwSensorFactory builds a Driver over the Linux spidev/gpio-cdev
// backend, for a deployment target with a real ADC attached.
func hwSensorFactory(n *graph.Node, outPool *pool.Pool) (*sensor.Driver, error) {
	cfg := channelConfigFromParams(n.Params)

	spiPath, err := paramStringRequired(n.Params, "spi_path")
	if err != nil {
		return nil, err
	}
	speedHz := paramIntDefault(n.Params, "spi_speed_hz", 1_000_000)
	mode := paramIntDefault(n.Params, "spi_mode", 1)
	bitsPerWord := paramIntDefault(n.Params, "spi_bits_per_word", 8)

	spi, err := hw.OpenSPI(spiPath, uint32(speedHz), uint8(mode), uint8(bitsPerWord))
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", n.ID, err)
	}
	adc := hw.NewSPIADC(spi)

	gpioChip, err := paramStringRequired(n.Params, "gpio_chip")
	if err != nil {
		return nil, err
	}
	gpioOffset := paramIntDefault(n.Params, "gpio_offset", 0)
	gpio, err := hw.OpenDataReadyLine(gpioChip, uint32(gpioOffset))
	if err != nil {
		spi.Close()
		return nil, fmt.Errorf("sensor %s: %w", n.ID, err)
	}

	opts := driverOptions(n.Params)
	return sensor.New(adc, gpio, outPool, cfg, opts...), nil
}

func driverOptions(params map[string]interface{}) []sensor.Option {
	var opts []sensor.Option
	if batch := paramIntDefault(params, "batch_size", 0); batch > 0 {
		opts = append(opts, sensor.WithBatchSize(batch))
	}
	if timeoutMs := paramIntDefault(params, "interrupt_timeout_ms", 0); timeoutMs > 0 {
		opts = append(opts, sensor.WithInterruptTimeout(time.Duration(timeoutMs)*time.Millisecond))
	}
	return opts
}

func intOrOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// paramIntDefault, paramFloat64Default, and paramStringRequired mirror
// internal/stages/params.go's parameter-reading helpers; duplicated here
// in package main since that package's helpers are unexported and this
// factory lives outside internal/stages by design (it alone knows which
// hardware backend to pick).
func paramIntDefault(params map[string]interface{}, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

func paramFloat64Default(params map[string]interface{}, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func paramStringRequired(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q: want string, got %T", key, v)
	}
	return s, nil
}
