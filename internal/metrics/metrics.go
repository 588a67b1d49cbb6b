// Package metrics holds the daemon's Prometheus counters and gauges:
// pool exhaustion, queue drops, frame throughput, and broker client
// counts. Grounded on internal/escrow/metrics.go's Metrics-struct-of-
// vectors-plus-Record-methods shape, built via promauto against a
// caller-supplied registerer.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/elata-eeg/daqd/internal/pool"
)

// Metrics holds every Prometheus metric the daemon exports.
type Metrics struct {
	PoolFree      *prometheus.GaugeVec
	PoolInFlight  *prometheus.GaugeVec
	PoolExhausted *prometheus.CounterVec

	QueueDrops *prometheus.CounterVec

	FramesProcessed *prometheus.CounterVec

	BrokerClients          *prometheus.GaugeVec
	BrokerSlowConsumerDrop *prometheus.CounterVec

	StageRestarts *prometheus.CounterVec

	mu            sync.Mutex
	lastExhausted map[string]int64
}

// NewMetrics builds and registers every metric against reg. Pass
// prometheus.DefaultRegisterer in production (promhttp.Handler serves
// that registry); tests pass a fresh prometheus.NewRegistry() so
// repeated construction across test cases doesn't collide on metric
// names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		lastExhausted: make(map[string]int64),
		PoolFree: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "daqd_pool_free_buffers",
				Help: "Number of buffers currently on a pool's free list.",
			},
			[]string{"pool"},
		),
		PoolInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "daqd_pool_in_flight_buffers",
				Help: "Number of buffers currently leased out of a pool.",
			},
			[]string{"pool"},
		),
		PoolExhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daqd_pool_exhausted_total",
				Help: "Total failed acquire attempts against a pool (try_acquire found it empty).",
			},
			[]string{"pool"},
		),
		QueueDrops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daqd_queue_drops_total",
				Help: "Total packets dropped at a stage queue edge, by overflow policy.",
			},
			[]string{"stage", "port", "policy"},
		),
		FramesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daqd_frames_processed_total",
				Help: "Total packets a stage has produced.",
			},
			[]string{"stage"},
		),
		BrokerClients: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "daqd_broker_clients",
				Help: "Current subscriber count per broker topic.",
			},
			[]string{"topic"},
		),
		BrokerSlowConsumerDrop: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daqd_broker_slow_consumer_disconnects_total",
				Help: "Total clients disconnected for failing to keep up with a CloseOnFull topic.",
			},
			[]string{"topic"},
		),
		StageRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daqd_stage_restarts_total",
				Help: "Total times a stage was rebuilt after a fatal error or reconfigure.",
			},
			[]string{"stage"},
		),
	}
}

// RecordPoolStats copies one pool's Stats snapshot into the free/
// in-flight gauges for name, and advances the exhausted counter by the
// delta since the last poll. pool.Stats.Exhausted is the pool's own
// running total, not a per-call increment, and prometheus.Counter has
// no Set; tracking the last-seen total here is what lets repeated polls
// of the same pool avoid double-counting.
func (m *Metrics) RecordPoolStats(name string, stats pool.Stats) {
	m.PoolFree.WithLabelValues(name).Set(float64(stats.Free))
	m.PoolInFlight.WithLabelValues(name).Set(float64(stats.InFlight))

	m.mu.Lock()
	delta := stats.Exhausted - m.lastExhausted[name]
	m.lastExhausted[name] = stats.Exhausted
	m.mu.Unlock()

	if delta > 0 {
		m.PoolExhausted.WithLabelValues(name).Add(float64(delta))
	}
}

// PollPools records every pool's current stats, for a ticker-driven
// collection loop in cmd/daqd.
func (m *Metrics) PollPools(mgr *pool.Manager) {
	for name, stats := range mgr.StatsByName() {
		m.RecordPoolStats(name, stats)
	}
}

// RecordQueueDrop increments the drop counter for one stage output port
// under the given overflow policy name.
func (m *Metrics) RecordQueueDrop(stage, port, policy string) {
	m.QueueDrops.WithLabelValues(stage, port, policy).Inc()
}

// RecordFrame increments the frames-processed counter for a stage.
func (m *Metrics) RecordFrame(stage string) {
	m.FramesProcessed.WithLabelValues(stage).Inc()
}

// SetBrokerClients records the current subscriber count for a topic.
func (m *Metrics) SetBrokerClients(topic string, count int) {
	m.BrokerClients.WithLabelValues(topic).Set(float64(count))
}

// RecordSlowConsumerDisconnect increments the slow-consumer counter for
// a topic.
func (m *Metrics) RecordSlowConsumerDisconnect(topic string) {
	m.BrokerSlowConsumerDrop.WithLabelValues(topic).Inc()
}

// RecordStageRestart increments the restart counter for a stage.
func (m *Metrics) RecordStageRestart(stage string) {
	m.StageRestarts.WithLabelValues(stage).Inc()
}
