// Package metrics exposes LuminMQ's Prometheus instrumentation. A single
// Metrics value is constructed at startup and threaded explicitly into
// every component that observes something, mirroring how the service
// this one descends from wires its own Metrics struct. The metrics
// themselves are registered on Prometheus's default registry via promauto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge/histogram LuminMQ records.
type Metrics struct {
	framesReadTotal  prometheus.Counter
	framesWriteTotal prometheus.Counter
	frameErrorsTotal *prometheus.CounterVec

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter

	channelQueueDepth   *prometheus.GaugeVec
	messagesEnqueued    *prometheus.CounterVec
	messagesDelivered   *prometheus.CounterVec
	pullEmptyTotal      *prometheus.CounterVec

	processCPUPercent  prometheus.Gauge
	processMemoryBytes prometheus.Gauge
}

// New constructs and registers every metric against the default
// Prometheus registry via promauto.
func New() *Metrics {
	return &Metrics{
		framesReadTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "luminmq_frames_read_total",
			Help: "Total number of frames successfully read from connections.",
		}),
		framesWriteTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "luminmq_frames_write_total",
			Help: "Total number of frames successfully written to connections.",
		}),
		frameErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "luminmq_frame_errors_total",
			Help: "Total number of framing errors by reason.",
		}, []string{"reason"}),

		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "luminmq_connections_active",
			Help: "Number of currently live connections.",
		}),
		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "luminmq_connections_total",
			Help: "Total number of connections accepted since startup.",
		}),

		channelQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "luminmq_channel_queue_depth",
			Help: "Current number of queued messages per (group, topic).",
		}, []string{"group", "topic"}),
		messagesEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "luminmq_messages_enqueued_total",
			Help: "Total number of messages enqueued per (group, topic).",
		}, []string{"group", "topic"}),
		messagesDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "luminmq_messages_delivered_total",
			Help: "Total number of messages delivered per (group, topic, mode).",
		}, []string{"group", "topic", "mode"}),
		pullEmptyTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "luminmq_pull_empty_total",
			Help: "Total number of Pull requests answered with an empty-queue Fail reply.",
		}, []string{"group", "topic"}),

		processCPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "luminmq_process_cpu_percent",
			Help: "Process CPU usage percentage, sampled periodically.",
		}),
		processMemoryBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "luminmq_process_memory_bytes",
			Help: "Process resident memory usage in bytes, sampled periodically.",
		}),
	}
}

// ObserveFrameRead records a successful frame read.
func (m *Metrics) ObserveFrameRead() { m.framesReadTotal.Inc() }

// ObserveFrameWrite records a successful frame write.
func (m *Metrics) ObserveFrameWrite() { m.framesWriteTotal.Inc() }

// ObserveFrameError records a framing failure by reason. The dispatcher
// reports "bad_head", "bad_end", "oversize", "admission_rejected", and
// "io" for every other read or decode failure (including a bad body).
func (m *Metrics) ObserveFrameError(reason string) { m.frameErrorsTotal.WithLabelValues(reason).Inc() }

// SetConnectionsActive sets the live-connection gauge.
func (m *Metrics) SetConnectionsActive(n int) { m.connectionsActive.Set(float64(n)) }

// ObserveConnectionAccepted records a newly accepted connection.
func (m *Metrics) ObserveConnectionAccepted() { m.connectionsTotal.Inc() }

// ObserveEnqueue implements broker.MetricsSink.
func (m *Metrics) ObserveEnqueue(groupID, topic string) {
	m.messagesEnqueued.WithLabelValues(groupID, topic).Inc()
}

// ObserveDelivery implements broker.MetricsSink.
func (m *Metrics) ObserveDelivery(groupID, topic, mode string) {
	m.messagesDelivered.WithLabelValues(groupID, topic, mode).Inc()
}

// ObservePullEmpty implements broker.MetricsSink.
func (m *Metrics) ObservePullEmpty(groupID, topic string) {
	m.pullEmptyTotal.WithLabelValues(groupID, topic).Inc()
}

// SetQueueDepth implements broker.MetricsSink.
func (m *Metrics) SetQueueDepth(groupID, topic string, depth int) {
	m.channelQueueDepth.WithLabelValues(groupID, topic).Set(float64(depth))
}

// SetProcessCPUPercent sets the process CPU usage gauge.
func (m *Metrics) SetProcessCPUPercent(pct float64) { m.processCPUPercent.Set(pct) }

// SetProcessMemoryBytes sets the process resident-memory gauge.
func (m *Metrics) SetProcessMemoryBytes(bytes uint64) { m.processMemoryBytes.Set(float64(bytes)) }

// StartSystemSampler launches a goroutine that samples process CPU and
// memory via gopsutil every interval until stop is closed.
func (m *Metrics) StartSystemSampler(interval time.Duration, stop <-chan struct{}) {
	go func() {
		sampler := newSystemSampler()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				cpu, mem, err := sampler.sample()
				if err != nil {
					continue
				}
				m.SetProcessCPUPercent(cpu)
				m.SetProcessMemoryBytes(mem)
			}
		}
	}()
}
