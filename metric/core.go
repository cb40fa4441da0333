package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the bridge
const Namespace = "mqtt2influxdb"

// Drop reasons used with Metrics.RecordDropped
const (
	DropNoMatch   = "no_match"
	DropDecode    = "decode"
	DropQueueFull = "queue_full"
	DropNoFields  = "no_fields"
)

// Metrics contains the bridge-level metrics shared by every component
type Metrics struct {
	MessagesReceived   *prometheus.CounterVec
	MessagesMapped     *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	FieldsSkipped      *prometheus.CounterVec
	RecordsWritten     *prometheus.CounterVec
	RecordsFailed      *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	SinkWriteDuration  *prometheus.HistogramVec

	TransportConnected  *prometheus.GaugeVec
	TransportReconnects *prometheus.CounterVec
	NATSCircuitBreaker  prometheus.Gauge
}

// NewMetrics creates the bridge metrics, unregistered
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Messages received from a transport",
			},
			[]string{"transport"},
		),

		MessagesMapped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "messages",
				Name:      "mapped_total",
				Help:      "Messages turned into a record",
			},
			[]string{"measurement"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "messages",
				Name:      "dropped_total",
				Help:      "Messages that produced no record",
			},
			[]string{"reason"},
		),

		FieldsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "fields",
				Name:      "skipped_total",
				Help:      "Fields skipped because their value was unsupported",
			},
			[]string{"measurement"},
		),

		RecordsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "records",
				Name:      "written_total",
				Help:      "Records accepted by a sink",
			},
			[]string{"sink"},
		),

		RecordsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "records",
				Name:      "failed_total",
				Help:      "Records a sink failed to write",
			},
			[]string{"sink"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Time from dequeue to all sinks returning",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"measurement"},
		),

		SinkWriteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "sink",
				Name:      "write_duration_seconds",
				Help:      "Duration of a single sink write",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sink"},
		),

		TransportConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Transport connection status (0=disconnected, 1=connected)",
			},
			[]string{"transport"},
		),

		TransportReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Transport reconnections",
			},
			[]string{"transport"},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesReceived,
		m.MessagesMapped,
		m.MessagesDropped,
		m.FieldsSkipped,
		m.RecordsWritten,
		m.RecordsFailed,
		m.ProcessingDuration,
		m.SinkWriteDuration,
		m.TransportConnected,
		m.TransportReconnects,
		m.NATSCircuitBreaker,
	}
}

// All Record methods are no-ops on a nil *Metrics so components can run without a registry.

// RecordReceived counts a message delivered by transport
func (m *Metrics) RecordReceived(transport string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(transport).Inc()
}

// RecordMapped counts a message that produced a record
func (m *Metrics) RecordMapped(measurement string) {
	if m == nil {
		return
	}
	m.MessagesMapped.WithLabelValues(measurement).Inc()
}

// RecordDropped counts a message that produced no record
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordFieldsSkipped counts fields dropped from a record
func (m *Metrics) RecordFieldsSkipped(measurement string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.FieldsSkipped.WithLabelValues(measurement).Add(float64(n))
}

// RecordSinkWrite records the outcome and duration of one sink write
func (m *Metrics) RecordSinkWrite(sink string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RecordsFailed.WithLabelValues(sink).Inc()
	} else {
		m.RecordsWritten.WithLabelValues(sink).Inc()
	}
	m.SinkWriteDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordProcessingDuration records end-to-end handling time for a record
func (m *Metrics) RecordProcessingDuration(measurement string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProcessingDuration.WithLabelValues(measurement).Observe(duration.Seconds())
}

// RecordTransportStatus updates the connection gauge for transport
func (m *Metrics) RecordTransportStatus(transport string, connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.TransportConnected.WithLabelValues(transport).Set(value)
}

// RecordTransportReconnect counts a reconnection
func (m *Metrics) RecordTransportReconnect(transport string) {
	if m == nil {
		return
	}
	m.TransportReconnects.WithLabelValues(transport).Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (m *Metrics) RecordCircuitBreakerState(state int) {
	if m == nil {
		return
	}
	m.NATSCircuitBreaker.Set(float64(state))
}
