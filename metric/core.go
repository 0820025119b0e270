package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the gateway-level metrics shared by every component.
// Adapter- and component-specific metrics register separately through the
// MetricsRegistrar.
type Metrics struct {
	AdapterState         *prometheus.GaugeVec
	MessagesReceived     *prometheus.CounterVec
	MessagesSent         *prometheus.CounterVec
	MessagesForwarded    *prometheus.CounterVec
	MessagesDeduplicated prometheus.Counter
	MessagesFiltered     prometheus.Counter
	AdapterErrors        *prometheus.CounterVec
	DetectionAttempts    *prometheus.CounterVec
	NodesKnown           *prometheus.GaugeVec

	NATSConnected prometheus.Gauge
}

// NewMetrics creates the gateway metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		AdapterState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "meshbridge",
				Subsystem: "adapter",
				Name:      "state",
				Help:      "Adapter state (0=disconnected, 1=connecting, 2=configuring, 3=connected)",
			},
			[]string{"adapter", "protocol"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshbridge",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Messages received per adapter",
			},
			[]string{"adapter"},
		),

		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshbridge",
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Messages sent per adapter",
			},
			[]string{"adapter"},
		),

		MessagesForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshbridge",
				Subsystem: "router",
				Name:      "forwarded_total",
				Help:      "Messages forwarded per source/target adapter pair",
			},
			[]string{"source", "target"},
		),

		MessagesDeduplicated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshbridge",
				Subsystem: "router",
				Name:      "deduplicated_total",
				Help:      "Messages suppressed by the dedup window",
			},
		),

		MessagesFiltered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meshbridge",
				Subsystem: "router",
				Name:      "filtered_total",
				Help:      "Messages rejected by route filters",
			},
		),

		AdapterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshbridge",
				Subsystem: "adapter",
				Name:      "errors_total",
				Help:      "Connection-level errors per adapter",
			},
			[]string{"adapter"},
		),

		DetectionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshbridge",
				Subsystem: "detect",
				Name:      "attempts_total",
				Help:      "Protocol probes per candidate protocol and outcome",
			},
			[]string{"protocol", "outcome"},
		),

		NodesKnown: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "meshbridge",
				Subsystem: "catalog",
				Name:      "nodes_known",
				Help:      "Nodes in the catalog per adapter",
			},
			[]string{"adapter"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meshbridge",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

// RecordAdapterState updates the adapter state gauge.
func (m *Metrics) RecordAdapterState(adapter, protocol string, state int) {
	m.AdapterState.WithLabelValues(adapter, protocol).Set(float64(state))
}

// RecordReceived increments the per-adapter receive counter.
func (m *Metrics) RecordReceived(adapter string) {
	m.MessagesReceived.WithLabelValues(adapter).Inc()
}

// RecordSent increments the per-adapter send counter.
func (m *Metrics) RecordSent(adapter string) {
	m.MessagesSent.WithLabelValues(adapter).Inc()
}

// RecordForwarded increments the router forward counter for one hop.
func (m *Metrics) RecordForwarded(source, target string) {
	m.MessagesForwarded.WithLabelValues(source, target).Inc()
}

// RecordDuplicate increments the dedup suppression counter.
func (m *Metrics) RecordDuplicate() { m.MessagesDeduplicated.Inc() }

// RecordFiltered increments the filter rejection counter.
func (m *Metrics) RecordFiltered() { m.MessagesFiltered.Inc() }

// RecordAdapterError increments the per-adapter error counter.
func (m *Metrics) RecordAdapterError(adapter string) {
	m.AdapterErrors.WithLabelValues(adapter).Inc()
}

// RecordDetection records one probe outcome ("detected" or "failed").
func (m *Metrics) RecordDetection(protocol, outcome string) {
	m.DetectionAttempts.WithLabelValues(protocol, outcome).Inc()
}

// RecordNodesKnown updates the catalog size gauge for one adapter.
func (m *Metrics) RecordNodesKnown(adapter string, n int) {
	m.NodesKnown.WithLabelValues(adapter).Set(float64(n))
}

// RecordNATSStatus updates the NATS connection gauge.
func (m *Metrics) RecordNATSStatus(connected bool) {
	if connected {
		m.NATSConnected.Set(1)
	} else {
		m.NATSConnected.Set(0)
	}
}
