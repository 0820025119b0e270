package serial

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
)

// metrics holds the adapter's Prometheus instruments. Nil registry means
// metrics are disabled; every record method tolerates a nil receiver.
type metrics struct {
	registry *metric.MetricsRegistry
	id       string

	decoded  prometheus.Counter
	received prometheus.Counter
	sent     prometheus.Counter
	parse    prometheus.Counter
	port     prometheus.Counter
	state    prometheus.Gauge
}

func newMetrics(registry *metric.MetricsRegistry, id string) *metrics {
	if registry == nil {
		return nil
	}

	m := &metrics{
		registry: registry,
		id:       id,
		decoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "meshbridge",
			Subsystem:   "serial",
			Name:        "frames_decoded_total",
			Help:        "Frames decoded from the port byte stream",
			ConstLabels: prometheus.Labels{"adapter": id},
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "meshbridge",
			Subsystem:   "serial",
			Name:        "messages_received_total",
			Help:        "Canonical messages surfaced from decoded frames",
			ConstLabels: prometheus.Labels{"adapter": id},
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "meshbridge",
			Subsystem:   "serial",
			Name:        "messages_sent_total",
			Help:        "Messages framed and written to the port",
			ConstLabels: prometheus.Labels{"adapter": id},
		}),
		parse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "meshbridge",
			Subsystem:   "serial",
			Name:        "parse_errors_total",
			Help:        "Payloads discarded as malformed",
			ConstLabels: prometheus.Labels{"adapter": id},
		}),
		port: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "meshbridge",
			Subsystem:   "serial",
			Name:        "port_errors_total",
			Help:        "Port read/write errors",
			ConstLabels: prometheus.Labels{"adapter": id},
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "meshbridge",
			Subsystem:   "serial",
			Name:        "connection_state",
			Help:        "Connection state (0=disconnected, 1=connecting, 2=configuring, 3=connected)",
			ConstLabels: prometheus.Labels{"adapter": id},
		}),
	}

	_ = registry.RegisterCounter(id, "frames_decoded", m.decoded)
	_ = registry.RegisterCounter(id, "messages_received", m.received)
	_ = registry.RegisterCounter(id, "messages_sent", m.sent)
	_ = registry.RegisterCounter(id, "parse_errors", m.parse)
	_ = registry.RegisterCounter(id, "port_errors", m.port)
	_ = registry.RegisterGauge(id, "connection_state", m.state)

	return m
}

// unregister releases the adapter's collectors. Reconnection builds a fresh
// adapter for the same radio id; without this the stale registrations block
// the replacement and its series freeze.
func (m *metrics) unregister() {
	if m == nil {
		return
	}
	for _, name := range []string{
		"frames_decoded", "messages_received", "messages_sent",
		"parse_errors", "port_errors", "connection_state",
	} {
		m.registry.Unregister(m.id, name)
	}
}

func (m *metrics) framesDecoded() {
	if m != nil {
		m.decoded.Inc()
	}
}

func (m *metrics) framesReceived() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *metrics) framesSent() {
	if m != nil {
		m.sent.Inc()
	}
}

func (m *metrics) parseErrors() {
	if m != nil {
		m.parse.Inc()
	}
}

func (m *metrics) portErrors() {
	if m != nil {
		m.port.Inc()
	}
}

func (m *metrics) recordState(s adapter.State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}
