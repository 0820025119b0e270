package wsfeed

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
)

// metrics holds the hub's Prometheus instruments. Nil registry disables
// metrics; every record method tolerates a nil receiver.
type metrics struct {
	broadcasts *prometheus.CounterVec
	drops      prometheus.Counter
	clients    prometheus.Gauge
	connects   prometheus.Counter
}

func newMetrics(registry metric.MetricsRegistrar) *metrics {
	if registry == nil {
		return nil
	}

	m := &metrics{
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshbridge",
			Subsystem: "wsfeed",
			Name:      "broadcasts_total",
			Help:      "Events broadcast to websocket clients",
		}, []string{"type"}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshbridge",
			Subsystem: "wsfeed",
			Name:      "clients_dropped_total",
			Help:      "Clients dropped for falling behind the feed",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshbridge",
			Subsystem: "wsfeed",
			Name:      "clients_connected",
			Help:      "Currently connected websocket clients",
		}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshbridge",
			Subsystem: "wsfeed",
			Name:      "client_connections_total",
			Help:      "Client connections accepted since start",
		}),
	}

	_ = registry.RegisterCounterVec("wsfeed", "broadcasts", m.broadcasts)
	_ = registry.RegisterCounter("wsfeed", "clients_dropped", m.drops)
	_ = registry.RegisterGauge("wsfeed", "clients_connected", m.clients)
	_ = registry.RegisterCounter("wsfeed", "client_connections", m.connects)

	return m
}

func (m *metrics) broadcast(eventType string) {
	if m != nil {
		m.broadcasts.WithLabelValues(eventType).Inc()
	}
}

func (m *metrics) clientConnected(total int) {
	if m != nil {
		m.connects.Inc()
		m.clients.Set(float64(total))
	}
}

func (m *metrics) clientDisconnected(total int) {
	if m != nil {
		m.clients.Set(float64(total))
	}
}

func (m *metrics) clientDropped() {
	if m != nil {
		m.drops.Inc()
	}
}
