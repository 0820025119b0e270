package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
)

// metrics tolerates a nil receiver so a missing registry disables metrics.
type metrics struct {
	registry *metric.MetricsRegistry
	id       string

	pollCount prometheus.Counter
	pollErrs  prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry, id string) *metrics {
	if registry == nil {
		return nil
	}

	m := &metrics{
		registry: registry,
		id:       id,
		pollCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "meshbridge",
			Subsystem:   "httpapi",
			Name:        "polls_total",
			Help:        "Successful polls of the radio's payload queue",
			ConstLabels: prometheus.Labels{"adapter": id},
		}),
		pollErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "meshbridge",
			Subsystem:   "httpapi",
			Name:        "poll_errors_total",
			Help:        "Failed polls",
			ConstLabels: prometheus.Labels{"adapter": id},
		}),
	}

	_ = registry.RegisterCounter(id, "polls", m.pollCount)
	_ = registry.RegisterCounter(id, "poll_errors", m.pollErrs)
	return m
}

// unregister releases the adapter's collectors. Reconnection builds a fresh
// adapter for the same radio id; without this the stale registrations block
// the replacement and its series freeze.
func (m *metrics) unregister() {
	if m == nil {
		return
	}
	m.registry.Unregister(m.id, "polls")
	m.registry.Unregister(m.id, "poll_errors")
}

func (m *metrics) polls() {
	if m != nil {
		m.pollCount.Inc()
	}
}

func (m *metrics) pollErrors() {
	if m != nil {
		m.pollErrs.Inc()
	}
}
