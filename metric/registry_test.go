package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meshbridge",
		Subsystem: "test",
		Name:      name,
	})
}

func TestRegisterCounter(t *testing.T) {
	r := NewMetricsRegistry()

	err := r.RegisterCounter("serial-0", "frames_decoded", testCounter("frames_decoded_total"))
	require.NoError(t, err)

	// Same component+name is rejected before Prometheus even sees it.
	err = r.RegisterCounter("serial-0", "frames_decoded", testCounter("frames_decoded_2"))
	assert.Error(t, err)

	// Same collector name under a different component key trips the
	// Prometheus duplicate check instead.
	err = r.RegisterCounter("serial-1", "frames_decoded", testCounter("frames_decoded_total"))
	assert.Error(t, err)
}

func TestUnregisterAllowsReRegistration(t *testing.T) {
	r := NewMetricsRegistry()

	require.NoError(t, r.RegisterCounter("ble-0", "notifications", testCounter("notifications_total")))
	assert.True(t, r.Unregister("ble-0", "notifications"))
	assert.False(t, r.Unregister("ble-0", "notifications"))

	// A reconnecting adapter re-registers under the same key.
	assert.NoError(t, r.RegisterCounter("ble-0", "notifications", testCounter("notifications_total")))
}

func TestCoreMetricsGathered(t *testing.T) {
	r := NewMetricsRegistry()

	r.Metrics.RecordReceived("serial-0")
	r.Metrics.RecordForwarded("serial-0", "http-0")
	r.Metrics.RecordDuplicate()
	r.Metrics.RecordAdapterState("serial-0", "serial", 3)

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["meshbridge_messages_received_total"])
	assert.True(t, names["meshbridge_router_forwarded_total"])
	assert.True(t, names["meshbridge_router_deduplicated_total"])
	assert.True(t, names["meshbridge_adapter_state"])
}
