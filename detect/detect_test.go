package detect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/ble"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/httpapi"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/netstack"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/serial"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// registerMock adds a protocol whose adapters connect (or fail) as scripted
// and records the created instances.
func registerMock(t *testing.T, reg *adapter.Registry, protocol string,
	connectErr error) *[]*testutil.MockAdapter {
	t.Helper()
	created := &[]*testutil.MockAdapter{}
	err := reg.Register(adapter.Registration{
		Protocol: protocol,
		Factory: func(deps adapter.Deps) (adapter.Adapter, error) {
			m := testutil.NewMockAdapter(deps.ID, protocol)
			if connectErr != nil {
				m.ConnectFunc = func(context.Context) error { return connectErr }
			}
			*created = append(*created, m)
			return m, nil
		},
	})
	require.NoError(t, err)
	return created
}

func TestClassify(t *testing.T) {
	tests := []struct {
		endpoint string
		want     []string
	}{
		{"virtual:rns", []string{netstack.ProtocolName}},
		{"AA:BB:CC:DD:EE:FF", []string{ble.ProtocolName}},
		{"aa:bb:cc:dd:ee:ff", []string{ble.ProtocolName}},
		{"/dev/ttyUSB0", []string{serial.ProtocolName}},
		{"COM3", []string{serial.ProtocolName}},
		{"http://192.168.4.1", []string{httpapi.ProtocolName}},
		{"meshradio.local", []string{httpapi.ProtocolName, ble.ProtocolName}},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.endpoint))
		})
	}
}

func TestClassify_PhysicalNeverProbesNetstack(t *testing.T) {
	for _, endpoint := range []string{"/dev/ttyACM0", "COM7", "AA:BB:CC:DD:EE:FF", "http://radio", "radio.local"} {
		for _, protocol := range Classify(endpoint) {
			assert.NotEqual(t, netstack.ProtocolName, protocol,
				"physical endpoint %s must not probe the network stack", endpoint)
		}
	}
}

func TestDetect_FirstSuccessWins(t *testing.T) {
	reg := adapter.NewRegistry()
	failed := registerMock(t, reg, "alpha", fmt.Errorf("%w", errors.ErrHandshakeTimeout))
	registerMock(t, reg, "beta", nil)
	never := registerMock(t, reg, "gamma", nil)

	d := New(reg, Options{
		Logger:   testLogger(),
		Classify: func(string) []string { return []string{"alpha", "beta", "gamma"} },
	})

	a, err := d.Detect(context.Background(),
		adapter.Deps{ID: "radio-0", Endpoint: "/dev/ttyUSB0", Logger: testLogger()}, "")
	require.NoError(t, err)
	assert.Equal(t, "beta", a.ProtocolName())
	assert.Equal(t, adapter.StateConnected, a.State())

	// The failing candidate was fully torn down before the next probe.
	require.Len(t, *failed, 1)
	assert.Equal(t, 1, (*failed)[0].DisconnectCalls)
	assert.Equal(t, adapter.StateDisconnected, (*failed)[0].State())

	// Detection stopped at the first success.
	assert.Empty(t, *never)
}

func TestDetect_Exhaustion(t *testing.T) {
	reg := adapter.NewRegistry()
	alpha := registerMock(t, reg, "alpha", fmt.Errorf("no device"))
	beta := registerMock(t, reg, "beta", fmt.Errorf("%w", errors.ErrHandshakeTimeout))

	d := New(reg, Options{
		Logger:   testLogger(),
		Classify: func(string) []string { return []string{"alpha", "beta"} },
	})

	_, err := d.Detect(context.Background(),
		adapter.Deps{ID: "radio-0", Endpoint: "/dev/ttyUSB0", Logger: testLogger()}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDetectionExhausted)
	// The terminal error names every attempted protocol.
	assert.Contains(t, err.Error(), "alpha")
	assert.Contains(t, err.Error(), "beta")

	// Nothing is left connected.
	for _, m := range append(*alpha, *beta...) {
		assert.Equal(t, adapter.StateDisconnected, m.State())
	}
}

func TestDetect_PinnedBypassesClassification(t *testing.T) {
	reg := adapter.NewRegistry()
	pinned := registerMock(t, reg, "pinned-proto", nil)
	other := registerMock(t, reg, "other", nil)

	d := New(reg, Options{
		Logger:   testLogger(),
		Classify: func(string) []string { return []string{"other"} },
	})

	a, err := d.Detect(context.Background(),
		adapter.Deps{ID: "radio-0", Endpoint: "/dev/ttyUSB0", Logger: testLogger()}, "pinned-proto")
	require.NoError(t, err)
	assert.Equal(t, "pinned-proto", a.ProtocolName())
	require.Len(t, *pinned, 1)
	assert.Empty(t, *other)
}

func TestDetect_PinnedUnknownProtocol(t *testing.T) {
	reg := adapter.NewRegistry()
	d := New(reg, Options{Logger: testLogger()})

	_, err := d.Detect(context.Background(),
		adapter.Deps{ID: "radio-0", Endpoint: "/dev/ttyUSB0", Logger: testLogger()}, "no-such-proto")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownProtocol)
}

func TestDetect_ProbeTimeoutIsHardStop(t *testing.T) {
	reg := adapter.NewRegistry()
	err := reg.Register(adapter.Registration{
		Protocol: "hang",
		Factory: func(deps adapter.Deps) (adapter.Adapter, error) {
			m := testutil.NewMockAdapter(deps.ID, "hang")
			m.ConnectFunc = func(ctx context.Context) error {
				<-ctx.Done() // honors cancellation like a real adapter
				return ctx.Err()
			}
			return m, nil
		},
	})
	require.NoError(t, err)

	d := New(reg, Options{
		Logger:       testLogger(),
		ProbeTimeout: 50 * time.Millisecond,
		Classify:     func(string) []string { return []string{"hang"} },
	})

	start := time.Now()
	_, err = d.Detect(context.Background(),
		adapter.Deps{ID: "radio-0", Endpoint: "/dev/ttyUSB0", Logger: testLogger()}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDetectionExhausted)
	assert.Less(t, time.Since(start), 2*time.Second)
}
