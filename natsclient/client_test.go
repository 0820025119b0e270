package natsclient

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithLogger(testLogger()),
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithName("meshbridge"),
	)
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)
	assert.Equal(t, "meshbridge", c.clientName)
}

func TestNewClient_EmptyURL(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(99).String())
}

func TestOperationsRequireConnection(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithLogger(testLogger()))
	require.NoError(t, err)

	assert.ErrorIs(t, c.Publish("meshbridge.msg.test", []byte("{}")), ErrNotConnected)
	assert.ErrorIs(t, c.Subscribe("meshbridge.msg.>", func([]byte) {}), ErrNotConnected)
	_, err = c.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestStatusCallback(t *testing.T) {
	var seen []ConnectionStatus
	c, err := NewClient("nats://localhost:4222",
		WithLogger(testLogger()),
		WithStatusCallback(func(s ConnectionStatus) { seen = append(seen, s) }),
	)
	require.NoError(t, err)

	c.setStatus(StatusConnecting)
	c.setStatus(StatusConnected)
	assert.Equal(t, []ConnectionStatus{StatusConnecting, StatusConnected}, seen)
}

func TestClose_Idempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithLogger(testLogger()),
		WithCredentials("user", "secret"),
	)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Credentials are scrubbed on close.
	assert.Empty(t, c.username)
	assert.Empty(t, c.password)
	assert.Equal(t, StatusDisconnected, c.Status())
}
