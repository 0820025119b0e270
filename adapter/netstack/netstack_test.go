package netstack

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
)

const initLine = `{"type":"init","data":{"identity":{"hash":"aa11","name":"Mesh Bridge Node"},` +
	`"destination":{"hash":"ccdd00112233","name":"meshbridge.messages"}}}`

// stackScript emulates the external stack: banner, init, then a command
// loop answering ping/announce/send and exiting on shutdown or EOF.
const stackScript = `
echo "stack starting up"
echo '` + initLine + `'
while read line; do
  case "$line" in
    *'"ping"'*) echo '{"type":"pong","data":{}}' ;;
    *'"announce"'*) echo '{"type":"announce_sent","data":{"destination_hash":"ccdd00112233"}}' ;;
    *'"send"'*) echo '{"type":"send_success","data":{"destination_hash":"eeff"}}' ;;
    *'"shutdown"'*) exit 0 ;;
  esac
done
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(t *testing.T, script string) *Adapter {
	t.Helper()
	return New(
		adapter.Deps{ID: "ns-0", Endpoint: "virtual:rns", Logger: testLogger()},
		Options{
			Command:          "sh",
			Args:             []string{"-c", script},
			InitTimeout:      5 * time.Second,
			AnnounceInterval: time.Hour,
			PingInterval:     time.Hour,
		},
	)
}

func nextEvent(t *testing.T, a *Adapter) adapter.Event {
	t.Helper()
	select {
	case ev := <-a.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return adapter.Event{}
	}
}

func TestConnect_InitHandshake(t *testing.T) {
	a := newTestAdapter(t, stackScript)

	require.NoError(t, a.Connect(context.Background()))
	defer func() { _ = a.Disconnect() }()

	assert.Equal(t, adapter.StateConnected, a.State())
	assert.Equal(t, "ccdd00112233", a.Metadata().NodeID)

	chs := a.Channels()
	require.Len(t, chs, 1)
	assert.Equal(t, "meshbridge.messages", chs[0].Name)
	assert.Equal(t, "ccdd00112233", chs[0].EqualityKey)

	// The first announce goes out right after connect.
	require.Eventually(t, func() bool { return a.Announces() >= 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestConnect_InitTimeout(t *testing.T) {
	a := New(
		adapter.Deps{ID: "ns-0", Endpoint: "virtual:rns", Logger: testLogger()},
		Options{Command: "sh", Args: []string{"-c", "sleep 60"}, InitTimeout: 100 * time.Millisecond},
	)

	err := a.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInitTimeout)
	assert.Equal(t, adapter.StateDisconnected, a.State())
}

func TestConnect_ProcessDiesBeforeInit(t *testing.T) {
	a := newTestAdapter(t, "exit 1")

	err := a.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSessionTerminated)
	assert.Equal(t, adapter.StateDisconnected, a.State())
}

func TestReceive_Message(t *testing.T) {
	script := `
echo '` + initLine + `'
echo '{"type":"message","data":{"from_hash":"1122334455","to_hash":"ccdd00112233","text":"over rns","rssi":-70,"snr":8}}'
while read line; do case "$line" in *'"shutdown"'*) exit 0 ;; esac; done
`
	a := newTestAdapter(t, script)
	require.NoError(t, a.Connect(context.Background()))
	defer func() { _ = a.Disconnect() }()
	drainChannelsEvent(t, a)

	ev := nextEvent(t, a)
	require.Equal(t, adapter.EventMessage, ev.Kind)
	assert.Equal(t, "over rns", ev.Message.Text)
	assert.Equal(t, "1122334455", ev.Message.Sender)
	assert.Equal(t, "1122334455", ev.Message.DestHash)
	assert.Equal(t, -70.0, ev.Message.Signal.RSSI)
}

func TestReceive_SelfEchoFiltered(t *testing.T) {
	script := `
echo '` + initLine + `'
echo '{"type":"message","data":{"from_hash":"ccdd00112233","to_hash":"ccdd00112233","text":"own"}}'
echo '{"type":"message","data":{"from_hash":"9988","to_hash":"ccdd00112233","text":"peer"}}'
while read line; do case "$line" in *'"shutdown"'*) exit 0 ;; esac; done
`
	a := newTestAdapter(t, script)
	require.NoError(t, a.Connect(context.Background()))
	defer func() { _ = a.Disconnect() }()
	drainChannelsEvent(t, a)

	ev := nextEvent(t, a)
	require.Equal(t, adapter.EventMessage, ev.Kind)
	assert.Equal(t, "peer", ev.Message.Text)
}

func TestSendMessage(t *testing.T) {
	a := newTestAdapter(t, stackScript)
	require.NoError(t, a.Connect(context.Background()))
	defer func() { _ = a.Disconnect() }()

	err := a.SendMessage(context.Background(), "payload", 0,
		adapter.SendOptions{DestHash: "eeff00112233"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Stats().Sent)

	// Destination-hash transports cannot broadcast.
	err = a.SendMessage(context.Background(), "payload", 0, adapter.SendOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	err = a.SendMessage(context.Background(), "payload", 3,
		adapter.SendOptions{DestHash: "eeff"})
	assert.ErrorIs(t, err, errors.ErrChannelNotFound)
}

func TestProcessExit_SurfacesDisconnect(t *testing.T) {
	script := `
echo '` + initLine + `'
sleep 0.2
exit 7
`
	a := newTestAdapter(t, script)
	require.NoError(t, a.Connect(context.Background()))
	drainChannelsEvent(t, a)

	for {
		ev := nextEvent(t, a)
		if ev.Kind == adapter.EventDisconnected {
			require.Error(t, ev.Err)
			assert.ErrorIs(t, ev.Err, errors.ErrSessionTerminated)
			break
		}
	}
	assert.Equal(t, adapter.StateDisconnected, a.State())
}

func TestSendMessage_NotConnected(t *testing.T) {
	a := newTestAdapter(t, stackScript)
	err := a.SendMessage(context.Background(), "x", 0, adapter.SendOptions{DestHash: "ee"})
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func drainChannelsEvent(t *testing.T, a *Adapter) {
	t.Helper()
	ev := nextEvent(t, a)
	require.Equal(t, adapter.EventChannels, ev.Kind)
}
