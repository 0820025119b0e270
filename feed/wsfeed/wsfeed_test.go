package wsfeed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub("127.0.0.1:0", Options{Logger: testLogger()})
	require.NoError(t, h.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Stop(ctx)
	})
	return h
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+h.Addr()+defaultPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestBroadcastReachesClient(t *testing.T) {
	h := startHub(t)
	conn := dial(t, h)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	h.Broadcast("message", map[string]any{"text": "hello", "channel": 0})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "message", env.Type)
	assert.NotZero(t, env.Timestamp)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "hello", payload["text"])
}

func TestNewClientReceivesHistory(t *testing.T) {
	h := startHub(t)

	// Broadcast before anyone is connected.
	h.Broadcast("adapter", map[string]string{"adapterId": "serial-0", "state": "connected"})
	h.Broadcast("message", map[string]any{"text": "hello"})

	conn := dial(t, h)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var types []string
	for i := 0; i < 2; i++ {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		types = append(types, env.Type)
	}
	assert.Equal(t, []string{"adapter", "message"}, types)
}

func TestBroadcastWithNoClients(t *testing.T) {
	h := startHub(t)
	// Must not panic or block.
	h.Broadcast("message", map[string]string{"text": "nobody home"})
	assert.Equal(t, 0, h.ClientCount())
}

func TestSlowClientDropped(t *testing.T) {
	h := NewHub("127.0.0.1:0", Options{Logger: testLogger()})

	// A client whose queue is already full: the next broadcast must drop it
	// instead of blocking.
	c := &client{send: make(chan []byte, 1)}
	c.send <- []byte("{}")
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.Broadcast("message", map[string]string{"text": "x"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	assert.Equal(t, 0, h.ClientCount())
}

func TestClientDisconnectRemoves(t *testing.T) {
	h := startHub(t)
	conn := dial(t, h)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestStopDisconnectsClients(t *testing.T) {
	h := NewHub("127.0.0.1:0", Options{Logger: testLogger()})
	require.NoError(t, h.Start())
	conn := dial(t, h)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
