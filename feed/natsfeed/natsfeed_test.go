package natsfeed

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/catalog"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

type fakeConn struct {
	published map[string][]byte
	err       error
}

func newFakeConn() *fakeConn {
	return &fakeConn{published: make(map[string][]byte)}
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published[subject] = data
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishMessage(t *testing.T) {
	conn := newFakeConn()
	p := New(conn, testLogger())
	require.True(t, p.Enabled())

	msg := &message.Canonical{
		ID:        "m1",
		Timestamp: time.Now(),
		Sender:    "!0000001a",
		Channel:   0,
		Kind:      message.KindText,
		Text:      "hello",
	}
	p.PublishMessage("serial-0", msg)

	data, ok := conn.published["meshbridge.msg.serial-0"]
	require.True(t, ok)

	var ev messageEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "serial-0", ev.SourceID)
	assert.Equal(t, "hello", ev.Message.Text)
}

func TestPublishNodeAndAdapterState(t *testing.T) {
	conn := newFakeConn()
	p := New(conn, testLogger())

	p.PublishNode("serial-0", catalog.Entry{
		ID:         "!0000001a",
		NodeUpdate: message.NodeUpdate{LongName: "Peer 1A"},
	})
	p.PublishAdapterState("serial-0", "serial-framed", adapter.StateConnected)

	require.Contains(t, conn.published, "meshbridge.node.serial-0")
	require.Contains(t, conn.published, "meshbridge.adapter.serial-0")

	var ev adapterStateEvent
	require.NoError(t, json.Unmarshal(conn.published["meshbridge.adapter.serial-0"], &ev))
	assert.Equal(t, "connected", ev.State)
	assert.Equal(t, "serial-framed", ev.Protocol)
}

func TestDisabledPublisherIsNoOp(t *testing.T) {
	// Unconfigured feed: nil connection, and even a nil publisher.
	p := New(nil, testLogger())
	assert.False(t, p.Enabled())
	p.PublishMessage("serial-0", &message.Canonical{ID: "m1"})

	var nilPub *Publisher
	assert.False(t, nilPub.Enabled())
	nilPub.PublishMessage("serial-0", &message.Canonical{ID: "m1"})
}

func TestPublishErrorDoesNotPropagate(t *testing.T) {
	conn := newFakeConn()
	conn.err = errors.New("connection lost")
	p := New(conn, testLogger())

	// Must not panic or block; errors are swallowed.
	p.PublishMessage("serial-0", &message.Canonical{ID: "m1"})
	p.PublishAdapterState("serial-0", "serial-framed", adapter.StateDisconnected)
}
