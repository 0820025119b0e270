// Package testutil provides test doubles shared across the gateway's test
// suites.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/catalog"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

// SentMessage records one SendMessage call on a MockAdapter.
type SentMessage struct {
	Text    string
	Channel int
	Opts    adapter.SendOptions
}

// MockAdapter is a scriptable adapter for router, detector, and engine
// tests. The zero value connects successfully and records sends.
type MockAdapter struct {
	mu sync.Mutex

	// Scripting hooks.
	ConnectFunc func(ctx context.Context) error
	SendFunc    func(ctx context.Context, text string, channel int, opts adapter.SendOptions) error

	// Identity.
	IDValue       string
	Protocol      string
	ChannelsValue []message.ChannelDescriptor

	state adapter.State

	// Recorded calls.
	ConnectCalls    int
	DisconnectCalls int
	Sent            []SentMessage

	events chan adapter.Event
}

// NewMockAdapter creates a mock with the given identity.
func NewMockAdapter(id, protocol string) *MockAdapter {
	return &MockAdapter{
		IDValue:  id,
		Protocol: protocol,
		events:   make(chan adapter.Event, 64),
	}
}

// ID implements adapter.Adapter.
func (m *MockAdapter) ID() string { return m.IDValue }

// ProtocolName implements adapter.Adapter.
func (m *MockAdapter) ProtocolName() string { return m.Protocol }

// State implements adapter.Adapter.
func (m *MockAdapter) State() adapter.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect runs the scripted connect, defaulting to immediate success.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.ConnectCalls++
	fn := m.ConnectFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.state = adapter.StateConnected
	m.mu.Unlock()
	return nil
}

// Disconnect implements adapter.Adapter.
func (m *MockAdapter) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisconnectCalls++
	m.state = adapter.StateDisconnected
	return nil
}

// SendMessage records the call and runs the scripted send, if any.
func (m *MockAdapter) SendMessage(ctx context.Context, text string, channel int, opts adapter.SendOptions) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, SentMessage{Text: text, Channel: channel, Opts: opts})
	fn := m.SendFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, channel, opts)
	}
	return nil
}

// SentMessages returns a snapshot of recorded sends.
func (m *MockAdapter) SentMessages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// Nodes implements adapter.Adapter.
func (m *MockAdapter) Nodes() []catalog.Entry { return nil }

// Channels implements adapter.Adapter.
func (m *MockAdapter) Channels() []message.ChannelDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ChannelsValue
}

// Stats implements adapter.Adapter.
func (m *MockAdapter) Stats() adapter.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return adapter.Stats{Sent: int64(len(m.Sent))}
}

// Metadata implements adapter.Adapter.
func (m *MockAdapter) Metadata() adapter.Metadata {
	return adapter.Metadata{Protocol: m.Protocol, Endpoint: "mock"}
}

// Events implements adapter.Adapter.
func (m *MockAdapter) Events() <-chan adapter.Event { return m.events }

// EmitEvent injects an event as if the transport produced it.
func (m *MockAdapter) EmitEvent(ev adapter.Event) {
	if ev.AdapterID == "" {
		ev.AdapterID = m.IDValue
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	m.events <- ev
}
