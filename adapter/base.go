package adapter

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/catalog"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

// eventBufferSize bounds the per-adapter event channel. Slow consumers drop
// rather than stall the transport read loop.
const eventBufferSize = 256

// Base carries the state shared by every adapter implementation: identity,
// connection state, counters, the node catalog, the channel list, and the
// event channel. Concrete adapters embed Base and drive it from their
// transport loops.
type Base struct {
	id       string
	protocol string
	endpoint string
	logger   *slog.Logger

	state atomic.Int32

	mu       sync.RWMutex
	events   chan Event
	channels []message.ChannelDescriptor
	meta     Metadata
	selfID   string

	nodes *catalog.Catalog

	received atomic.Int64
	sent     atomic.Int64
	errors   atomic.Int64
	since    time.Time

	dropped atomic.Int64 // events lost to a slow consumer
}

// NewBase creates the shared adapter core.
func NewBase(id, protocol, endpoint string, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Base{
		id:       id,
		protocol: protocol,
		endpoint: endpoint,
		logger:   logger.With("adapter", id, "protocol", protocol),
		events:   make(chan Event, eventBufferSize),
		nodes:    catalog.New(),
		since:    time.Now(),
	}
	b.meta = Metadata{Protocol: protocol, Endpoint: endpoint}
	return b
}

// ID returns the adapter identity.
func (b *Base) ID() string { return b.id }

// ProtocolName returns the negotiated protocol name.
func (b *Base) ProtocolName() string { return b.protocol }

// Endpoint returns the transport endpoint descriptor.
func (b *Base) Endpoint() string { return b.endpoint }

// Logger returns the adapter-scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// State returns the current connection state.
func (b *Base) State() State { return State(b.state.Load()) }

// SetState transitions the connection state.
func (b *Base) SetState(s State) {
	old := State(b.state.Swap(int32(s)))
	if old != s {
		b.logger.Debug("state transition", "from", old.String(), "to", s.String())
	}
}

// Catalog returns the adapter's node catalog.
func (b *Base) Catalog() *catalog.Catalog { return b.nodes }

// Nodes returns a snapshot of the known peers.
func (b *Base) Nodes() []catalog.Entry { return b.nodes.All() }

// Channels returns a snapshot of the channel list.
func (b *Base) Channels() []message.ChannelDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]message.ChannelDescriptor, len(b.channels))
	copy(out, b.channels)
	return out
}

// SetChannels replaces the channel list and emits a channels event.
func (b *Base) SetChannels(chs []message.ChannelDescriptor) {
	b.mu.Lock()
	b.channels = make([]message.ChannelDescriptor, len(chs))
	copy(b.channels, chs)
	b.mu.Unlock()

	b.Emit(Event{Kind: EventChannels, Channels: chs})
}

// HasChannel reports whether the adapter knows the given channel index.
func (b *Base) HasChannel(index int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.channels {
		if ch.Index == index {
			return true
		}
	}
	return false
}

// Stats returns the accumulated counters.
func (b *Base) Stats() Stats {
	return Stats{
		Received: b.received.Load(),
		Sent:     b.sent.Load(),
		Errors:   b.errors.Load(),
		Since:    b.since,
	}
}

// Metadata returns the negotiated protocol metadata.
func (b *Base) Metadata() Metadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.meta
}

// SetMetadata records metadata learned during Configuring, including the
// adapter's own node identity used for self-echo filtering.
func (b *Base) SetMetadata(meta Metadata) {
	b.mu.Lock()
	b.meta = meta
	b.selfID = message.NormalizeNodeID(meta.NodeID)
	b.mu.Unlock()
}

// SelfID returns the adapter's own learned node identity.
func (b *Base) SelfID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selfID
}

// IsSelf reports whether sender is the adapter's own identity echoed back by
// the transport. Adapters call this before surfacing a receive event.
func (b *Base) IsSelf(sender string) bool {
	self := b.SelfID()
	return self != "" && message.NormalizeNodeID(sender) == self
}

// Events returns the event stream.
func (b *Base) Events() <-chan Event { return b.events }

// Emit publishes an event, stamping adapter id and time. Non-blocking: if
// the consumer is behind, the event is counted as dropped.
func (b *Base) Emit(ev Event) {
	ev.AdapterID = b.id
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case b.events <- ev:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event dropped, consumer behind", "kind", string(ev.Kind))
	}
}

// CountReceived increments the received counter.
func (b *Base) CountReceived() { b.received.Add(1) }

// CountSent increments the sent counter.
func (b *Base) CountSent() { b.sent.Add(1) }

// CountError increments the error counter.
func (b *Base) CountError() { b.errors.Add(1) }

// EmitMessage surfaces a received canonical message unless it is the
// adapter's own echo.
func (b *Base) EmitMessage(msg *message.Canonical) {
	if b.IsSelf(msg.Sender) {
		b.logger.Debug("self-echo filtered", "id", msg.ID)
		return
	}
	b.CountReceived()
	b.Emit(Event{Kind: EventMessage, Message: msg})
}

// EmitNodeUpdate merges a peer update into the catalog and surfaces the
// merged entry. Telemetry-bearing updates surface as telemetry events.
func (b *Base) EmitNodeUpdate(nodeID string, update message.NodeUpdate, telemetry bool) {
	entry := b.nodes.Upsert(nodeID, update, b.id)
	kind := EventNodeInfo
	if telemetry {
		kind = EventTelemetry
	}
	b.Emit(Event{Kind: kind, Node: &entry})
}

// EmitDisconnected transitions to Disconnected and surfaces the event with
// the triggering error, if any.
func (b *Base) EmitDisconnected(err error) {
	b.SetState(StateDisconnected)
	b.Emit(Event{Kind: EventDisconnected, Err: err})
}

// EmitError surfaces a connection-level failure.
func (b *Base) EmitError(err error) {
	b.CountError()
	b.Emit(Event{Kind: EventError, Err: err})
}
