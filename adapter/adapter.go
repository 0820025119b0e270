// Package adapter defines the contract every transport must satisfy to join
// the gateway: a connection lifecycle, a normalized send path, peer/channel
// snapshots, and an event stream of canonical records.
//
// The detector and router depend only on the Adapter interface; one
// implementing type exists per transport (serial, ble, httpapi, netstack).
// Each adapter owns its transport handle exclusively; no two adapters may
// share one physical endpoint concurrently.
package adapter

import (
	"context"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/catalog"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

// State represents the connection lifecycle state of an adapter.
type State int32

const (
	// StateDisconnected indicates no live transport handle.
	StateDisconnected State = iota
	// StateConnecting indicates the link-layer connection is being opened.
	StateConnecting
	// StateConfiguring indicates the link is up and the post-link handshake
	// (device identity, channel list) is in progress.
	StateConfiguring
	// StateConnected indicates the handshake completed and the adapter is
	// usable for sending.
	StateConnected
)

// String returns a string representation of the connection state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Stats holds the accumulated traffic counters for one adapter.
type Stats struct {
	Received int64     `json:"received"`
	Sent     int64     `json:"sent"`
	Errors   int64     `json:"errors"`
	Since    time.Time `json:"since"`
}

// Metadata describes the negotiated protocol of a connected adapter.
type Metadata struct {
	Protocol    string `json:"protocol"`
	Endpoint    string `json:"endpoint"`
	Description string `json:"description"`
	Firmware    string `json:"firmware,omitempty"`
	NodeID      string `json:"node_id,omitempty"` // the adapter's own identity
}

// SendOptions carries optional per-send parameters.
type SendOptions struct {
	// Recipient overrides the broadcast default.
	Recipient string
	// DestHash addresses destination-hash transports; ignored elsewhere.
	DestHash string
	// WantAck requests delivery acknowledgement where the protocol offers it.
	WantAck bool
}

// Adapter is one live connection to a radio/network endpoint.
//
// Connect runs the full connect/handshake sequence and returns once the
// adapter is Connected or the handshake failed; the context bounds the
// attempt and cancellation is a hard stop. Disconnect releases the transport
// handle; a disconnected adapter may be connected again. SendMessage fails
// with errors.ErrNotConnected, errors.ErrNotConfigured or
// errors.ErrChannelNotFound as appropriate.
type Adapter interface {
	ID() string
	ProtocolName() string
	State() State

	Connect(ctx context.Context) error
	Disconnect() error

	SendMessage(ctx context.Context, text string, channel int, opts SendOptions) error

	Nodes() []catalog.Entry
	Channels() []message.ChannelDescriptor
	Stats() Stats
	Metadata() Metadata

	// Events returns the adapter's event stream. The stream stays open
	// across disconnect/reconnect cycles; slow consumers drop events rather
	// than block transport read loops.
	Events() <-chan Event
}

// EventKind discriminates adapter events.
type EventKind string

const (
	// EventMessage carries a normalized received message.
	EventMessage EventKind = "message"
	// EventNodeInfo carries a peer catalog update.
	EventNodeInfo EventKind = "nodeInfo"
	// EventChannels signals that the adapter's channel list changed.
	EventChannels EventKind = "channels"
	// EventTelemetry carries a telemetry-bearing peer update.
	EventTelemetry EventKind = "telemetry"
	// EventDisconnected signals that the adapter lost its transport.
	EventDisconnected EventKind = "disconnected"
	// EventError carries a connection-level failure.
	EventError EventKind = "error"
)

// Event is one occurrence surfaced by an adapter. Exactly one payload field
// is set, matching Kind.
type Event struct {
	Kind      EventKind
	AdapterID string
	Time      time.Time

	Message  *message.Canonical
	Node     *catalog.Entry
	Channels []message.ChannelDescriptor
	Err      error
}
