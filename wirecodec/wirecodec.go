// Package wirecodec defines the boundary between transport adapters and the
// vendor payload format a radio actually speaks. Adapters hand the codec raw
// payload bytes (already de-framed by the link layer) and receive decoded
// domain records; the codec never touches the transport.
//
// The gateway ships a JSON reference codec; a vendor protobuf codec slots in
// behind the same interface without adapter changes.
package wirecodec

import (
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

// DeviceIdentity is the radio's own identity learned during the config
// handshake, used for self-echo filtering.
type DeviceIdentity struct {
	NodeID   string
	LongName string
	Firmware string
}

// DecodedFrame is one parsed inbound payload. Fields are optional; a frame
// may carry any subset, and ConfigComplete marks the end of the initial
// config exchange.
type DecodedFrame struct {
	Raw []byte

	Message *message.Canonical

	// NodeID/NodeUpdate carry a peer profile update when present.
	NodeID     string
	NodeUpdate *message.NodeUpdate
	// Telemetry marks a NodeUpdate that carries telemetry-category fields.
	Telemetry bool

	Channels []message.ChannelDescriptor
	Self     *DeviceIdentity

	ConfigComplete bool
}

// Empty reports whether the frame decoded to nothing the adapter should act
// on (e.g. a keepalive).
func (f DecodedFrame) Empty() bool {
	return f.Message == nil && f.NodeUpdate == nil && f.Channels == nil &&
		f.Self == nil && !f.ConfigComplete
}

// EncodedText is an outbound text frame plus tracking metadata.
type EncodedText struct {
	Payload   []byte
	MessageID string
	WantAck   bool
}

// Codec translates between raw radio payloads and domain records.
type Codec interface {
	// EncodeWantConfig produces the frame that starts the config handshake:
	// the radio answers with identity, channel list and node database, ending
	// with a config-complete marker.
	EncodeWantConfig() ([]byte, error)

	// EncodeHeartbeat produces the keepalive frame sent while idle.
	EncodeHeartbeat() ([]byte, error)

	// EncodeText produces an outbound text frame for a channel. recipient
	// may be message.Broadcast.
	EncodeText(channel int, recipient, text string) (EncodedText, error)

	// DecodeFromRadio parses one inbound payload. Malformed payloads return
	// an error; the caller discards the unit and keeps the connection.
	DecodeFromRadio(payload []byte) (DecodedFrame, error)
}
