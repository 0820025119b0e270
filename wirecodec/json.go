package wirecodec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

// envelope is the JSON reference wire format: a type discriminator plus the
// union of per-type fields.
type envelope struct {
	Type string `json:"type"`

	ID        string  `json:"id,omitempty"`
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	Channel   int     `json:"channel,omitempty"`
	Text      string  `json:"text,omitempty"`
	WantAck   bool    `json:"want_ack,omitempty"`
	RSSI      float64 `json:"rssi,omitempty"`
	SNR       float64 `json:"snr,omitempty"`
	HopsAway  int     `json:"hops_away,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // unix seconds

	Node *message.NodeUpdate `json:"node,omitempty"`

	Channels []channelInfo `json:"channels,omitempty"`

	NodeID   string `json:"node_id,omitempty"`
	LongName string `json:"long_name,omitempty"`
	Firmware string `json:"firmware,omitempty"`
}

type channelInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	PSK   string `json:"psk,omitempty"` // pre-shared key fingerprint
}

// Envelope type discriminators understood by the JSON reference codec.
const (
	typeText           = "text"
	typeNodeInfo       = "nodeinfo"
	typePosition       = "position"
	typeTelemetry      = "telemetry"
	typeChannels       = "channels"
	typeMyInfo         = "my_info"
	typeConfigComplete = "config_complete"
	typeWantConfig     = "want_config"
	typeHeartbeat      = "heartbeat"
)

// JSONCodec is the reference Codec implementation speaking the JSON envelope
// format. It is stateless and safe for concurrent use.
type JSONCodec struct {
	// now is replaceable for tests.
	now func() time.Time
}

// NewJSON creates the reference JSON codec.
func NewJSON() *JSONCodec {
	return &JSONCodec{now: time.Now}
}

// EncodeWantConfig produces the config-request frame.
func (c *JSONCodec) EncodeWantConfig() ([]byte, error) {
	return json.Marshal(envelope{Type: typeWantConfig})
}

// EncodeHeartbeat produces the idle keepalive frame.
func (c *JSONCodec) EncodeHeartbeat() ([]byte, error) {
	return json.Marshal(envelope{Type: typeHeartbeat})
}

// EncodeText produces an outbound text frame.
func (c *JSONCodec) EncodeText(channel int, recipient, text string) (EncodedText, error) {
	if recipient == "" {
		recipient = message.Broadcast
	}
	ts := c.now()
	id := message.DeriveID("self", channel, fmt.Sprintf("%s@%d", text, ts.UnixNano()))
	payload, err := json.Marshal(envelope{
		Type:      typeText,
		ID:        id,
		To:        recipient,
		Channel:   channel,
		Text:      text,
		Timestamp: ts.Unix(),
	})
	if err != nil {
		return EncodedText{}, errors.Wrap(err, "JSONCodec", "EncodeText", "marshal")
	}
	return EncodedText{Payload: payload, MessageID: id}, nil
}

// DecodeFromRadio parses one inbound JSON payload.
func (c *JSONCodec) DecodeFromRadio(payload []byte) (DecodedFrame, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return DecodedFrame{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"JSONCodec", "DecodeFromRadio", "unmarshal")
	}

	frame := DecodedFrame{Raw: payload}
	switch env.Type {
	case typeText:
		frame.Message = c.decodeText(env)
	case typeNodeInfo, typePosition, typeTelemetry:
		if env.Node == nil {
			return DecodedFrame{}, errors.WrapInvalid(
				fmt.Errorf("%w: %s envelope without node body", errors.ErrParsingFailed, env.Type),
				"JSONCodec", "DecodeFromRadio", "node payload")
		}
		frame.NodeID = env.From
		frame.NodeUpdate = env.Node
		frame.Telemetry = env.Type == typeTelemetry
	case typeChannels:
		frame.Channels = make([]message.ChannelDescriptor, 0, len(env.Channels))
		for _, ch := range env.Channels {
			frame.Channels = append(frame.Channels, message.ChannelDescriptor{
				Index:       ch.Index,
				Name:        ch.Name,
				EqualityKey: ch.PSK,
			})
		}
	case typeMyInfo:
		frame.Self = &DeviceIdentity{
			NodeID:   env.NodeID,
			LongName: env.LongName,
			Firmware: env.Firmware,
		}
	case typeConfigComplete:
		frame.ConfigComplete = true
	case typeHeartbeat:
		// keepalive, nothing to surface
	default:
		return DecodedFrame{}, errors.WrapInvalid(
			fmt.Errorf("%w: envelope type %q", errors.ErrParsingFailed, env.Type),
			"JSONCodec", "DecodeFromRadio", "dispatch")
	}
	return frame, nil
}

func (c *JSONCodec) decodeText(env envelope) *message.Canonical {
	ts := time.Unix(env.Timestamp, 0)
	if env.Timestamp == 0 {
		ts = c.now()
	}
	sender := message.NormalizeNodeID(env.From)
	recipient := env.To
	if recipient == "" {
		recipient = message.Broadcast
	}
	id := env.ID
	if id == "" {
		id = message.DeriveID(sender, env.Channel, env.Text)
	}
	return &message.Canonical{
		ID:        id,
		Timestamp: ts,
		Sender:    sender,
		Recipient: recipient,
		Channel:   env.Channel,
		Kind:      message.KindText,
		Text:      env.Text,
		Signal:    message.SignalMetrics{RSSI: env.RSSI, SNR: env.SNR},
		HopCount:  env.HopsAway,
	}
}
