package wirecodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

func TestDecodeFromRadio_Text(t *testing.T) {
	c := NewJSON()

	payload := []byte(`{"type":"text","id":"abc123","from":"!1a2b3c4d","channel":2,` +
		`"text":"camp at ridge","rssi":-92.5,"snr":6.25,"hops_away":1,"timestamp":1772366400}`)
	frame, err := c.DecodeFromRadio(payload)
	require.NoError(t, err)
	require.NotNil(t, frame.Message)

	msg := frame.Message
	assert.Equal(t, "abc123", msg.ID)
	assert.Equal(t, "!1a2b3c4d", msg.Sender)
	assert.Equal(t, message.Broadcast, msg.Recipient)
	assert.Equal(t, 2, msg.Channel)
	assert.Equal(t, "camp at ridge", msg.Text)
	assert.Equal(t, message.KindText, msg.Kind)
	assert.Equal(t, -92.5, msg.Signal.RSSI)
	assert.Equal(t, 1, msg.HopCount)
	assert.Equal(t, time.Unix(1772366400, 0), msg.Timestamp)
}

func TestDecodeFromRadio_TextWithoutID(t *testing.T) {
	c := NewJSON()

	frame, err := c.DecodeFromRadio([]byte(`{"type":"text","from":"305419896","channel":0,"text":"hi"}`))
	require.NoError(t, err)
	require.NotNil(t, frame.Message)

	// Missing protocol id falls back to the content-derived form so replays
	// of the same transmission still dedup.
	assert.Equal(t, message.DeriveID("!12345678", 0, "hi"), frame.Message.ID)
	assert.Equal(t, "!12345678", frame.Message.Sender)
}

func TestDecodeFromRadio_NodeUpdate(t *testing.T) {
	c := NewJSON()

	frame, err := c.DecodeFromRadio([]byte(`{"type":"nodeinfo","from":"!0000000a",` +
		`"node":{"long_name":"Summit Relay","short_name":"SMT","hw_model":"TBEAM"}}`))
	require.NoError(t, err)
	require.NotNil(t, frame.NodeUpdate)
	assert.Equal(t, "!0000000a", frame.NodeID)
	assert.Equal(t, "Summit Relay", frame.NodeUpdate.LongName)
	assert.False(t, frame.Telemetry)

	frame, err = c.DecodeFromRadio([]byte(`{"type":"telemetry","from":"!0000000a",` +
		`"node":{"battery_level":88,"voltage":4.02}}`))
	require.NoError(t, err)
	assert.True(t, frame.Telemetry)
	assert.Equal(t, 88.0, frame.NodeUpdate.BatteryLevel)
}

func TestDecodeFromRadio_ConfigSequence(t *testing.T) {
	c := NewJSON()

	frame, err := c.DecodeFromRadio([]byte(`{"type":"my_info","node_id":"!deadbeef",` +
		`"long_name":"Gateway Radio","firmware":"2.3.1"}`))
	require.NoError(t, err)
	require.NotNil(t, frame.Self)
	assert.Equal(t, "!deadbeef", frame.Self.NodeID)

	frame, err = c.DecodeFromRadio([]byte(`{"type":"channels","channels":[` +
		`{"index":0,"name":"Primary","psk":"AQ=="},{"index":1,"name":"admin"}]}`))
	require.NoError(t, err)
	require.Len(t, frame.Channels, 2)
	assert.Equal(t, "Primary", frame.Channels[0].Name)
	assert.Equal(t, "AQ==", frame.Channels[0].EqualityKey)

	frame, err = c.DecodeFromRadio([]byte(`{"type":"config_complete"}`))
	require.NoError(t, err)
	assert.True(t, frame.ConfigComplete)
	assert.False(t, frame.Empty())
}

func TestDecodeFromRadio_Heartbeat(t *testing.T) {
	c := NewJSON()
	frame, err := c.DecodeFromRadio([]byte(`{"type":"heartbeat"}`))
	require.NoError(t, err)
	assert.True(t, frame.Empty())
}

func TestDecodeFromRadio_Malformed(t *testing.T) {
	c := NewJSON()

	_, err := c.DecodeFromRadio([]byte(`{"type":"text"`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = c.DecodeFromRadio([]byte(`{"type":"warp_drive"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)

	_, err = c.DecodeFromRadio([]byte(`{"type":"nodeinfo","from":"!01"}`))
	require.Error(t, err)
}

func TestEncodeText_RoundTrip(t *testing.T) {
	c := NewJSON()

	enc, err := c.EncodeText(1, "", "hello out there")
	require.NoError(t, err)
	assert.NotEmpty(t, enc.MessageID)

	frame, err := c.DecodeFromRadio(enc.Payload)
	require.NoError(t, err)
	require.NotNil(t, frame.Message)
	assert.Equal(t, enc.MessageID, frame.Message.ID)
	assert.Equal(t, "hello out there", frame.Message.Text)
	assert.Equal(t, 1, frame.Message.Channel)
	assert.Equal(t, message.Broadcast, frame.Message.Recipient)
}

func TestEncodeWantConfig(t *testing.T) {
	c := NewJSON()

	p, err := c.EncodeWantConfig()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"want_config"}`, string(p))

	p, err = c.EncodeHeartbeat()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"heartbeat"}`, string(p))
}
