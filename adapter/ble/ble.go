// Package ble implements the Bluetooth Low Energy adapter. The radio
// exposes the Nordic UART service; both directions carry the same tagged,
// delimiter-escaped frames as the serial transport, so BLE is just another
// byte pipe under the framing codec.
package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/framing"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/wirecodec"
)

// ProtocolName identifies this adapter to the detector and registry.
const ProtocolName = "ble-gatt"

// cmdData matches the serial transport's data command tag; other tags are
// not used over BLE and are ignored.
const cmdData byte = 0x00

const defaultHandshakeTimeout = 20 * time.Second

// link is the GATT transport under the adapter: dial a peripheral, stream
// notification bytes in, write bytes out. The production implementation
// lives in nuslink.go; tests substitute an in-memory link.
type link interface {
	// Dial scans for and connects to the peripheral, discovers the UART
	// service, and routes notifications to onData. Missing service or
	// characteristics fail with errors.ErrMissingCharacteristic.
	Dial(ctx context.Context, endpoint string, onData func([]byte)) error
	Write(p []byte) error
	Close() error
}

// Options tunes the BLE adapter.
type Options struct {
	HandshakeTimeout time.Duration
	Codec            wirecodec.Codec

	// Link overrides the GATT transport, mainly for tests.
	Link link
}

// Adapter drives one radio over a BLE UART bridge.
type Adapter struct {
	*adapter.Base

	handshakeTimeout time.Duration
	codec            wirecodec.Codec
	link             link

	mu      sync.Mutex
	decoder framing.StreamDecoder
	dialed  bool

	configured chan struct{}
	confOnce   sync.Once
}

// New creates a BLE adapter for the endpoint (the peripheral's MAC address).
func New(deps adapter.Deps, opts Options) *Adapter {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.Codec == nil {
		opts.Codec = wirecodec.NewJSON()
	}
	if opts.Link == nil {
		opts.Link = newNUSLink(deps.Logger)
	}

	return &Adapter{
		Base:             adapter.NewBase(deps.ID, ProtocolName, deps.Endpoint, deps.Logger),
		handshakeTimeout: opts.HandshakeTimeout,
		codec:            opts.Codec,
		link:             opts.Link,
	}
}

// Connect dials the peripheral and runs the config handshake.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.State() != adapter.StateDisconnected {
		return errors.Wrap(errors.ErrAlreadyConnected, "ble", "Connect", "state check")
	}
	a.SetState(adapter.StateConnecting)

	a.mu.Lock()
	a.decoder.Reset()
	a.configured = make(chan struct{})
	a.confOnce = sync.Once{}
	a.mu.Unlock()

	if err := a.link.Dial(ctx, a.Endpoint(), a.onNotification); err != nil {
		a.SetState(adapter.StateDisconnected)
		if errors.IsFatal(err) {
			return err
		}
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrDeviceUnreachable, err),
			"ble", "Connect", "dial")
	}
	a.mu.Lock()
	a.dialed = true
	a.mu.Unlock()

	a.SetState(adapter.StateConfiguring)
	if err := a.handshake(ctx); err != nil {
		a.teardown()
		return err
	}

	a.SetState(adapter.StateConnected)
	a.Logger().Info("ble radio connected", "address", a.Endpoint())
	return nil
}

func (a *Adapter) handshake(ctx context.Context) error {
	want, err := a.codec.EncodeWantConfig()
	if err != nil {
		return errors.WrapFatal(err, "ble", "handshake", "encode config request")
	}
	if err := a.writeFrame(want); err != nil {
		return err
	}

	select {
	case <-a.configured:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrHandshakeTimeout, ctx.Err()),
			"ble", "handshake", "config wait cancelled")
	case <-time.After(a.handshakeTimeout):
		return errors.WrapTransient(errors.ErrHandshakeTimeout,
			"ble", "handshake", "config wait")
	}
}

// Disconnect releases the GATT connection.
func (a *Adapter) Disconnect() error {
	if a.State() == adapter.StateDisconnected {
		return nil
	}
	a.teardown()
	a.EmitDisconnected(nil)
	return nil
}

func (a *Adapter) teardown() {
	a.mu.Lock()
	dialed := a.dialed
	a.dialed = false
	a.mu.Unlock()

	if dialed {
		_ = a.link.Close()
	}
	a.SetState(adapter.StateDisconnected)
}

// SendMessage encodes text and writes it as a framed data payload.
func (a *Adapter) SendMessage(ctx context.Context, text string, channel int, opts adapter.SendOptions) error {
	switch a.State() {
	case adapter.StateConnected:
	case adapter.StateConfiguring:
		return errors.Wrap(errors.ErrNotConfigured, "ble", "SendMessage", "state check")
	default:
		return errors.Wrap(errors.ErrNotConnected, "ble", "SendMessage", "state check")
	}
	if !a.HasChannel(channel) {
		return errors.Wrap(
			fmt.Errorf("%w: index %d", errors.ErrChannelNotFound, channel),
			"ble", "SendMessage", "channel lookup")
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "ble", "SendMessage", "context check")
	}

	enc, err := a.codec.EncodeText(channel, opts.Recipient, text)
	if err != nil {
		return errors.WrapInvalid(err, "ble", "SendMessage", "encode")
	}
	if err := a.writeFrame(enc.Payload); err != nil {
		return err
	}

	a.CountSent()
	return nil
}

func (a *Adapter) writeFrame(payload []byte) error {
	frame := framing.EncodeFrame(append([]byte{cmdData}, payload...))
	if err := a.link.Write(frame); err != nil {
		a.CountError()
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
			"ble", "writeFrame", "characteristic write")
	}
	return nil
}

// onNotification feeds notification chunks through the streaming decoder.
// Notifications split frames at arbitrary MTU boundaries, which the decoder
// absorbs the same way it absorbs partial serial reads.
func (a *Adapter) onNotification(chunk []byte) {
	a.mu.Lock()
	frames := a.decoder.Decode(chunk)
	a.mu.Unlock()

	for _, frame := range frames {
		if len(frame) < 1 || frame[0] != cmdData {
			continue
		}
		a.handleData(frame[1:])
	}
}

func (a *Adapter) handleData(payload []byte) {
	frame, err := a.codec.DecodeFromRadio(payload)
	if err != nil {
		a.Logger().Warn("payload discarded", "error", err)
		return
	}

	switch {
	case frame.Message != nil:
		a.EmitMessage(frame.Message)
	case frame.NodeUpdate != nil:
		a.EmitNodeUpdate(frame.NodeID, *frame.NodeUpdate, frame.Telemetry)
	case frame.Channels != nil:
		a.SetChannels(frame.Channels)
	case frame.Self != nil:
		a.SetMetadata(adapter.Metadata{
			Protocol:    ProtocolName,
			Endpoint:    a.Endpoint(),
			Description: "ble radio via nordic uart service",
			Firmware:    frame.Self.Firmware,
			NodeID:      frame.Self.NodeID,
		})
	case frame.ConfigComplete:
		a.confOnce.Do(func() { close(a.configured) })
	}
}
