// Package serial implements the framed serial radio adapter. Frames on the
// wire are delimiter-escaped byte sequences (see the framing package); the
// first byte of every decoded frame is a command tag, the rest an opaque
// command payload handed to the wire codec.
package serial

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	goserial "go.bug.st/serial"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/framing"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/wirecodec"
)

// ProtocolName identifies this adapter to the detector and registry.
const ProtocolName = "serial-framed"

// Command tags, the first byte of every decoded frame.
const (
	// cmdData wraps a codec payload: inbound packet or outbound message.
	cmdData byte = 0x00
	// cmdFrequency carries a big-endian uint32 frequency in Hz.
	cmdFrequency byte = 0x01
	// cmdReady is the radio's link-ready signal, empty payload.
	cmdReady byte = 0x05
)

// defaultHandshakeTimeout bounds the time from port open to config-complete.
const defaultHandshakeTimeout = 10 * time.Second

const defaultBaudRate = 115200

// Options tunes the serial adapter.
type Options struct {
	BaudRate         int
	HandshakeTimeout time.Duration
	Codec            wirecodec.Codec
	Registry         *metric.MetricsRegistry
}

// Adapter drives one serial-framed radio.
type Adapter struct {
	*adapter.Base

	baudRate         int
	handshakeTimeout time.Duration
	codec            wirecodec.Codec
	metrics          *metrics

	// openPort is replaceable in tests to substitute a fake port.
	openPort func(endpoint string, mode *goserial.Mode) (goserial.Port, error)

	mu         sync.Mutex
	port       goserial.Port
	cancelRead context.CancelFunc
	readDone   chan struct{}

	// configured is signalled once when the config handshake completes.
	configured chan struct{}
	confOnce   sync.Once

	frequencyHz uint32
}

// New creates a serial adapter for the endpoint (a device path such as
// /dev/ttyUSB0).
func New(deps adapter.Deps, opts Options) *Adapter {
	if opts.BaudRate == 0 {
		opts.BaudRate = defaultBaudRate
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.Codec == nil {
		opts.Codec = wirecodec.NewJSON()
	}

	a := &Adapter{
		Base:             adapter.NewBase(deps.ID, ProtocolName, deps.Endpoint, deps.Logger),
		baudRate:         opts.BaudRate,
		handshakeTimeout: opts.HandshakeTimeout,
		codec:            opts.Codec,
		metrics:          newMetrics(opts.Registry, deps.ID),
		openPort: func(endpoint string, mode *goserial.Mode) (goserial.Port, error) {
			return goserial.Open(endpoint, mode)
		},
	}
	return a
}

// Connect opens the port, starts the read loop, and runs the config
// handshake. It returns only once the adapter is Connected or the handshake
// failed; ctx cancellation is a hard stop.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.State() != adapter.StateDisconnected {
		return errors.Wrap(errors.ErrAlreadyConnected, "serial", "Connect", "state check")
	}
	a.SetState(adapter.StateConnecting)

	port, err := a.openPort(a.Endpoint(), &goserial.Mode{BaudRate: a.baudRate})
	if err != nil {
		a.SetState(adapter.StateDisconnected)
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrPortUnavailable, err),
			"serial", "Connect", "port open")
	}

	readCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.port = port
	a.cancelRead = cancel
	a.readDone = make(chan struct{})
	a.configured = make(chan struct{})
	a.confOnce = sync.Once{}
	a.mu.Unlock()

	go a.readLoop(readCtx, port)

	a.SetState(adapter.StateConfiguring)
	if err := a.handshake(ctx); err != nil {
		a.teardown()
		return err
	}

	a.SetState(adapter.StateConnected)
	a.metrics.recordState(adapter.StateConnected)
	a.Logger().Info("serial radio connected",
		"endpoint", a.Endpoint(), "baud", a.baudRate)
	return nil
}

// handshake requests the radio's configuration and waits for the
// config-complete marker.
func (a *Adapter) handshake(ctx context.Context) error {
	want, err := a.codec.EncodeWantConfig()
	if err != nil {
		return errors.WrapFatal(err, "serial", "handshake", "encode config request")
	}
	if err := a.writeFrame(cmdData, want); err != nil {
		return err
	}

	select {
	case <-a.configured:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrHandshakeTimeout, ctx.Err()),
			"serial", "handshake", "config wait cancelled")
	case <-time.After(a.handshakeTimeout):
		return errors.WrapTransient(errors.ErrHandshakeTimeout,
			"serial", "handshake", "config wait")
	}
}

// Disconnect stops the read loop, releases the port, and frees the adapter's
// metric registrations so a replacement instance for the same radio can
// register its own.
func (a *Adapter) Disconnect() error {
	defer a.metrics.unregister()
	if a.State() == adapter.StateDisconnected {
		return nil
	}
	a.teardown()
	a.EmitDisconnected(nil)
	a.metrics.recordState(adapter.StateDisconnected)
	return nil
}

func (a *Adapter) teardown() {
	a.mu.Lock()
	port, cancel, done := a.port, a.cancelRead, a.readDone
	a.port, a.cancelRead, a.readDone = nil, nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if port != nil {
		_ = port.Close()
	}
	if done != nil {
		<-done
	}
	a.SetState(adapter.StateDisconnected)
}

// SendMessage encodes text for the channel and writes it as a data frame.
func (a *Adapter) SendMessage(ctx context.Context, text string, channel int, opts adapter.SendOptions) error {
	switch a.State() {
	case adapter.StateConnected:
	case adapter.StateConfiguring:
		return errors.Wrap(errors.ErrNotConfigured, "serial", "SendMessage", "state check")
	default:
		return errors.Wrap(errors.ErrNotConnected, "serial", "SendMessage", "state check")
	}
	if !a.HasChannel(channel) {
		return errors.Wrap(
			fmt.Errorf("%w: index %d", errors.ErrChannelNotFound, channel),
			"serial", "SendMessage", "channel lookup")
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "serial", "SendMessage", "context check")
	}

	enc, err := a.codec.EncodeText(channel, opts.Recipient, text)
	if err != nil {
		return errors.WrapInvalid(err, "serial", "SendMessage", "encode")
	}
	if err := a.writeFrame(cmdData, enc.Payload); err != nil {
		return err
	}

	a.CountSent()
	a.metrics.framesSent()
	return nil
}

// writeFrame escapes and delimits one tagged frame onto the port.
func (a *Adapter) writeFrame(tag byte, payload []byte) error {
	a.mu.Lock()
	port := a.port
	a.mu.Unlock()
	if port == nil {
		return errors.Wrap(errors.ErrNotConnected, "serial", "writeFrame", "port check")
	}

	frame := framing.EncodeFrame(append([]byte{tag}, payload...))
	if _, err := port.Write(frame); err != nil {
		a.CountError()
		a.metrics.portErrors()
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
			"serial", "writeFrame", "port write")
	}
	return nil
}

// readLoop pumps port bytes through the streaming decoder. Read errors end
// the loop and surface as a disconnect unless a teardown is in progress.
func (a *Adapter) readLoop(ctx context.Context, port goserial.Port) {
	a.mu.Lock()
	done := a.readDone
	a.mu.Unlock()
	defer close(done)

	var decoder framing.StreamDecoder
	buf := make([]byte, 1024)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Decode(buf[:n]) {
				a.handleFrame(frame)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.metrics.portErrors()
			a.EmitError(errors.WrapTransient(
				fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
				"serial", "readLoop", "port read"))
			a.EmitDisconnected(err)
			a.metrics.recordState(adapter.StateDisconnected)
			return
		}
	}
}

// handleFrame dispatches one decoded frame by command tag.
func (a *Adapter) handleFrame(frame []byte) {
	if len(frame) < 1 {
		a.Logger().Debug("empty frame discarded")
		return
	}
	tag, payload := frame[0], frame[1:]
	a.metrics.framesDecoded()

	switch tag {
	case cmdReady:
		a.Logger().Debug("radio signalled ready")
	case cmdFrequency:
		if len(payload) < 4 {
			a.Logger().Warn("frequency frame too short", "len", len(payload))
			return
		}
		a.mu.Lock()
		a.frequencyHz = binary.BigEndian.Uint32(payload)
		a.mu.Unlock()
		a.Logger().Info("radio frequency", "hz", binary.BigEndian.Uint32(payload))
	case cmdData:
		a.handleData(payload)
	default:
		a.Logger().Warn("unknown command tag", "tag", fmt.Sprintf("0x%02X", tag))
	}
}

// handleData decodes a codec payload and surfaces the result. Parse errors
// discard the unit; the connection stays up.
func (a *Adapter) handleData(payload []byte) {
	frame, err := a.codec.DecodeFromRadio(payload)
	if err != nil {
		a.Logger().Warn("payload discarded", "error", err)
		a.metrics.parseErrors()
		return
	}

	switch {
	case frame.Message != nil:
		a.EmitMessage(frame.Message)
		a.metrics.framesReceived()
	case frame.NodeUpdate != nil:
		a.EmitNodeUpdate(frame.NodeID, *frame.NodeUpdate, frame.Telemetry)
	case frame.Channels != nil:
		a.SetChannels(frame.Channels)
	case frame.Self != nil:
		a.SetMetadata(adapter.Metadata{
			Protocol:    ProtocolName,
			Endpoint:    a.Endpoint(),
			Description: a.describe(),
			Firmware:    frame.Self.Firmware,
			NodeID:      frame.Self.NodeID,
		})
	case frame.ConfigComplete:
		a.confOnce.Do(func() { close(a.configured) })
	}
}

func (a *Adapter) describe() string {
	a.mu.Lock()
	hz := a.frequencyHz
	a.mu.Unlock()
	if hz == 0 {
		return "framed serial radio"
	}
	return fmt.Sprintf("framed serial radio @ %.3f MHz", float64(hz)/1e6)
}
