// Package httpapi implements the WiFi radio adapter. The radio exposes a
// small HTTP API: outbound payloads are POSTed to it, inbound payloads are
// fetched by polling. Each payload body is one wire codec envelope.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/wirecodec"
)

// ProtocolName identifies this adapter to the detector and registry.
const ProtocolName = "http-api"

const (
	fromRadioPath = "/api/v1/fromradio"
	toRadioPath   = "/api/v1/toradio"
)

const (
	defaultPollInterval     = 2 * time.Second
	defaultHandshakeTimeout = 15 * time.Second
	defaultRequestTimeout   = 5 * time.Second
)

// Options tunes the HTTP adapter.
type Options struct {
	PollInterval     time.Duration
	HandshakeTimeout time.Duration
	Codec            wirecodec.Codec
	Registry         *metric.MetricsRegistry

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Adapter drives one radio over its HTTP API.
type Adapter struct {
	*adapter.Base

	baseURL          string
	pollInterval     time.Duration
	handshakeTimeout time.Duration
	codec            wirecodec.Codec
	client           *http.Client
	metrics          *metrics

	mu         sync.Mutex
	cancelPoll context.CancelFunc
	pollDone   chan struct{}

	configured chan struct{}
	confOnce   sync.Once
}

// New creates an HTTP adapter for the endpoint (host or URL of the radio).
func New(deps adapter.Deps, opts Options) *Adapter {
	if opts.PollInterval == 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.Codec == nil {
		opts.Codec = wirecodec.NewJSON()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultRequestTimeout}
	}

	base := deps.Endpoint
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")

	return &Adapter{
		Base:             adapter.NewBase(deps.ID, ProtocolName, deps.Endpoint, deps.Logger),
		baseURL:          base,
		pollInterval:     opts.PollInterval,
		handshakeTimeout: opts.HandshakeTimeout,
		codec:            opts.Codec,
		client:           opts.Client,
		metrics:          newMetrics(opts.Registry, deps.ID),
	}
}

// Connect requests the radio's configuration and polls until the
// config-complete marker arrives.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.State() != adapter.StateDisconnected {
		return errors.Wrap(errors.ErrAlreadyConnected, "httpapi", "Connect", "state check")
	}
	a.SetState(adapter.StateConnecting)

	want, err := a.codec.EncodeWantConfig()
	if err != nil {
		a.SetState(adapter.StateDisconnected)
		return errors.WrapFatal(err, "httpapi", "Connect", "encode config request")
	}
	if err := a.post(ctx, want); err != nil {
		a.SetState(adapter.StateDisconnected)
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrDeviceUnreachable, err),
			"httpapi", "Connect", "config request")
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancelPoll = cancel
	a.pollDone = make(chan struct{})
	a.configured = make(chan struct{})
	a.confOnce = sync.Once{}
	a.mu.Unlock()

	a.SetState(adapter.StateConfiguring)
	go a.pollLoop(pollCtx)

	select {
	case <-a.configured:
	case <-ctx.Done():
		a.teardown()
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrHandshakeTimeout, ctx.Err()),
			"httpapi", "Connect", "config wait cancelled")
	case <-time.After(a.handshakeTimeout):
		a.teardown()
		return errors.WrapTransient(errors.ErrHandshakeTimeout,
			"httpapi", "Connect", "config wait")
	}

	a.SetState(adapter.StateConnected)
	a.Logger().Info("http radio connected", "url", a.baseURL, "poll_interval", a.pollInterval)
	return nil
}

// Disconnect stops polling and frees the adapter's metric registrations so a
// replacement instance for the same radio can register its own. The radio
// keeps no session state to release.
func (a *Adapter) Disconnect() error {
	defer a.metrics.unregister()
	if a.State() == adapter.StateDisconnected {
		return nil
	}
	a.teardown()
	a.EmitDisconnected(nil)
	return nil
}

func (a *Adapter) teardown() {
	a.mu.Lock()
	cancel, done := a.cancelPoll, a.pollDone
	a.cancelPoll, a.pollDone = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	a.SetState(adapter.StateDisconnected)
}

// SendMessage posts one encoded text payload to the radio.
func (a *Adapter) SendMessage(ctx context.Context, text string, channel int, opts adapter.SendOptions) error {
	switch a.State() {
	case adapter.StateConnected:
	case adapter.StateConfiguring:
		return errors.Wrap(errors.ErrNotConfigured, "httpapi", "SendMessage", "state check")
	default:
		return errors.Wrap(errors.ErrNotConnected, "httpapi", "SendMessage", "state check")
	}
	if !a.HasChannel(channel) {
		return errors.Wrap(
			fmt.Errorf("%w: index %d", errors.ErrChannelNotFound, channel),
			"httpapi", "SendMessage", "channel lookup")
	}

	enc, err := a.codec.EncodeText(channel, opts.Recipient, text)
	if err != nil {
		return errors.WrapInvalid(err, "httpapi", "SendMessage", "encode")
	}
	if err := a.post(ctx, enc.Payload); err != nil {
		a.CountError()
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrDeviceUnreachable, err),
			"httpapi", "SendMessage", "post")
	}

	a.CountSent()
	return nil
}

// pollLoop fetches pending payloads on a fixed tick. Consecutive poll
// failures beyond the tolerance surface as a disconnect.
func (a *Adapter) pollLoop(ctx context.Context) {
	a.mu.Lock()
	done := a.pollDone
	a.mu.Unlock()
	defer close(done)

	const failureTolerance = 3

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	failures := 0
	// First poll immediately so the handshake isn't a tick late.
	for {
		if err := a.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			a.metrics.pollErrors()
			a.Logger().Warn("poll failed", "error", err, "consecutive", failures)
			if failures >= failureTolerance {
				a.EmitError(errors.WrapTransient(
					fmt.Errorf("%w: %v", errors.ErrDeviceUnreachable, err),
					"httpapi", "pollLoop", "poll"))
				a.EmitDisconnected(err)
				return
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll drains the radio's pending payload queue once.
func (a *Adapter) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+fromRadioPath, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	a.metrics.polls()

	var payloads []json.RawMessage
	if err := json.Unmarshal(body, &payloads); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}

	for _, p := range payloads {
		a.handlePayload(p)
	}
	return nil
}

func (a *Adapter) handlePayload(payload []byte) {
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
			Description: "wifi radio via http api",
			Firmware:    frame.Self.Firmware,
			NodeID:      frame.Self.NodeID,
		})
	case frame.ConfigComplete:
		a.confOnce.Do(func() { close(a.configured) })
	}
}

func (a *Adapter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+toRadioPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
