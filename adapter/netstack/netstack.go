// Package netstack implements the adapter for the external delay-tolerant
// network stack. The stack runs as a long-lived subprocess driven over
// newline-delimited JSON (see the ipc package); one process instance serves
// the whole gateway, so the session is an explicitly owned singleton handed
// to the adapter rather than something the adapter spawns ad hoc.
package netstack

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/ipc"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

// ProtocolName identifies this adapter to the detector and registry.
const ProtocolName = "netstack"

const (
	defaultInitTimeout      = 30 * time.Second
	defaultAnnounceInterval = 10 * time.Minute
	defaultPingInterval     = 30 * time.Second
)

// Options tunes the netstack adapter.
type Options struct {
	// Command and Args launch the external stack process.
	Command string
	Args    []string

	InitTimeout      time.Duration
	AnnounceInterval time.Duration
	PingInterval     time.Duration

	// startSession is replaceable in tests.
	startSession func(ctx context.Context, a *Adapter) (*ipc.Session, error)
}

// Adapter bridges the external network stack into the gateway.
type Adapter struct {
	*adapter.Base

	command          string
	args             []string
	initTimeout      time.Duration
	announceInterval time.Duration
	pingInterval     time.Duration

	startSession func(ctx context.Context, a *Adapter) (*ipc.Session, error)

	mu        sync.Mutex
	session   *ipc.Session
	cancelBg  context.CancelFunc
	bgDone    chan struct{}
	destHash  string
	announces atomic.Int64

	lastPong atomic.Int64 // unix nanos
}

// wire-level data bodies
type initData struct {
	Identity struct {
		Hash string `json:"hash"`
		Name string `json:"name"`
	} `json:"identity"`
	Destination struct {
		Hash string `json:"hash"`
		Name string `json:"name"`
	} `json:"destination"`
}

type messageData struct {
	FromHash string  `json:"from_hash"`
	ToHash   string  `json:"to_hash"`
	Text     string  `json:"text"`
	RSSI     float64 `json:"rssi"`
	SNR      float64 `json:"snr"`
}

type linkData struct {
	DestinationHash string `json:"destination_hash"`
	LinkID          string `json:"link_id"`
}

type sendFailedData struct {
	DestinationHash string `json:"destination_hash"`
	Error           string `json:"error"`
}

// New creates a netstack adapter. The endpoint is a virtual descriptor
// (e.g. "virtual:rns"); the real resource is the subprocess.
func New(deps adapter.Deps, opts Options) *Adapter {
	if opts.InitTimeout == 0 {
		opts.InitTimeout = defaultInitTimeout
	}
	if opts.AnnounceInterval == 0 {
		opts.AnnounceInterval = defaultAnnounceInterval
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = defaultPingInterval
	}

	a := &Adapter{
		Base:             adapter.NewBase(deps.ID, ProtocolName, deps.Endpoint, deps.Logger),
		command:          opts.Command,
		args:             opts.Args,
		initTimeout:      opts.InitTimeout,
		announceInterval: opts.AnnounceInterval,
		pingInterval:     opts.PingInterval,
		startSession:     opts.startSession,
	}
	if a.startSession == nil {
		a.startSession = func(ctx context.Context, a *Adapter) (*ipc.Session, error) {
			return ipc.Start(ctx, a.Logger(), a.command, a.args...)
		}
	}
	return a
}

// Connect spawns the stack process and waits for its init event. Connected
// means the stack has announced its identity and destination.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.State() != adapter.StateDisconnected {
		return errors.Wrap(errors.ErrAlreadyConnected, "netstack", "Connect", "state check")
	}
	a.SetState(adapter.StateConnecting)

	session, err := a.startSession(ctx, a)
	if err != nil {
		a.SetState(adapter.StateDisconnected)
		return err
	}

	a.SetState(adapter.StateConfiguring)
	if err := a.awaitInit(ctx, session); err != nil {
		_ = session.Stop()
		a.SetState(adapter.StateDisconnected)
		return err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.session = session
	a.cancelBg = cancel
	a.bgDone = make(chan struct{})
	a.mu.Unlock()

	go a.run(bgCtx, session)

	a.SetState(adapter.StateConnected)
	a.Logger().Info("network stack connected", "destination", a.destHash)
	return nil
}

// awaitInit consumes session events until the init event arrives or the
// initialization timeout expires. Banner lines before init are expected.
func (a *Adapter) awaitInit(ctx context.Context, session *ipc.Session) error {
	deadline := time.After(a.initTimeout)
	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				return errors.WrapTransient(errors.ErrSessionTerminated,
					"netstack", "awaitInit", "session closed before init")
			}
			switch ev.Kind {
			case ipc.EventInit:
				return a.handleInit(ev.Data)
			case ipc.EventExit:
				return errors.WrapTransient(errors.ErrSessionTerminated,
					"netstack", "awaitInit", "process exited before init")
			default:
				// Startup banners and early transport events are fine here.
			}
		case <-ctx.Done():
			return errors.WrapTransient(
				fmt.Errorf("%w: %v", errors.ErrInitTimeout, ctx.Err()),
				"netstack", "awaitInit", "init wait cancelled")
		case <-deadline:
			return errors.WrapTransient(errors.ErrInitTimeout,
				"netstack", "awaitInit", "init wait")
		}
	}
}

func (a *Adapter) handleInit(data json.RawMessage) error {
	var init initData
	if err := json.Unmarshal(data, &init); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: init body: %v", errors.ErrParsingFailed, err),
			"netstack", "handleInit", "unmarshal")
	}

	a.mu.Lock()
	a.destHash = init.Destination.Hash
	a.mu.Unlock()

	a.SetMetadata(adapter.Metadata{
		Protocol:    ProtocolName,
		Endpoint:    a.Endpoint(),
		Description: fmt.Sprintf("delay-tolerant network stack (%s)", init.Destination.Name),
		NodeID:      init.Destination.Hash,
	})
	// The stack addresses by destination hash, not channel index; a single
	// logical channel stands in for "the network".
	a.SetChannels([]message.ChannelDescriptor{{
		Index:       0,
		Name:        init.Destination.Name,
		EqualityKey: init.Destination.Hash,
	}})
	return nil
}

// Disconnect shuts the stack process down. Per the session contract the
// process is never restarted implicitly; a later Connect spawns a new one.
func (a *Adapter) Disconnect() error {
	if a.State() == adapter.StateDisconnected {
		return nil
	}

	a.mu.Lock()
	session, cancel, done := a.session, a.cancelBg, a.bgDone
	a.session, a.cancelBg, a.bgDone = nil, nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil {
		_ = session.Stop()
	}
	if done != nil {
		<-done
	}

	a.SetState(adapter.StateDisconnected)
	a.EmitDisconnected(nil)
	return nil
}

// SendMessage sends text to a destination hash. The stack has no channel
// indexing; the destination comes from SendOptions.
func (a *Adapter) SendMessage(ctx context.Context, text string, channel int, opts adapter.SendOptions) error {
	switch a.State() {
	case adapter.StateConnected:
	case adapter.StateConfiguring:
		return errors.Wrap(errors.ErrNotConfigured, "netstack", "SendMessage", "state check")
	default:
		return errors.Wrap(errors.ErrNotConnected, "netstack", "SendMessage", "state check")
	}
	if !a.HasChannel(channel) {
		return errors.Wrap(
			fmt.Errorf("%w: index %d", errors.ErrChannelNotFound, channel),
			"netstack", "SendMessage", "channel lookup")
	}

	dest := opts.DestHash
	if dest == "" {
		dest = opts.Recipient
	}
	if dest == "" || dest == message.Broadcast {
		return errors.WrapInvalid(
			fmt.Errorf("destination hash required for network stack send"),
			"netstack", "SendMessage", "destination check")
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "netstack", "SendMessage", "context check")
	}

	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return errors.Wrap(errors.ErrNotConnected, "netstack", "SendMessage", "session check")
	}

	err := session.Send(ipc.CommandSend, map[string]any{
		"destination_hash": dest,
		"text":             text,
	})
	if err != nil {
		a.CountError()
		return err
	}

	a.CountSent()
	return nil
}

// Announces reports how many announce commands have been issued, for
// heartbeat observability.
func (a *Adapter) Announces() int64 { return a.announces.Load() }

// run pumps session events and drives the announce/heartbeat cadence until
// the background context is cancelled or the process exits.
func (a *Adapter) run(ctx context.Context, session *ipc.Session) {
	a.mu.Lock()
	done := a.bgDone
	a.mu.Unlock()
	defer close(done)

	announce := time.NewTicker(a.announceInterval)
	defer announce.Stop()
	ping := time.NewTicker(a.pingInterval)
	defer ping.Stop()

	a.lastPong.Store(time.Now().UnixNano())

	// First announce goes out immediately so peers learn about us without
	// waiting a full cadence.
	a.sendAnnounce(session)

	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			if exited := a.handleEvent(ev); exited {
				return
			}
		case <-announce.C:
			a.sendAnnounce(session)
		case <-ping.C:
			a.sendPing(session)
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent dispatches one session event; reports whether the process
// exited.
func (a *Adapter) handleEvent(ev ipc.Event) bool {
	switch ev.Kind {
	case ipc.EventMessage:
		a.handleMessage(ev)
	case ipc.EventLinkEstablished:
		var link linkData
		if err := json.Unmarshal(ev.Data, &link); err == nil {
			a.EmitNodeUpdate(link.DestinationHash, message.NodeUpdate{
				LongName: "Link " + link.DestinationHash,
			}, false)
		}
	case ipc.EventAnnounceSent:
		a.Logger().Debug("announce confirmed")
	case ipc.EventPong:
		a.lastPong.Store(time.Now().UnixNano())
	case ipc.EventSendSuccess:
		a.Logger().Debug("send confirmed")
	case ipc.EventSendFailed:
		var fail sendFailedData
		_ = json.Unmarshal(ev.Data, &fail)
		a.EmitError(errors.WrapTransient(
			fmt.Errorf("send to %s failed: %s", fail.DestinationHash, fail.Error),
			"netstack", "handleEvent", "send"))
	case ipc.EventTransportAdded, ipc.EventTransportRemoved, ipc.EventTransportsList:
		a.Logger().Info("stack transport change", "kind", string(ev.Kind))
	case ipc.EventTransportError:
		a.EmitError(errors.WrapTransient(
			fmt.Errorf("stack transport error"),
			"netstack", "handleEvent", "transport"))
	case ipc.EventInfo:
		// Already logged by the session.
	case ipc.EventExit:
		a.SetState(adapter.StateDisconnected)
		a.EmitDisconnected(ev.Err)
		return true
	}
	return false
}

func (a *Adapter) handleMessage(ev ipc.Event) {
	var body messageData
	if err := json.Unmarshal(ev.Data, &body); err != nil {
		a.Logger().Warn("message body discarded", "error", err)
		return
	}

	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	a.EmitMessage(&message.Canonical{
		ID:        message.DeriveID(body.FromHash, 0, body.Text),
		Timestamp: ts,
		Sender:    body.FromHash,
		Recipient: body.ToHash,
		Channel:   0,
		DestHash:  body.FromHash,
		Kind:      message.KindText,
		Text:      body.Text,
		Signal:    message.SignalMetrics{RSSI: body.RSSI, SNR: body.SNR},
	})
}

func (a *Adapter) sendAnnounce(session *ipc.Session) {
	if err := session.Send(ipc.CommandAnnounce, map[string]any{}); err != nil {
		a.Logger().Warn("announce not delivered", "error", err)
		return
	}
	a.announces.Add(1)
}

func (a *Adapter) sendPing(session *ipc.Session) {
	// A stack that missed two consecutive pongs is degraded; log it, never
	// restart from here.
	overdue := time.Since(time.Unix(0, a.lastPong.Load()))
	if overdue > 2*a.pingInterval {
		a.Logger().Warn("stack heartbeat overdue", "since_last_pong", overdue)
	}
	if err := session.Send(ipc.CommandPing, map[string]any{}); err != nil {
		a.Logger().Warn("ping not delivered", "error", err)
	}
}
