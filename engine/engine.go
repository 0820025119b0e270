// Package engine is the gateway's composition root. It attaches each
// configured radio through protocol detection, pumps adapter events into the
// router and the optional feeds, and supervises reconnection.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/config"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/detect"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/feed/natsfeed"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/feed/wsfeed"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/health"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/pkg/retry"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/router"
)

// Deps carries the engine's collaborators. Config and Registry are required;
// the feeds and metrics are optional and nil disables them.
type Deps struct {
	Config   *config.SafeConfig
	Registry *adapter.Registry
	Logger   *slog.Logger
	Metrics  *metric.Metrics
	NATSFeed *natsfeed.Publisher
	WSFeed   *wsfeed.Hub
	Health   *health.Monitor
}

// Engine runs the gateway: one supervisor goroutine per configured radio plus
// the router's dedup maintenance loop.
type Engine struct {
	cfg      *config.SafeConfig
	logger   *slog.Logger
	registry *adapter.Registry
	detector *detect.Detector
	router   *router.Router
	metrics  *metric.Metrics
	natsFeed *natsfeed.Publisher
	wsFeed   *wsfeed.Hub
	health   *health.Monitor

	mu       sync.RWMutex
	adapters map[string]adapter.Adapter
}

// New wires an engine from deps.
func New(deps Deps) (*Engine, error) {
	if deps.Config == nil {
		return nil, errors.WrapInvalid(
			stderrors.New("config is required"), "engine", "New", "validate deps")
	}
	if deps.Registry == nil {
		return nil, errors.WrapInvalid(
			stderrors.New("registry is required"), "engine", "New", "validate deps")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := &Engine{
		cfg:      deps.Config,
		logger:   deps.Logger.With("component", "engine"),
		registry: deps.Registry,
		metrics:  deps.Metrics,
		natsFeed: deps.NATSFeed,
		wsFeed:   deps.WSFeed,
		health:   deps.Health,
		adapters: make(map[string]adapter.Adapter),
	}

	cfg := deps.Config.Get()
	e.router = router.New(e.lookupAdapter, router.Options{
		DedupWindow: cfg.Gateway.DedupWindow(),
		Logger:      deps.Logger,
		Metrics:     deps.Metrics,
	})
	e.detector = detect.New(deps.Registry, detect.Options{
		Logger:  deps.Logger,
		Metrics: deps.Metrics,
	})

	return e, nil
}

// Router exposes the route table for runtime reconfiguration.
func (e *Engine) Router() *router.Router { return e.router }

// Adapter returns the live adapter attached for a radio name.
func (e *Engine) Adapter(name string) (adapter.Adapter, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.adapters[name]
	return a, ok
}

// Adapters returns a snapshot of all live adapters.
func (e *Engine) Adapters() []adapter.Adapter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]adapter.Adapter, 0, len(e.adapters))
	for _, a := range e.adapters {
		out = append(out, a)
	}
	return out
}

func (e *Engine) lookupAdapter(id string) (adapter.Adapter, bool) {
	return e.Adapter(id)
}

// Run attaches every configured radio and blocks until ctx is cancelled and
// all supervisors have shut down.
func (e *Engine) Run(ctx context.Context) error {
	cfg := e.cfg.Get()
	e.router.ConfigureRoutes(cfg.Routes)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.router.Run(ctx)
	}()

	for _, radio := range cfg.Radios {
		wg.Add(1)
		go func(r config.RadioConfig) {
			defer wg.Done()
			e.superviseRadio(ctx, cfg.Gateway, r)
		}(radio)
	}

	e.logger.Info("engine running", "radios", len(cfg.Radios), "routes", len(cfg.Routes))
	wg.Wait()
	e.logger.Info("engine stopped")
	return nil
}

// superviseRadio owns one radio for the engine's lifetime: detect, pump
// events, reconnect on loss per the gateway reconnect policy.
func (e *Engine) superviseRadio(ctx context.Context, gw config.GatewayConfig, radio config.RadioConfig) {
	logger := e.logger.With("adapter", radio.Name, "endpoint", radio.Endpoint)

	for {
		a, err := e.attach(ctx, gw, radio)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("radio attach abandoned", "error", err)
			}
			return
		}

		e.mu.Lock()
		e.adapters[radio.Name] = a
		e.mu.Unlock()
		e.publishAdapterState(a)
		logger.Info("radio attached", "protocol", a.ProtocolName())

		ctxAlive := e.pumpEvents(ctx, a)

		e.mu.Lock()
		delete(e.adapters, radio.Name)
		e.mu.Unlock()
		if err := a.Disconnect(); err != nil {
			logger.Warn("disconnect failed", "error", err)
		}
		e.publishAdapterState(a)

		if !ctxAlive {
			return
		}
		if !gw.AutoReconnect {
			logger.Info("link lost, auto-reconnect disabled")
			return
		}
		logger.Info("link lost, reconnecting")
	}
}

// attach runs detection under the reconnect policy: fixed delay between
// attempts, bounded by max attempts (0 = unlimited).
func (e *Engine) attach(ctx context.Context, gw config.GatewayConfig, radio config.RadioConfig) (adapter.Adapter, error) {
	deps := adapter.Deps{
		ID:       radio.Name,
		Endpoint: radio.Endpoint,
		Logger:   e.logger,
		Options:  radio.Options,
	}

	cfg := retry.Reconnect(gw.MaxReconnectAttempts, gw.ReconnectDelay)
	if gw.MaxReconnectAttempts == 0 {
		cfg.MaxAttempts = math.MaxInt32
	}
	if !gw.AutoReconnect {
		cfg.MaxAttempts = 1
	}

	return retry.DoWithResult(ctx, cfg, func() (adapter.Adapter, error) {
		a, err := e.detector.Detect(ctx, deps, radio.Protocol)
		if err != nil && stderrors.Is(err, errors.ErrUnknownProtocol) {
			// A pinned protocol that doesn't exist never resolves by retrying.
			return nil, retry.NonRetryable(err)
		}
		return a, err
	})
}

// pumpEvents consumes one attached adapter's stream until the link drops.
// Returns false when ctx was cancelled instead.
func (e *Engine) pumpEvents(ctx context.Context, a adapter.Adapter) bool {
	events := a.Events()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return true
			}
			if lost := e.handleEvent(ctx, a, ev); lost {
				return true
			}
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, a adapter.Adapter, ev adapter.Event) (lost bool) {
	switch ev.Kind {
	case adapter.EventMessage:
		if ev.Message == nil {
			return false
		}
		if e.metrics != nil {
			e.metrics.RecordReceived(ev.AdapterID)
		}
		e.router.OnMessage(ctx, ev.AdapterID, ev.Message)
		e.natsFeed.PublishMessage(ev.AdapterID, ev.Message)
		if e.wsFeed != nil {
			e.wsFeed.Broadcast("message", map[string]any{
				"adapterId": ev.AdapterID,
				"message":   ev.Message,
			})
		}

	case adapter.EventNodeInfo, adapter.EventTelemetry:
		if ev.Node == nil {
			return false
		}
		e.natsFeed.PublishNode(ev.AdapterID, *ev.Node)
		if e.wsFeed != nil {
			e.wsFeed.Broadcast("node", map[string]any{
				"adapterId": ev.AdapterID,
				"node":      ev.Node,
			})
		}
		if e.metrics != nil {
			e.metrics.RecordNodesKnown(ev.AdapterID, len(a.Nodes()))
		}

	case adapter.EventChannels:
		if e.wsFeed != nil {
			e.wsFeed.Broadcast("channels", map[string]any{
				"adapterId": ev.AdapterID,
				"channels":  ev.Channels,
			})
		}

	case adapter.EventError:
		if e.metrics != nil {
			e.metrics.RecordAdapterError(ev.AdapterID)
		}
		e.logger.Warn("adapter error", "adapter", ev.AdapterID, "error", ev.Err)

	case adapter.EventDisconnected:
		e.logger.Warn("adapter lost its link", "adapter", ev.AdapterID)
		return true
	}
	return false
}

func (e *Engine) publishAdapterState(a adapter.Adapter) {
	state := a.State()
	if e.metrics != nil {
		e.metrics.RecordAdapterState(a.ID(), a.ProtocolName(), int(state))
	}
	if e.health != nil {
		e.health.Update(a.ID(), health.FromAdapter(a))
	}
	e.natsFeed.PublishAdapterState(a.ID(), a.ProtocolName(), state)
	if e.wsFeed != nil {
		e.wsFeed.Broadcast("adapter", map[string]string{
			"adapterId": a.ID(),
			"protocol":  a.ProtocolName(),
			"state":     state.String(),
		})
	}
}

// SendMessage sends through a named attached radio, for control surfaces
// layered on the engine.
func (e *Engine) SendMessage(ctx context.Context, radioName, text string, channel int, opts adapter.SendOptions) error {
	a, ok := e.Adapter(radioName)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("radio %q not attached", radioName),
			"engine", "SendMessage", "resolve radio")
	}
	return a.SendMessage(ctx, text, channel, opts)
}
