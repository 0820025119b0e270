// Package router relays canonical messages between adapters. Routes declare
// source-set to target-set forwarding with optional allow/deny filters; a
// time-windowed dedup index keeps replays of one transmission from looping
// between bridged radios.
package router

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
)

// DefaultDedupWindow is the span within which identical-id messages are
// suppressed.
const DefaultDedupWindow = 60 * time.Second

// FilterAction decides what a matching filter does.
type FilterAction string

const (
	ActionAllow FilterAction = "allow"
	ActionDeny  FilterAction = "deny"
)

// Filter is one allow/deny rule. A filter matches a message when every
// specified criterion matches; empty criteria are wildcards. The first
// matching filter on a route wins; a message matching none is allowed.
type Filter struct {
	Action   FilterAction          `json:"action"`
	Channels []int                 `json:"channels,omitempty"`
	Senders  []string              `json:"senders,omitempty"`
	Kinds    []message.PayloadKind `json:"kinds,omitempty"`
}

// matches reports whether the filter's criteria all hold for msg.
func (f Filter) matches(msg *message.Canonical) bool {
	if len(f.Channels) > 0 && !slices.Contains(f.Channels, msg.Channel) {
		return false
	}
	if len(f.Senders) > 0 && !slices.Contains(f.Senders, message.NormalizeNodeID(msg.Sender)) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, msg.Kind) {
		return false
	}
	return true
}

// Route declares that messages from any source adapter replay onto every
// target adapter, subject to its filters. Routes are read-only at dispatch
// time; edits go through ConfigureRoutes.
type Route struct {
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Sources []string `json:"sources"`
	Targets []string `json:"targets"`
	Filters []Filter `json:"filters,omitempty"`
}

// permits evaluates the route's filters; first match wins, default allow.
func (r Route) permits(msg *message.Canonical) bool {
	for _, f := range r.Filters {
		if f.matches(msg) {
			return f.Action == ActionAllow
		}
	}
	return true
}

// Lookup resolves an adapter id to its live adapter. The router never holds
// adapters directly so reconnection can swap instances underneath it.
type Lookup func(id string) (adapter.Adapter, bool)

// Options tunes the router.
type Options struct {
	DedupWindow time.Duration
	Logger      *slog.Logger
	Metrics     *metric.Metrics
}

// Router applies the route table and dedup window to inbound messages.
type Router struct {
	lookup  Lookup
	logger  *slog.Logger
	metrics *metric.Metrics

	mu     sync.RWMutex
	routes []Route

	dedup  *dedupIndex
	window time.Duration
}

// New creates a router dispatching through lookup.
func New(lookup Lookup, opts Options) *Router {
	if opts.DedupWindow == 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		lookup:  lookup,
		logger:  opts.Logger.With("component", "router"),
		metrics: opts.Metrics,
		dedup:   newDedupIndex(opts.DedupWindow),
		window:  opts.DedupWindow,
	}
}

// ConfigureRoutes atomically replaces the route table. In-flight dispatches
// finish against the table they started with.
func (r *Router) ConfigureRoutes(routes []Route) {
	cp := make([]Route, len(routes))
	copy(cp, routes)

	r.mu.Lock()
	r.routes = cp
	r.mu.Unlock()

	r.logger.Info("route table configured", "routes", len(cp))
}

// Routes returns a snapshot of the route table.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// OnMessage relays one received message. Duplicates inside the dedup window
// are counted and dropped; filter rejects are normal no-ops, not errors.
// On forward the message is marked and each target id recorded.
func (r *Router) OnMessage(ctx context.Context, sourceID string, msg *message.Canonical) {
	if r.dedup.Check(msg.ID) {
		r.logger.Debug("duplicate suppressed", "id", msg.ID, "source", sourceID)
		if r.metrics != nil {
			r.metrics.RecordDuplicate()
		}
		return
	}

	r.mu.RLock()
	routes := r.routes
	r.mu.RUnlock()

	// Union of permitted targets across contributing routes, minus the
	// source itself.
	targets := make(map[string]bool)
	for _, route := range routes {
		if !route.Enabled || !slices.Contains(route.Sources, sourceID) {
			continue
		}
		permitted := route.permits(msg)
		for _, target := range route.Targets {
			if target == sourceID {
				continue
			}
			if permitted {
				targets[target] = true
			} else if _, ok := targets[target]; !ok {
				targets[target] = false
			}
		}
	}

	for target, permitted := range targets {
		if !permitted {
			r.logger.Debug("filtered", "id", msg.ID, "source", sourceID, "target", target)
			if r.metrics != nil {
				r.metrics.RecordFiltered()
			}
			continue
		}
		r.forward(ctx, sourceID, target, msg)
	}
}

func (r *Router) forward(ctx context.Context, sourceID, target string, msg *message.Canonical) {
	a, ok := r.lookup(target)
	if !ok {
		r.logger.Warn("target adapter unknown", "target", target)
		return
	}

	err := a.SendMessage(ctx, msg.Text, msg.Channel, adapter.SendOptions{
		Recipient: msg.Recipient,
		DestHash:  msg.DestHash,
	})
	if err != nil {
		r.logger.Warn("forward failed",
			"id", msg.ID, "source", sourceID, "target", target, "error", err)
		return
	}

	msg.Forwarded = true
	msg.TargetIDs = append(msg.TargetIDs, target)
	if r.metrics != nil {
		r.metrics.RecordForwarded(sourceID, target)
	}
	r.logger.Debug("forwarded", "id", msg.ID, "source", sourceID, "target", target)
}

// Run prunes the dedup index periodically until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.window / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.dedup.Prune(); n > 0 {
				r.logger.Debug("dedup index pruned", "evicted", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
