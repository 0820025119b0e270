// Package natsfeed publishes gateway events onto NATS subjects for external
// dashboards and tooling. Publishing is fire-and-forget: a failed publish is
// logged and counted, never surfaced to the dispatch path.
package natsfeed

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/catalog"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

// Subject tree published by the gateway.
const (
	subjectPrefix   = "meshbridge"
	subjectMessages = subjectPrefix + ".msg."
	subjectNodes    = subjectPrefix + ".node."
	subjectAdapters = subjectPrefix + ".adapter."
)

// Conn is the publish surface natsfeed needs; *natsclient.Client satisfies it.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher fans gateway events out to NATS. A nil Publisher or nil
// connection is a no-op, so callers never branch on whether the feed is
// configured.
type Publisher struct {
	conn   Conn
	logger *slog.Logger
}

// New creates a publisher over conn. Pass nil conn to disable the feed.
func New(conn Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger.With("component", "natsfeed"),
	}
}

// Enabled reports whether events actually go anywhere.
func (p *Publisher) Enabled() bool {
	return p != nil && p.conn != nil
}

type adapterStateEvent struct {
	AdapterID string    `json:"adapterId"`
	Protocol  string    `json:"protocol"`
	State     string    `json:"state"`
	Time      time.Time `json:"time"`
}

type nodeEvent struct {
	SourceID string        `json:"sourceId"`
	Node     catalog.Entry `json:"node"`
}

type messageEvent struct {
	SourceID string             `json:"sourceId"`
	Message  *message.Canonical `json:"message"`
}

// PublishMessage publishes a received canonical message.
func (p *Publisher) PublishMessage(sourceID string, msg *message.Canonical) {
	p.publish(subjectMessages+sourceID, messageEvent{SourceID: sourceID, Message: msg})
}

// PublishNode publishes a node catalog update.
func (p *Publisher) PublishNode(sourceID string, entry catalog.Entry) {
	p.publish(subjectNodes+sourceID, nodeEvent{SourceID: sourceID, Node: entry})
}

// PublishAdapterState publishes an adapter state transition.
func (p *Publisher) PublishAdapterState(adapterID, protocol string, state adapter.State) {
	p.publish(subjectAdapters+adapterID, adapterStateEvent{
		AdapterID: adapterID,
		Protocol:  protocol,
		State:     state.String(),
		Time:      time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, payload any) {
	if !p.Enabled() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("feed payload marshal failed", "subject", subject, "error", err)
		return
	}

	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("feed publish failed", "subject", subject, "error", err)
	}
}
