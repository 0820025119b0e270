// Package wsfeed serves gateway events to dashboard clients over websockets.
// Broadcast never blocks on a client: each connection has a bounded outbound
// queue and a client that falls behind is dropped.
package wsfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/pkg/buffer"
)

const (
	defaultPath     = "/ws"
	sendQueueSize   = 64
	historySize     = 32 // recent frames replayed to new clients
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxInboundBytes = 512 // clients only send pongs and tiny control frames
)

// Envelope wraps every event sent to clients.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Hub accepts websocket clients and fans broadcast events out to them.
type Hub struct {
	addr   string
	path   string
	logger *slog.Logger

	upgrader websocket.Upgrader
	server   *http.Server
	ln       net.Listener

	mu      sync.Mutex
	clients map[*client]struct{}
	history buffer.Buffer[[]byte]

	metrics *metrics
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Options tunes the hub.
type Options struct {
	Path     string
	Logger   *slog.Logger
	Registry metric.MetricsRegistrar
}

// NewHub creates a hub listening on addr when started.
func NewHub(addr string, opts Options) *Hub {
	if opts.Path == "" {
		opts.Path = defaultPath
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	history, _ := buffer.NewCircular[[]byte](historySize)

	return &Hub{
		addr:   addr,
		path:   opts.Path,
		logger: opts.Logger.With("component", "wsfeed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		history: history,
		metrics: newMetrics(opts.Registry),
	}
}

// Start binds the listener and begins serving in the background.
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return errors.WrapTransient(err, "Hub", "Start", "bind "+h.addr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(h.path, h.handleUpgrade)
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	h.ln = ln

	h.logger.Info("websocket feed listening", "addr", ln.Addr().String(), "path", h.path)
	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error("websocket feed server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, useful when addr was ":0".
func (h *Hub) Addr() string {
	if h.ln == nil {
		return h.addr
	}
	return h.ln.Addr().String()
}

// Stop disconnects all clients and shuts the server down.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// Broadcast queues an event for every connected client. Clients whose queue
// is full are dropped rather than blocking the caller.
func (h *Hub) Broadcast(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("broadcast payload marshal failed", "type", eventType, "error", err)
		return
	}
	frame, err := json.Marshal(Envelope{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   data,
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_ = h.history.Write(frame)

	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping slow websocket client", "type", eventType)
			h.metrics.clientDropped()
			delete(h.clients, c)
			c.close()
		}
	}
	h.metrics.broadcast(eventType)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendQueueSize)}

	h.mu.Lock()
	// Replay recent events so the client starts with context. Queued under
	// the hub lock so a concurrent Broadcast cannot interleave frames.
	for _, frame := range h.history.Snapshot() {
		c.send <- frame
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.clientConnected(n)
	h.logger.Info("websocket client connected", "remote", r.RemoteAddr, "clients", n)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		h.metrics.clientDisconnected(n)
	}
	c.close()
}

// writePump drains the client queue and keeps the connection alive with
// pings. Exits on any write failure.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the feed is one-way. Its real job is
// noticing closes and answering the pong deadline.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
