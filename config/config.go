// Package config loads and validates the gateway configuration: the radios to
// bridge, the route table, dedup and reconnect tuning, and the optional NATS
// and websocket feed endpoints. Configuration is plain JSON with layered
// overrides and a small set of environment escapes.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/router"
)

// Config is the complete gateway configuration.
type Config struct {
	Version string         `json:"version,omitempty"`
	Gateway GatewayConfig  `json:"gateway"`
	Radios  []RadioConfig  `json:"radios"`
	Routes  []router.Route `json:"routes,omitempty"`
	NATS    NATSConfig     `json:"nats,omitempty"`
	Feed    FeedConfig     `json:"feed,omitempty"`
	Metrics MetricsConfig  `json:"metrics,omitempty"`
}

// GatewayConfig tunes routing and reconnect behavior.
type GatewayConfig struct {
	DedupWindowSeconds   int           `json:"dedup_window_seconds,omitempty"`
	AutoReconnect        bool          `json:"auto_reconnect"`
	ReconnectDelay       time.Duration `json:"reconnect_delay,omitempty"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts,omitempty"` // 0 = unlimited
}

// DedupWindow returns the configured dedup window as a duration.
func (g GatewayConfig) DedupWindow() time.Duration {
	return time.Duration(g.DedupWindowSeconds) * time.Second
}

// UnmarshalJSON accepts reconnect_delay as a duration string ("5s") or as
// nanoseconds, so hand-written files and Clone round-trips both parse.
func (g *GatewayConfig) UnmarshalJSON(data []byte) error {
	type alias GatewayConfig
	aux := struct {
		ReconnectDelay any `json:"reconnect_delay,omitempty"`
		*alias
	}{alias: (*alias)(g)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	d, err := decodeDuration(aux.ReconnectDelay)
	if err != nil {
		return fmt.Errorf("gateway.reconnect_delay: %w", err)
	}
	g.ReconnectDelay = d
	return nil
}

// RadioConfig declares one radio the gateway should attach.
type RadioConfig struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	// Protocol pins a transport protocol and bypasses auto-detection.
	Protocol string            `json:"protocol,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

// NATSConfig defines the optional NATS feed connection. The feed is disabled
// when no URL is configured.
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
}

// Enabled reports whether a NATS connection is configured.
func (n NATSConfig) Enabled() bool { return len(n.URLs) > 0 }

// UnmarshalJSON accepts reconnect_wait as a duration string or nanoseconds.
func (n *NATSConfig) UnmarshalJSON(data []byte) error {
	type alias NATSConfig
	aux := struct {
		ReconnectWait any `json:"reconnect_wait,omitempty"`
		*alias
	}{alias: (*alias)(n)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	d, err := decodeDuration(aux.ReconnectWait)
	if err != nil {
		return fmt.Errorf("nats.reconnect_wait: %w", err)
	}
	n.ReconnectWait = d
	return nil
}

// FeedConfig defines the optional websocket event feed. Disabled when the
// listen address is empty.
type FeedConfig struct {
	WebSocketAddr string `json:"websocket_addr,omitempty"`
}

// MetricsConfig defines the prometheus scrape endpoint.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"`
	Path string `json:"path,omitempty"`
}

func decodeDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(val)
	case float64:
		return time.Duration(val), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", v)
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Radios) == 0 {
		return errors.New("at least one radio is required")
	}

	names := make(map[string]bool, len(c.Radios))
	for i, r := range c.Radios {
		if r.Name == "" {
			return fmt.Errorf("radios[%d]: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("radios[%d]: duplicate name %q", i, r.Name)
		}
		names[r.Name] = true
		if r.Endpoint == "" {
			return fmt.Errorf("radio %s: endpoint is required", r.Name)
		}
	}

	if c.Gateway.DedupWindowSeconds < 0 {
		return errors.New("gateway.dedup_window_seconds cannot be negative")
	}
	if c.Gateway.ReconnectDelay < 0 {
		return errors.New("gateway.reconnect_delay cannot be negative")
	}
	if c.Gateway.MaxReconnectAttempts < 0 {
		return errors.New("gateway.max_reconnect_attempts cannot be negative")
	}

	for _, rt := range c.Routes {
		if rt.Name == "" {
			return errors.New("route name is required")
		}
		if len(rt.Sources) == 0 || len(rt.Targets) == 0 {
			return fmt.Errorf("route %s: sources and targets are required", rt.Name)
		}
		for _, id := range append(append([]string{}, rt.Sources...), rt.Targets...) {
			if !names[id] {
				return fmt.Errorf("route %s: unknown radio %q", rt.Name, id)
			}
		}
		for _, f := range rt.Filters {
			switch f.Action {
			case router.ActionAllow, router.ActionDeny:
			default:
				return fmt.Errorf("route %s: invalid filter action %q", rt.Name, f.Action)
			}
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns an indented JSON rendering.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// Radio looks up a radio declaration by name.
func (c *Config) Radio(name string) (RadioConfig, bool) {
	for _, r := range c.Radios {
		if r.Name == name {
			return r, true
		}
	}
	return RadioConfig{}, false
}

// SafeConfig provides thread-safe access to a shared configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg; a nil cfg becomes an empty Config.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update validates and atomically swaps in a new configuration.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// normalizeRadioNames lowercases radio names and route references so config
// files are case-insensitive about identifiers.
func (c *Config) normalizeRadioNames() {
	for i := range c.Radios {
		c.Radios[i].Name = strings.ToLower(c.Radios[i].Name)
	}
	for i := range c.Routes {
		for j := range c.Routes[i].Sources {
			c.Routes[i].Sources[j] = strings.ToLower(c.Routes[i].Sources[j])
		}
		for j := range c.Routes[i].Targets {
			c.Routes[i].Targets[j] = strings.ToLower(c.Routes[i].Targets[j])
		}
	}
}
