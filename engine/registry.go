package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/ble"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/httpapi"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/netstack"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/serial"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
)

// NewRegistry builds the protocol registry with every transport the gateway
// ships. Per-radio options from the config file arrive as the string map on
// adapter.Deps; unknown keys are ignored so configs stay forward-compatible.
func NewRegistry(metricsRegistry *metric.MetricsRegistry) (*adapter.Registry, error) {
	reg := adapter.NewRegistry()

	registrations := []adapter.Registration{
		{
			Protocol:    serial.ProtocolName,
			Description: "framed serial radio on a local port",
			Factory: func(deps adapter.Deps) (adapter.Adapter, error) {
				opts := serial.Options{Registry: metricsRegistry}
				opts.BaudRate = optInt(deps.Options, "baud_rate", 0)
				opts.HandshakeTimeout = optDuration(deps.Options, "handshake_timeout", 0)
				return serial.New(deps, opts), nil
			},
		},
		{
			Protocol:    ble.ProtocolName,
			Description: "BLE GATT UART bridge",
			Factory: func(deps adapter.Deps) (adapter.Adapter, error) {
				opts := ble.Options{}
				opts.HandshakeTimeout = optDuration(deps.Options, "handshake_timeout", 0)
				return ble.New(deps, opts), nil
			},
		},
		{
			Protocol:    httpapi.ProtocolName,
			Description: "HTTP polling radio API",
			Factory: func(deps adapter.Deps) (adapter.Adapter, error) {
				opts := httpapi.Options{Registry: metricsRegistry}
				opts.PollInterval = optDuration(deps.Options, "poll_interval", 0)
				opts.HandshakeTimeout = optDuration(deps.Options, "handshake_timeout", 0)
				return httpapi.New(deps, opts), nil
			},
		},
		{
			Protocol:    netstack.ProtocolName,
			Description: "external network stack subprocess",
			Factory: func(deps adapter.Deps) (adapter.Adapter, error) {
				opts := netstack.Options{
					Command: deps.Options["command"],
				}
				if args := deps.Options["args"]; args != "" {
					opts.Args = strings.Fields(args)
				}
				opts.InitTimeout = optDuration(deps.Options, "init_timeout", 0)
				opts.AnnounceInterval = optDuration(deps.Options, "announce_interval", 0)
				opts.PingInterval = optDuration(deps.Options, "ping_interval", 0)
				return netstack.New(deps, opts), nil
			},
		},
	}

	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func optInt(opts map[string]string, key string, fallback int) int {
	if v, ok := opts[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func optDuration(opts map[string]string, key string, fallback time.Duration) time.Duration {
	if v, ok := opts[key]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
