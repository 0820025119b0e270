// Package meshbridge bridges heterogeneous packet-radio transports into one
// canonical message model and relays messages between connected radios.
//
// # Architecture
//
// The gateway is built from small components composed by the engine:
//
//	┌─────────────────────────────────────┐
//	│            Engine                   │  Detection, reconnect policy,
//	│  (connect, supervise, wire events)  │  feed fan-out
//	└─────────────────────────────────────┘
//	            ↓ owns
//	┌─────────────────────────────────────┐
//	│           Adapters                  │  serial, ble, httpapi,
//	│  (one per radio/network endpoint)   │  netstack (subprocess IPC)
//	└─────────────────────────────────────┘
//	            ↓ normalize into
//	┌─────────────────────────────────────┐
//	│    Canonical messages + catalog     │  message, catalog
//	└─────────────────────────────────────┘
//	            ↓ consumed by
//	┌─────────────────────────────────────┐
//	│          Bridge router              │  routes, filters, dedup window
//	└─────────────────────────────────────┘
//
// Every transport implements the adapter contract in the adapter package.
// The detect package probes candidate protocols sequentially against an
// endpoint until one completes its handshake. The router replays messages
// from source adapters onto target adapters under configured routes, with a
// time-windowed duplicate suppression index.
//
// # Packages
//
// Transports:
//   - adapter/serial: framed serial radio (SLIP-style link layer, framing pkg)
//   - adapter/ble: BLE GATT central
//   - adapter/httpapi: HTTP polling transport
//   - adapter/netstack: external network stack driven over subprocess IPC
//
// Core:
//   - message: canonical message, node update, channel descriptor types
//   - catalog: per-adapter node directory with smart-merge updates
//   - detect: protocol auto-detection state machine
//   - router: cross-radio bridging, filters, dedup
//   - engine: composition root and reconnect supervision
//
// Infrastructure:
//   - errors: error classification and gateway sentinel errors
//   - config: configuration loading and validation
//   - metric: Prometheus metrics registry
//   - natsclient, feed/natsfeed: optional NATS event fan-out for dashboards
//   - feed/wsfeed: optional websocket event feed
//   - pkg/buffer, pkg/retry: buffering and backoff utilities
package meshbridge
