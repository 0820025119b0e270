// Package message defines the protocol-agnostic records every transport
// adapter normalizes into: canonical messages, node updates, and channel
// descriptors. The router and catalog operate on these types only and never
// see transport-specific payloads.
package message

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Broadcast is the recipient sentinel addressing every node a transport
// can reach.
const Broadcast = "^all"

// PayloadKind tags what a canonical message carries.
type PayloadKind string

const (
	// KindText is a decoded UTF-8 text payload.
	KindText PayloadKind = "text"
	// KindPosition is a position report.
	KindPosition PayloadKind = "position"
	// KindTelemetry is a device/environment telemetry report.
	KindTelemetry PayloadKind = "telemetry"
	// KindNodeInfo is a peer identity announcement.
	KindNodeInfo PayloadKind = "nodeinfo"
	// KindOther is any payload the adapter could not classify.
	KindOther PayloadKind = "other"
)

// SignalMetrics carries optional link-quality measurements attached to a
// received message. Zero values mean "not reported".
type SignalMetrics struct {
	RSSI float64 `json:"rssi,omitempty"` // received signal strength, dBm
	SNR  float64 `json:"snr,omitempty"`  // signal-to-noise ratio, dB
}

// Canonical is the normalized representation of one received packet.
//
// ID is stable for the lifetime of one delivery instance. Duplicates of the
// same underlying transmission map to an identical id (protocol-supplied or
// content-derived) so the dedup window can recognize them.
type Canonical struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Sender    string        `json:"sender"`
	Recipient string        `json:"recipient"`           // Broadcast sentinel allowed
	Channel   int           `json:"channel"`             // logical channel index
	DestHash  string        `json:"dest_hash,omitempty"` // for destination-hash transports
	Kind      PayloadKind   `json:"kind"`
	Text      string        `json:"text,omitempty"` // empty for non-text kinds
	Signal    SignalMetrics `json:"signal"`
	HopCount  int           `json:"hop_count,omitempty"`
	Raw       []byte        `json:"-"` // opaque original payload reference

	// Relay bookkeeping, written by the router.
	Forwarded bool     `json:"forwarded"`
	TargetIDs []string `json:"target_ids,omitempty"`
}

// DeriveID computes a content-derived id for transports that supply none.
// Replays of the same transmission seen through different paths hash to the
// same id, which is what lets the dedup window suppress them.
func DeriveID(sender string, channel int, text string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", sender, channel, text)))
	return hex.EncodeToString(h[:8])
}

// NodeUpdate is a partial view of a remote peer carried by one packet.
// Different physical packets carry disjoint subsets of a peer's profile, so
// every field is optional; the catalog merges updates field by field.
type NodeUpdate struct {
	LongName  string `json:"long_name,omitempty"`
	ShortName string `json:"short_name,omitempty"`
	HWModel   string `json:"hw_model,omitempty"`
	MACAddr   string `json:"mac_addr,omitempty"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Altitude  float64 `json:"altitude,omitempty"`

	BatteryLevel       float64 `json:"battery_level,omitempty"`       // percent
	Voltage            float64 `json:"voltage,omitempty"`             // volts
	ChannelUtilization float64 `json:"channel_utilization,omitempty"` // percent
	AirUtilTX          float64 `json:"air_util_tx,omitempty"`         // percent
	Temperature        float64 `json:"temperature,omitempty"`         // celsius
	RelativeHumidity   float64 `json:"relative_humidity,omitempty"`   // percent
	BarometricPressure float64 `json:"barometric_pressure,omitempty"` // hPa
}

// NormalizeNodeID converts a transport-specific node identifier into the
// stable hex form used as the catalog key. Decimal node numbers render as 8
// hex digits with a "!" prefix, matching the convention radios print on
// their own screens; ids already in that form pass through lowercased.
func NormalizeNodeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == Broadcast {
		return raw
	}
	if strings.HasPrefix(raw, "!") {
		return "!" + strings.ToLower(raw[1:])
	}
	// Decimal node numbers from transports that report integers.
	var n uint64
	if _, err := fmt.Sscanf(raw, "%d", &n); err == nil && fmt.Sprintf("%d", n) == raw {
		return fmt.Sprintf("!%08x", n)
	}
	return strings.ToLower(raw)
}

// ChannelDescriptor is one logical channel or destination as seen by one
// adapter. Equality between two descriptors is protocol-specific and must be
// delegated to the owning adapter via its EqualityKey, never computed
// generically across transports.
type ChannelDescriptor struct {
	Index int    `json:"index"`
	Name  string `json:"name"`

	// EqualityKey is the protocol-specific identity of the channel: a
	// pre-shared key fingerprint, a destination hash, or a
	// frequency+bandwidth pair rendered by the owning adapter.
	EqualityKey string `json:"equality_key"`
}
