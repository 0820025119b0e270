package detect

import (
	"regexp"
	"strings"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/ble"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/httpapi"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/netstack"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter/serial"
)

var macPattern = regexp.MustCompile(`^(?i)([0-9a-f]{2}:){5}[0-9a-f]{2}$`)

// Classify orders candidate protocols for an endpoint by its naming
// convention. Virtual endpoints probe the network stack first; physical
// endpoints never probe it, since the stack owns no physical handle and
// would "connect" to anything.
func Classify(endpoint string) []string {
	switch {
	case strings.HasPrefix(endpoint, "virtual:"):
		return []string{netstack.ProtocolName}

	case macPattern.MatchString(endpoint):
		return []string{ble.ProtocolName}

	case strings.HasPrefix(endpoint, "/dev/") || strings.HasPrefix(endpoint, "COM"):
		return []string{serial.ProtocolName}

	case strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://"):
		return []string{httpapi.ProtocolName}

	default:
		// A bare hostname could be a WiFi radio or a BLE device name; try
		// the cheaper HTTP probe first.
		return []string{httpapi.ProtocolName, ble.ProtocolName}
	}
}
