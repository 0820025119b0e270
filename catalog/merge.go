package catalog

import (
	"strings"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/message"
)

// Placeholder sentinels per field category. The merge rule is: an incoming
// field overwrites the stored field only if the stored field is absent, or
// the incoming value is meaningful and differs from the current value.
// Encoding the sentinel checks as explicit predicates keeps the rule in one
// place instead of scattering ad hoc comparisons.

// identity placeholders radios emit before they learn a peer's real profile
var placeholderNames = map[string]struct{}{
	"":        {},
	"unknown": {},
	"n/a":     {},
	"unset":   {},
}

func meaningfulString(v string) bool {
	_, placeholder := placeholderNames[strings.ToLower(v)]
	return !placeholder
}

// meaningfulPosition rejects the (0,0) null-island fix that radios report
// before a GPS lock.
func meaningfulPosition(lat, lon float64) bool {
	return lat != 0 || lon != 0
}

// meaningfulMetric rejects the zero placeholder used for unreported
// telemetry values.
func meaningfulMetric(v float64) bool {
	return v != 0
}

func setString(dst *string, v string) bool {
	if *dst == v || !meaningfulString(v) {
		return false
	}
	*dst = v
	return true
}

func setMetric(dst *float64, v float64) bool {
	if *dst == v || !meaningfulMetric(v) {
		return false
	}
	*dst = v
	return true
}

// mergeUserInfo applies identity-category fields; reports whether any changed.
func mergeUserInfo(dst *message.NodeUpdate, in message.NodeUpdate) bool {
	changed := false
	changed = setString(&dst.LongName, in.LongName) || changed
	changed = setString(&dst.ShortName, in.ShortName) || changed
	changed = setString(&dst.HWModel, in.HWModel) || changed
	changed = setString(&dst.MACAddr, in.MACAddr) || changed
	return changed
}

// mergePosition applies spatial fields as a unit; reports whether any changed.
func mergePosition(dst *message.NodeUpdate, in message.NodeUpdate) bool {
	if !meaningfulPosition(in.Latitude, in.Longitude) {
		return false
	}
	if dst.Latitude == in.Latitude && dst.Longitude == in.Longitude && dst.Altitude == in.Altitude {
		return false
	}
	dst.Latitude = in.Latitude
	dst.Longitude = in.Longitude
	dst.Altitude = in.Altitude
	return true
}

// mergeTelemetry applies telemetry-category fields; reports whether any
// changed so the shared telemetry timestamp updates as a group.
func mergeTelemetry(dst *message.NodeUpdate, in message.NodeUpdate) bool {
	changed := false
	changed = setMetric(&dst.BatteryLevel, in.BatteryLevel) || changed
	changed = setMetric(&dst.Voltage, in.Voltage) || changed
	changed = setMetric(&dst.ChannelUtilization, in.ChannelUtilization) || changed
	changed = setMetric(&dst.AirUtilTX, in.AirUtilTX) || changed
	changed = setMetric(&dst.Temperature, in.Temperature) || changed
	changed = setMetric(&dst.RelativeHumidity, in.RelativeHumidity) || changed
	changed = setMetric(&dst.BarometricPressure, in.BarometricPressure) || changed
	return changed
}
