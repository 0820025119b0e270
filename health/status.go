// Package health aggregates per-radio health into one report for the
// gateway's health endpoint. Messages are sanitized so device paths,
// addresses, and credentials never leak through a status page.
package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
)

// Pre-compiled regexes for message sanitization.
var (
	httpURLRegex     = regexp.MustCompile(`https?://[^\s]+`)
	natsURLRegex     = regexp.MustCompile(`nats://[^\s]+`)
	wsURLRegex       = regexp.MustCompile(`wss?://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of one radio or the whole gateway.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries traffic counters alongside a radio's status.
type Metrics struct {
	Uptime   time.Duration `json:"uptime"`
	Received int64         `json:"received"`
	Sent     int64         `json:"sent"`
	Errors   int64         `json:"errors"`
}

// IsHealthy returns true if the status is healthy.
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

// IsDegraded returns true if the status is degraded.
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// IsUnhealthy returns true if the status is unhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// NewHealthy creates a new healthy status.
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates a new unhealthy status.
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    "unhealthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a new degraded status.
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    "degraded",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// FromAdapter derives a radio's status from its connection state and stats.
// Connected is healthy, a connection in progress is degraded, anything else
// is unhealthy.
func FromAdapter(a adapter.Adapter) Status {
	var status Status
	switch a.State() {
	case adapter.StateConnected:
		status = NewHealthy(a.ID(), "connected via "+a.ProtocolName())
	case adapter.StateConnecting, adapter.StateConfiguring:
		status = NewDegraded(a.ID(), a.State().String())
	default:
		status = NewUnhealthy(a.ID(), "disconnected")
	}

	stats := a.Stats()
	m := &Metrics{
		Received: stats.Received,
		Sent:     stats.Sent,
		Errors:   stats.Errors,
	}
	if !stats.Since.IsZero() {
		m.Uptime = time.Since(stats.Since)
	}
	status.Metrics = m
	return status
}

// Aggregate folds sub-statuses into one status:
//   - all healthy → healthy
//   - any unhealthy → unhealthy
//   - otherwise any degraded → degraded
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no radios attached")
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, sub := range subStatuses {
		if sub.IsUnhealthy() {
			hasUnhealthy = true
		} else if sub.IsDegraded() {
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "one or more radios are unhealthy")
	case hasDegraded:
		status = NewDegraded(component, "one or more radios are degraded")
	default:
		status = NewHealthy(component, "all radios are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}

// SanitizeMessage removes potentially sensitive information from a message
// before it is exposed on the health endpoint:
//   - URLs (http://, https://, nats://, ws://, wss://) → [URL]
//   - file and device paths (Unix and Windows) → [PATH]
//   - IP addresses → [IP]
//   - port numbers → [PORT]
//   - credential assignments (password=X, token=X, ...) → [REDACTED]
func SanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}

	sanitized := msg

	// URLs first, they contain paths.
	sanitized = httpURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = natsURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = wsURLRegex.ReplaceAllString(sanitized, "[URL]")

	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = windowsPathRegex.ReplaceAllString(sanitized, "[PATH]")

	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "key") || strings.Contains(lower, "secret") ||
		strings.Contains(lower, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}

	return sanitized
}
