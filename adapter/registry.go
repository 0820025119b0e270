package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
)

// Factory constructs an unconnected adapter for an endpoint.
type Factory func(deps Deps) (Adapter, error)

// Deps holds the runtime dependencies handed to every adapter factory.
type Deps struct {
	ID       string // instance name, e.g. "serial-ttyUSB0"
	Endpoint string // transport endpoint descriptor
	Logger   *slog.Logger

	// Options carries protocol-specific settings from configuration,
	// already validated by the config layer.
	Options map[string]string
}

// Registration couples a protocol name with its factory.
type Registration struct {
	Protocol    string
	Description string
	Factory     Factory
}

// Registry maps protocol names to adapter factories. The detector consults
// it to build candidate lists; configuration uses it to resolve pinned
// protocol names.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Registration)}
}

// Register adds a protocol factory. Registering a duplicate name is a
// programming error and fails.
func (r *Registry) Register(reg Registration) error {
	if reg.Protocol == "" || reg.Factory == nil {
		return errors.WrapInvalid(
			fmt.Errorf("protocol name and factory are required"),
			"Registry", "Register", "registration validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.Protocol]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("protocol %q already registered", reg.Protocol),
			"Registry", "Register", "duplicate registration")
	}
	r.factories[reg.Protocol] = reg
	return nil
}

// Create instantiates an adapter for the named protocol.
func (r *Registry) Create(protocol string, deps Deps) (Adapter, error) {
	r.mu.RLock()
	reg, ok := r.factories[protocol]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrUnknownProtocol, protocol),
			"Registry", "Create", "factory lookup")
	}
	return reg.Factory(deps)
}

// Protocols returns the registered protocol names, sorted.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
