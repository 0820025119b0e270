package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Loader loads configuration with layered files and environment overrides.
// Later layers win over earlier ones; environment variables win over files.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with the MESHBRIDGE environment prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "MESHBRIDGE"}
}

// AddLayer appends a configuration file layer.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation toggles Validate() after loading.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, file layers, and environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := l.defaults()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg, err = l.mergeFromMap(cfg, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, err)
		}
	}

	l.applyEnvOverrides(cfg)
	cfg.normalizeRadioNames()

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// defaults returns the baseline configuration before any layer applies.
func (l *Loader) defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			DedupWindowSeconds:   60,
			AutoReconnect:        true,
			ReconnectDelay:       5 * time.Second,
			MaxReconnectAttempts: 0,
		},
		NATS: NATSConfig{
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
	}
}

// loadRawJSON reads a layer as a map so merging only touches keys the file
// actually sets.
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap overlays one raw layer onto the accumulated config.
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedMap := deepMergeMaps(baseMap, override)
	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps; override wins, nil values in the
// override are ignored, and lists replace wholesale.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies the environment escape hatches. Values failing
// basic sanity checks are ignored rather than fatal.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	get := func(suffix string) string {
		key := l.envPrefix + suffix
		val := os.Getenv(key)
		if err := validateEnvVar(key, val); err != nil {
			return ""
		}
		return val
	}

	if val := get("_NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := get("_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := get("_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := get("_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	if val := get("_METRICS_ADDR"); val != "" {
		cfg.Metrics.Addr = val
	}
	if val := get("_WS_ADDR"); val != "" {
		cfg.Feed.WebSocketAddr = val
	}
}
