package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/router"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func validConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{DedupWindowSeconds: 60, ReconnectDelay: 5 * time.Second},
		Radios: []RadioConfig{
			{Name: "serial-0", Endpoint: "/dev/ttyUSB0"},
			{Name: "wifi-0", Endpoint: "http://192.168.4.1"},
		},
		Routes: []router.Route{{
			Name: "bridge", Enabled: true,
			Sources: []string{"serial-0"}, Targets: []string{"wifi-0"},
		}},
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "gateway.json", `{
		"gateway": {
			"dedup_window_seconds": 90,
			"auto_reconnect": true,
			"reconnect_delay": "3s",
			"max_reconnect_attempts": 10
		},
		"radios": [
			{"name": "Serial-0", "endpoint": "/dev/ttyUSB0", "options": {"baud_rate": "921600"}},
			{"name": "ble-0", "endpoint": "AA:BB:CC:DD:EE:FF", "protocol": "ble-gatt"}
		],
		"routes": [
			{"name": "bridge", "enabled": true, "sources": ["serial-0"], "targets": ["ble-0"],
			 "filters": [{"action": "allow", "channels": [0]}, {"action": "deny"}]}
		],
		"nats": {"urls": ["nats://localhost:4222"], "reconnect_wait": "4s"},
		"feed": {"websocket_addr": ":8080"},
		"metrics": {"addr": ":9200"}
	}`)

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Gateway.DedupWindowSeconds)
	assert.Equal(t, 90*time.Second, cfg.Gateway.DedupWindow())
	assert.Equal(t, 3*time.Second, cfg.Gateway.ReconnectDelay)
	assert.Equal(t, 10, cfg.Gateway.MaxReconnectAttempts)

	require.Len(t, cfg.Radios, 2)
	// Radio names are normalized to lowercase.
	assert.Equal(t, "serial-0", cfg.Radios[0].Name)
	assert.Equal(t, "921600", cfg.Radios[0].Options["baud_rate"])
	assert.Equal(t, "ble-gatt", cfg.Radios[1].Protocol)

	require.Len(t, cfg.Routes, 1)
	assert.Equal(t, []string{"ble-0"}, cfg.Routes[0].Targets)
	require.Len(t, cfg.Routes[0].Filters, 2)
	assert.Equal(t, router.ActionAllow, cfg.Routes[0].Filters[0].Action)

	assert.True(t, cfg.NATS.Enabled())
	assert.Equal(t, 4*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, ":8080", cfg.Feed.WebSocketAddr)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path) // default survives the layer
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "minimal.json", `{
		"radios": [{"name": "r0", "endpoint": "/dev/ttyACM0"}]
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Gateway.DedupWindowSeconds)
	assert.True(t, cfg.Gateway.AutoReconnect)
	assert.Equal(t, 5*time.Second, cfg.Gateway.ReconnectDelay)
	assert.Equal(t, 0, cfg.Gateway.MaxReconnectAttempts)
	assert.False(t, cfg.NATS.Enabled())
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoad_LayerMerging(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	override := filepath.Join(dir, "prod.json")
	require.NoError(t, os.WriteFile(base, []byte(`{
		"gateway": {"dedup_window_seconds": 30, "auto_reconnect": true},
		"radios": [{"name": "r0", "endpoint": "/dev/ttyUSB0"}]
	}`), 0600))
	require.NoError(t, os.WriteFile(override, []byte(`{
		"gateway": {"dedup_window_seconds": 120}
	}`), 0600))

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	cfg, err := loader.Load()
	require.NoError(t, err)

	// Override wins where set, base survives where not.
	assert.Equal(t, 120, cfg.Gateway.DedupWindowSeconds)
	assert.True(t, cfg.Gateway.AutoReconnect)
	require.Len(t, cfg.Radios, 1)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MESHBRIDGE_NATS_URLS", "nats://a:4222,nats://b:4222")
	t.Setenv("MESHBRIDGE_METRICS_ADDR", ":9999")

	path := writeConfig(t, "gateway.json", `{
		"radios": [{"name": "r0", "endpoint": "/dev/ttyUSB0"}]
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
}

func TestLoad_RejectsNonJSONPath(t *testing.T) {
	_, err := NewLoader().LoadFile("gateway.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only JSON")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no radios", func(c *Config) { c.Radios = nil }, "at least one radio"},
		{"missing radio name", func(c *Config) { c.Radios[0].Name = "" }, "name is required"},
		{"duplicate radio name", func(c *Config) { c.Radios[1].Name = "serial-0" }, "duplicate name"},
		{"missing endpoint", func(c *Config) { c.Radios[0].Endpoint = "" }, "endpoint is required"},
		{"negative dedup", func(c *Config) { c.Gateway.DedupWindowSeconds = -1 }, "cannot be negative"},
		{"route unknown radio", func(c *Config) { c.Routes[0].Targets = []string{"ghost"} }, `unknown radio "ghost"`},
		{"route without targets", func(c *Config) { c.Routes[0].Targets = nil }, "targets are required"},
		{"bad filter action", func(c *Config) {
			c.Routes[0].Filters = []router.Filter{{Action: "maybe"}}
		}, "invalid filter action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(validConfig())

	// Mutating the snapshot must not touch the shared config.
	snap := sc.Get()
	snap.Radios[0].Endpoint = "/dev/other"
	assert.Equal(t, "/dev/ttyUSB0", sc.Get().Radios[0].Endpoint)

	// Updates are validated.
	err := sc.Update(&Config{})
	require.Error(t, err)
	assert.Equal(t, "/dev/ttyUSB0", sc.Get().Radios[0].Endpoint)

	next := validConfig()
	next.Gateway.DedupWindowSeconds = 120
	require.NoError(t, sc.Update(next))
	assert.Equal(t, 120, sc.Get().Gateway.DedupWindowSeconds)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	cfg := validConfig()
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Radios, loaded.Radios)
	assert.Equal(t, cfg.Gateway.ReconnectDelay, loaded.Gateway.ReconnectDelay)
	assert.Equal(t, cfg.Routes, loaded.Routes)
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": {"b": [1, 2, {"c": "}"}]}}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": {`)))

	deep := make([]byte, 0, 2*maxJSONDepth+2)
	for i := 0; i < maxJSONDepth+1; i++ {
		deep = append(deep, '[')
	}
	for i := 0; i < maxJSONDepth+1; i++ {
		deep = append(deep, ']')
	}
	assert.Error(t, validateJSONDepth(deep))
}
