//nolint:goconst // Test files use repeated literals for clarity
package fsapi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fsapi-bridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: "fsapi-test"
  poll_interval: 5

receivers:
  - id: "kitchen"
    name: "Kitchen Radio"
    device_url: "http://192.168.1.40:80/device"
    pin: "4321"
    timeout_ms: 2500
  - id: "lounge"
    device_url: "http://192.168.1.41:80/device"
    intrusive: true

discovery:
  enabled: true
  interval: 600
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Bridge.ID != "fsapi-test" {
		t.Errorf("Bridge.ID = %q", cfg.Bridge.ID)
	}
	if cfg.GetPollInterval() != 5*time.Second {
		t.Errorf("GetPollInterval() = %v, want 5s", cfg.GetPollInterval())
	}
	if cfg.GetHealthInterval() != 30*time.Second || cfg.GetCommandTimeout() != 5*time.Second {
		t.Errorf("defaults not applied: health=%v command=%v", cfg.GetHealthInterval(), cfg.GetCommandTimeout())
	}
	if len(cfg.Receivers) != 2 {
		t.Fatalf("len(Receivers) = %d, want 2", len(cfg.Receivers))
	}
	if cfg.Receivers[0].PIN != "4321" {
		t.Errorf("Receivers[0].PIN = %q, want 4321", cfg.Receivers[0].PIN)
	}
	if cfg.Receivers[1].PIN != DefaultPIN {
		t.Errorf("Receivers[1].PIN = %q, want default", cfg.Receivers[1].PIN)
	}
	if !cfg.Discovery.Enabled || cfg.GetDiscoveryWait() != 3*time.Second || cfg.GetDiscoveryInterval() != 10*time.Minute {
		t.Errorf("Discovery = %+v", cfg.Discovery)
	}

	client := cfg.Receivers[0].ClientConfig(nil)
	if client.Timeout != 2500*time.Millisecond || client.PIN != "4321" || client.DeviceURL != cfg.Receivers[0].DeviceURL {
		t.Errorf("ClientConfig() = %+v", client)
	}
	if !cfg.Receivers[1].ClientConfig(nil).Intrusive {
		t.Error("ClientConfig().Intrusive = false, want true")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: "from-file"
receivers:
  - id: "kitchen"
    device_url: "http://192.168.1.40/device"
`)
	t.Setenv("FSAPI_BRIDGE_ID", "from-env")
	t.Setenv("FSAPI_BRIDGE_POLL_INTERVAL", "20")
	t.Setenv("FSAPI_BRIDGE_DISCOVERY_ENABLED", "true")
	t.Setenv("FSAPI_BRIDGE_DEFAULT_PIN", "9999")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Bridge.ID != "from-env" || cfg.Bridge.PollInterval != 20 || !cfg.Discovery.Enabled {
		t.Errorf("env overrides not applied: %+v %+v", cfg.Bridge, cfg.Discovery)
	}
	if cfg.Receivers[0].PIN != "9999" {
		t.Errorf("Receivers[0].PIN = %q, want env default 9999", cfg.Receivers[0].PIN)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig(missing) error = nil, want error")
	}
	if _, err := LoadConfig(writeConfig(t, "bridge: [")); err == nil {
		t.Error("LoadConfig(invalid yaml) error = nil, want error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing bridge id", mutate: func(c *Config) { c.Bridge.ID = "" }, wantErr: "bridge.id is required"},
		{name: "poll interval", mutate: func(c *Config) { c.Bridge.PollInterval = 0 }, wantErr: "bridge.poll_interval"},
		{name: "missing receiver id", mutate: func(c *Config) { c.Receivers[0].ID = "" }, wantErr: "receivers[0].id is required"},
		{name: "wildcard in id", mutate: func(c *Config) { c.Receivers[0].ID = "kitchen/+" }, wantErr: "must not contain"},
		{
			name: "duplicate id",
			mutate: func(c *Config) {
				c.Receivers = append(c.Receivers, ReceiverConfig{ID: "kitchen", DeviceURL: "http://10.0.0.2/device", PIN: "1"})
			},
			wantErr: "is duplicate",
		},
		{
			name: "duplicate url",
			mutate: func(c *Config) {
				c.Receivers = append(c.Receivers, ReceiverConfig{ID: "den", DeviceURL: kitchenURL, PIN: "1"})
			},
			wantErr: "device_url",
		},
		{name: "bad url", mutate: func(c *Config) { c.Receivers[0].DeviceURL = "192.168.1.40" }, wantErr: "must be an http URL"},
		{name: "negative timeout", mutate: func(c *Config) { c.Receivers[0].TimeoutMS = -1 }, wantErr: "timeout_ms"},
		{name: "missing pin", mutate: func(c *Config) { c.Receivers[0].PIN = "" }, wantErr: "pin is required"},
		{name: "negative discovery interval", mutate: func(c *Config) { c.Discovery.Interval = -1 }, wantErr: "discovery.interval"},
		{
			name:    "discovery wait",
			mutate:  func(c *Config) { c.Discovery.Enabled = true; c.Discovery.Wait = 0 },
			wantErr: "discovery.wait",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestReceiverConfig_RedactsPIN(t *testing.T) {
	rc := ReceiverConfig{ID: "kitchen", DeviceURL: kitchenURL, PIN: "4321"}

	if s := rc.String(); strings.Contains(s, "4321") || !strings.Contains(s, "[REDACTED]") {
		t.Errorf("String() = %q, want PIN redacted", s)
	}

	data, err := json.Marshal(rc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "4321") {
		t.Errorf("MarshalJSON() = %s, want PIN redacted", data)
	}
	if rc.PIN != "4321" {
		t.Error("MarshalJSON modified the receiver")
	}
}

func TestValidReceiverID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{id: "kitchen", want: true},
		{id: "fsapi-192-168-1-40", want: true},
		{id: "", want: false},
		{id: "a/b", want: false},
		{id: "a+", want: false},
		{id: "#", want: false},
		{id: "living room", want: false},
	}
	for _, tt := range tests {
		if got := ValidReceiverID(tt.id); got != tt.want {
			t.Errorf("ValidReceiverID(%q) = %t, want %t", tt.id, got, tt.want)
		}
	}
}

func TestLoadConfig_Example(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "..", "configs", "fsapi-bridge.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig(example) error = %v", err)
	}
	if len(cfg.Receivers) != 2 || cfg.Receivers[1].PIN != "1234" {
		t.Errorf("example receivers = %v", cfg.Receivers)
	}
}
