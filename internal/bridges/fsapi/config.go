package fsapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	fsclient "github.com/nerrad567/gray-logic-fsapi/internal/fsapi"
)

// DefaultPIN is the factory remote-control PIN of FSAPI receivers.
const DefaultPIN = "1234"

// Config is the root configuration for the FSAPI bridge.
// Loaded from YAML with environment variable overrides.
type Config struct {
	Bridge    BridgeConfig     `yaml:"bridge"`
	Receivers []ReceiverConfig `yaml:"receivers"`
	Discovery DiscoveryConfig  `yaml:"discovery"`
}

// BridgeConfig contains bridge identity and operational settings.
type BridgeConfig struct {
	// ID uniquely identifies this bridge instance in health messages.
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`

	// PollInterval is how often each receiver is polled (seconds).
	// Default: 10 seconds.
	PollInterval int `yaml:"poll_interval"`

	// CommandTimeout bounds the execution of one MQTT command (seconds).
	// Default: 5 seconds.
	CommandTimeout int `yaml:"command_timeout"`
}

// ReceiverConfig defines one statically configured receiver.
type ReceiverConfig struct {
	// ID is the Gray Logic identifier, used in MQTT topics.
	ID string `yaml:"id"`

	// Name is the display name. Defaults to the receiver's friendly name.
	Name string `yaml:"name"`

	// DeviceURL is the FSAPI bootstrap URL, e.g. "http://192.168.1.40:80/device".
	DeviceURL string `yaml:"device_url"`

	// PIN is the remote-control PIN. Defaults to discovery.default_pin.
	// WARNING: Never log this value. Use String() for safe logging.
	PIN string `yaml:"pin"`

	// TimeoutMS is the per-request timeout in milliseconds (0 = client default).
	TimeoutMS int `yaml:"timeout_ms"`

	// Intrusive makes reads open a session too, taking control from other remotes.
	Intrusive bool `yaml:"intrusive"`
}

// String returns a string representation with the PIN masked.
func (r ReceiverConfig) String() string {
	pin := ""
	if r.PIN != "" {
		pin = "[REDACTED]"
	}
	return fmt.Sprintf("ReceiverConfig{ID:%q, Name:%q, DeviceURL:%q, PIN:%s, TimeoutMS:%d, Intrusive:%t}",
		r.ID, r.Name, r.DeviceURL, pin, r.TimeoutMS, r.Intrusive)
}

// MarshalJSON redacts the PIN in JSON output.
func (r ReceiverConfig) MarshalJSON() ([]byte, error) {
	type redacted ReceiverConfig
	safe := redacted(r)
	if safe.PIN != "" {
		safe.PIN = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// ClientConfig converts the receiver settings into a client configuration.
func (r ReceiverConfig) ClientConfig(logger Logger) fsclient.Config {
	return fsclient.Config{
		DeviceURL: r.DeviceURL,
		PIN:       r.PIN,
		Timeout:   time.Duration(r.TimeoutMS) * time.Millisecond,
		Intrusive: r.Intrusive,
		Logger:    logger,
	}
}

// DiscoveryConfig controls SSDP discovery of receivers.
type DiscoveryConfig struct {
	// Enabled turns on SSDP discovery. Default: false.
	Enabled bool `yaml:"enabled"`

	// Wait is how long each search listens for answers (seconds). Default: 3.
	Wait int `yaml:"wait"`

	// Interval repeats the search (seconds). 0 searches once at startup.
	Interval int `yaml:"interval"`

	// DefaultPIN is used for discovered receivers and receivers without a PIN.
	DefaultPIN string `yaml:"default_pin"`

	// LocalAddr binds the search to one interface address ("" for all).
	LocalAddr string `yaml:"local_addr"`
}

// LoadConfig reads configuration from a YAML file.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FSAPI_BRIDGE_SECTION_KEY
// For example: FSAPI_BRIDGE_POLL_INTERVAL, FSAPI_BRIDGE_DISCOVERY_ENABLED
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyReceiverDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "fsapi-bridge-01",
			HealthInterval: 30,
			PollInterval:   10,
			CommandTimeout: 5,
		},
		Receivers: []ReceiverConfig{},
		Discovery: DiscoveryConfig{
			Enabled:    false,
			Wait:       3,
			DefaultPIN: DefaultPIN,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FSAPI_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}
	if v := os.Getenv("FSAPI_BRIDGE_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bridge.PollInterval = n
		}
	}
	if v := os.Getenv("FSAPI_BRIDGE_DISCOVERY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Discovery.Enabled = b
		}
	}
	if v := os.Getenv("FSAPI_BRIDGE_DEFAULT_PIN"); v != "" {
		cfg.Discovery.DefaultPIN = v
	}
}

// applyReceiverDefaults fills receivers without a PIN with the default PIN.
func (c *Config) applyReceiverDefaults() {
	for i := range c.Receivers {
		if c.Receivers[i].PIN == "" {
			c.Receivers[i].PIN = c.Discovery.DefaultPIN
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateReceivers()...)
	errs = append(errs, c.validateDiscovery()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	if c.Bridge.PollInterval < 1 {
		errs = append(errs, "bridge.poll_interval must be at least 1 second")
	}
	if c.Bridge.CommandTimeout < 1 {
		errs = append(errs, "bridge.command_timeout must be at least 1 second")
	}
	return errs
}

func (c *Config) validateReceivers() []string {
	var errs []string
	ids := make(map[string]bool)
	urls := make(map[string]bool)

	for i, r := range c.Receivers {
		switch {
		case r.ID == "":
			errs = append(errs, fmt.Sprintf("receivers[%d].id is required", i))
		case !ValidReceiverID(r.ID):
			errs = append(errs, fmt.Sprintf("receivers[%d].id %q must not contain '/', '+', '#' or spaces", i, r.ID))
		case ids[r.ID]:
			errs = append(errs, fmt.Sprintf("receivers[%d].id %q is duplicate", i, r.ID))
		}
		ids[r.ID] = true

		if !validDeviceURL(r.DeviceURL) {
			errs = append(errs, fmt.Sprintf("receivers[%d].device_url %q must be an http URL", i, r.DeviceURL))
		} else if urls[r.DeviceURL] {
			errs = append(errs, fmt.Sprintf("receivers[%d].device_url %q is duplicate", i, r.DeviceURL))
		}
		urls[r.DeviceURL] = true

		if r.PIN == "" {
			errs = append(errs, fmt.Sprintf("receivers[%d].pin is required", i))
		}
		if r.TimeoutMS < 0 {
			errs = append(errs, fmt.Sprintf("receivers[%d].timeout_ms must not be negative", i))
		}
	}
	return errs
}

func (c *Config) validateDiscovery() []string {
	var errs []string
	if c.Discovery.DefaultPIN == "" {
		errs = append(errs, "discovery.default_pin is required")
	}
	if c.Discovery.Enabled && c.Discovery.Wait < 1 {
		errs = append(errs, "discovery.wait must be at least 1 second")
	}
	if c.Discovery.Interval < 0 {
		errs = append(errs, "discovery.interval must not be negative")
	}
	return errs
}

// ValidReceiverID reports whether id can be used as an MQTT topic level.
func ValidReceiverID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/+# ")
}

func validDeviceURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetPollInterval returns the receiver polling interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Bridge.PollInterval) * time.Second
}

// GetCommandTimeout returns the command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Bridge.CommandTimeout) * time.Second
}

// GetDiscoveryWait returns the SSDP listen time as a Duration.
func (c *Config) GetDiscoveryWait() time.Duration {
	return time.Duration(c.Discovery.Wait) * time.Second
}

// GetDiscoveryInterval returns the SSDP repeat interval (0 = once).
func (c *Config) GetDiscoveryInterval() time.Duration {
	return time.Duration(c.Discovery.Interval) * time.Second
}
