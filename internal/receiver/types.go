// Package receiver keeps the inventory of FSAPI receivers handled by the
// bridge, together with the last state and health observed for each.
//
// Receivers come from two places: the bridge configuration file and SSDP
// discovery. Both end up in the same SQLite table; Source records which.
package receiver

import (
	"fmt"
	"net/url"
	"time"
)

// Source identifies how a receiver was registered.
type Source string

// Receiver sources.
const (
	SourceConfig    Source = "config"
	SourceDiscovery Source = "discovery"
)

// HealthStatus is the reachability of a receiver as last observed.
type HealthStatus string

// Health states.
const (
	HealthOnline  HealthStatus = "online"
	HealthOffline HealthStatus = "offline"
	HealthUnknown HealthStatus = "unknown"
)

// State is the last polled state of a receiver, stored as a JSON object.
// Keys match the bridge's state message (power, volume, mode, ...).
type State map[string]any

// Receiver is one registered FSAPI receiver.
type Receiver struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DeviceURL string `json:"device_url"`
	Source    Source `json:"source"`

	// USN is the SSDP unique service name, set for discovered receivers.
	USN *string `json:"usn,omitempty"`

	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	HealthStatus   HealthStatus `json:"health_status"`
	HealthLastSeen *time.Time   `json:"health_last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields required for registration and fills defaults
// for Source, State and HealthStatus.
func (r *Receiver) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidReceiver)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidReceiver)
	}
	u, err := url.Parse(r.DeviceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: device_url %q is not an http URL", ErrInvalidReceiver, r.DeviceURL)
	}

	switch r.Source {
	case "":
		r.Source = SourceConfig
	case SourceConfig, SourceDiscovery:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidReceiver, r.Source)
	}

	if r.State == nil {
		r.State = State{}
	}
	if r.HealthStatus == "" {
		r.HealthStatus = HealthUnknown
	}
	return nil
}
