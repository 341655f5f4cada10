package fsapi

import (
	"fmt"
	"time"
)

// MQTT message types exchanged between Gray Logic Core and the FSAPI bridge.

// Protocol is the protocol identifier used in topics and messages.
const Protocol = "fsapi"

// CommandMessage is sent from Core to the bridge to control a receiver.
// Topic: graylogic/command/fsapi/{receiver_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. Generated by the
	// bridge when empty.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the receiver ID. Defaults to the topic's receiver ID.
	DeviceID string `json:"device_id"`

	// Command is one of the Cmd* constants.
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"level": 12} for set_volume
	//   {"mode": "DAB"} for set_mode
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source,omitempty"`

	// UserID is the user who triggered the command (if applicable).
	UserID string `json:"user_id,omitempty"`
}

// Supported commands.
const (
	CmdOn              = "on"
	CmdOff             = "off"
	CmdSetVolume       = "set_volume"
	CmdMute            = "mute"
	CmdUnmute          = "unmute"
	CmdSetMode         = "set_mode"
	CmdPlay            = "play"
	CmdPause           = "pause"
	CmdNext            = "next"
	CmdPrevious        = "previous"
	CmdSetSleep        = "set_sleep"
	CmdSetFriendlyName = "set_friendly_name"
)

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the receiver accepted the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the receiver did not answer in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/fsapi/{receiver_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// Address is the receiver's bootstrap URL.
	Address string `json:"address"`

	// Error contains details if status is "failed" or "timeout".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeRejected          = "REJECTED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
)

// StateMessage is sent from the bridge when a receiver's state changes.
// Topic: graylogic/state/fsapi/{receiver_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	// State holds the polled values:
	//   {"online": true, "power": true, "volume": 12, "mode": "DAB", ...}
	// An unreachable receiver is reported as {"online": false}.
	State map[string]any `json:"state"`

	Protocol string `json:"protocol"`
	Address  string `json:"address"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates MQTT is up and every receiver answers.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates MQTT is down or a receiver is unreachable.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline is the LWT status published by the broker.
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/fsapi
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge           string       `json:"bridge"`
	Timestamp        time.Time    `json:"timestamp"`
	Status           HealthStatus `json:"status"`
	Version          string       `json:"version,omitempty"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	ReceiversManaged int          `json:"receivers_managed"`
	ReceiversOnline  int          `json:"receivers_online"`
	Reason           string       `json:"reason,omitempty"`
}

// DiscoveryMessage announces the receivers found by an SSDP search.
// Topic: graylogic/discovery/fsapi
type DiscoveryMessage struct {
	Timestamp time.Time            `json:"timestamp"`
	Bridge    string               `json:"bridge"`
	Devices   []DiscoveredReceiver `json:"devices"`
}

// DiscoveredReceiver is one receiver found during discovery.
type DiscoveredReceiver struct {
	ID        string `json:"id"`
	DeviceURL string `json:"device_url"`
	USN       string `json:"usn,omitempty"`

	// Added is true when this search registered the receiver.
	Added bool `json:"added"`
}

// NewAckMessage creates an acknowledgement for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError creates an acknowledgement with error details.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAckMessage(cmd, status, address)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message for a receiver.
func NewStateMessage(receiverID, address string, state map[string]any) StateMessage {
	return StateMessage{
		DeviceID:  receiverID,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewLWTMessage creates the Last Will and Testament health message.
// The broker publishes it if the bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers

// TopicPrefix is the base topic for all Gray Logic messages.
const TopicPrefix = "graylogic"

// CommandTopic returns the command topic of a receiver.
// Example: graylogic/command/fsapi/kitchen-radio
func CommandTopic(receiverID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, receiverID)
}

// AckTopic returns the acknowledgement topic of a receiver.
// Example: graylogic/ack/fsapi/kitchen-radio
func AckTopic(receiverID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, receiverID)
}

// StateTopic returns the state topic of a receiver.
// Example: graylogic/state/fsapi/kitchen-radio
func StateTopic(receiverID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, receiverID)
}

// HealthTopic returns the bridge health topic.
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// DiscoveryTopic returns the discovery results topic.
func DiscoveryTopic() string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, Protocol)
}

// CommandSubscribeTopic returns the subscription pattern for all commands.
// Example: graylogic/command/fsapi/+
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}
