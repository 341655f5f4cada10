package mqtt

import "fmt"

// TopicPrefix is the root of every Gray Logic topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{id}.
const TopicPrefix = "graylogic"

// Topics provides builders for Gray Logic bridge topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("fsapi", "kitchen")
//	// Returns: "graylogic/state/fsapi/kitchen"
type Topics struct{}

// BridgeState returns the topic for device state updates from a bridge.
func (Topics) BridgeState(protocol, id string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, id)
}

// BridgeCommand returns the topic for commands to a bridge.
func (Topics) BridgeCommand(protocol, id string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, id)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
func (Topics) BridgeAck(protocol, id string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, id)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/fsapi
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// BridgeDiscovery returns the topic for device discovery results.
func (Topics) BridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, protocol)
}

// BridgeCommands returns a pattern matching every command for one protocol.
//
// Pattern: graylogic/command/fsapi/+
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocol)
}

// BridgeStates returns a pattern matching every state update for one protocol.
func (Topics) BridgeStates(protocol string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, protocol)
}

// AllTopics returns a pattern matching all Gray Logic topics.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
