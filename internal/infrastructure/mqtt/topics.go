package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout. Bridge topics use ownbridge/{category}/{protocol}/{thing}[/{channel}].
const (
	// TopicPrefix is the root of every own-bridge topic.
	TopicPrefix = "ownbridge"

	// TopicPrefixSystem is the base for service-level topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for own-bridge MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.ChannelState("openwebnet", "living_dimmer", "brightness")
//	// Returns: "ownbridge/state/openwebnet/living_dimmer/brightness"
type Topics struct{}

// ChannelCommand returns the topic a host publishes channel commands to.
//
// Example: ownbridge/command/openwebnet/living_dimmer/brightness
func (Topics) ChannelCommand(protocol, thing, channel string) string {
	return fmt.Sprintf("%s/command/%s/%s/%s", TopicPrefix, protocol, thing, channel)
}

// ChannelState returns the retained state topic of one channel.
//
// Example: ownbridge/state/openwebnet/living_dimmer/brightness
func (Topics) ChannelState(protocol, thing, channel string) string {
	return fmt.Sprintf("%s/state/%s/%s/%s", TopicPrefix, protocol, thing, channel)
}

// CommandAck returns the topic for command acknowledgements.
//
// Example: ownbridge/ack/openwebnet/living_dimmer/brightness
func (Topics) CommandAck(protocol, thing, channel string) string {
	return fmt.Sprintf("%s/ack/%s/%s/%s", TopicPrefix, protocol, thing, channel)
}

// ThingStatus returns the retained status topic of a thing (bridge or device).
//
// Example: ownbridge/status/openwebnet/gw1
func (Topics) ThingStatus(protocol, thing string) string {
	return fmt.Sprintf("%s/status/%s/%s", TopicPrefix, protocol, thing)
}

// BridgeHealth returns the health topic of one bridge.
//
// Example: ownbridge/health/openwebnet/gw1
func (Topics) BridgeHealth(protocol, bridge string) string {
	return fmt.Sprintf("%s/health/%s/%s", TopicPrefix, protocol, bridge)
}

// BridgeDiscovery returns the topic discovery results are announced on.
//
// Example: ownbridge/discovery/openwebnet/gw1
func (Topics) BridgeDiscovery(protocol, bridge string) string {
	return fmt.Sprintf("%s/discovery/%s/%s", TopicPrefix, protocol, bridge)
}

// SystemStatus returns the service status topic carrying the LWT.
//
// Example: ownbridge/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllChannelCommands matches every channel command of a protocol.
//
// Pattern: ownbridge/command/openwebnet/+/+
func (Topics) AllChannelCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+/+", TopicPrefix, protocol)
}

// AllChannelStates matches every channel state of a protocol.
//
// Pattern: ownbridge/state/openwebnet/+/+
func (Topics) AllChannelStates(protocol string) string {
	return fmt.Sprintf("%s/state/%s/+/+", TopicPrefix, protocol)
}

// AllThingStatuses matches the status of every thing of a protocol.
//
// Pattern: ownbridge/status/openwebnet/+
func (Topics) AllThingStatuses(protocol string) string {
	return fmt.Sprintf("%s/status/%s/+", TopicPrefix, protocol)
}

// AllBridgeDiscovery matches the discovery announcements of every bridge.
//
// Pattern: ownbridge/discovery/openwebnet/+
func (Topics) AllBridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s/+", TopicPrefix, protocol)
}

// ParseChannelTopic splits a command, state or ack topic into its parts.
// ok is false when topic does not have the ownbridge/{category}/{protocol}/{thing}/{channel} form.
func ParseChannelTopic(topic string) (category, protocol, thing, channel string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicPrefix {
		return "", "", "", "", false
	}
	for _, p := range parts[1:] {
		if p == "" {
			return "", "", "", "", false
		}
	}
	return parts[1], parts[2], parts[3], parts[4], true
}
