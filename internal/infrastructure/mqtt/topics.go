package mqtt

import "fmt"

// Topic prefixes for the gateway's MQTT surface.
//
// Gateway topics use the flat scheme: wisun/{component}/{suffix}.
// Home Assistant discovery topics live under the configurable
// discovery prefix (default "homeassistant").
const (
	// TopicPrefix is the base for all gateway topics.
	TopicPrefix = "wisun"

	// TopicPrefixGateway is the base for gateway lifecycle topics.
	TopicPrefixGateway = "wisun/gateway"

	// TopicPrefixMeter is the base for smart meter topics.
	TopicPrefixMeter = "wisun/meter"
)

// Topics provides builders for the gateway's MQTT topics.
// Building topics through these helpers keeps naming consistent
// everywhere a topic string is needed.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.MeterState()
//	// Returns: "wisun/meter/state"
type Topics struct{}

// GatewayStatus returns the availability topic for the gateway itself.
//
// The payload is the plain string "online" or "offline" so Home Assistant
// can use it directly as an availability_topic. The broker publishes
// "offline" here via LWT if the gateway dies without a clean shutdown.
//
// Example: wisun/gateway/status
func (Topics) GatewayStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixGateway)
}

// MeterState returns the topic for periodic meter readings.
//
// The payload is a JSON document with instantaneous power, per-phase
// current and cumulative energy.
//
// Example: wisun/meter/state
func (Topics) MeterState() string {
	return fmt.Sprintf("%s/state", TopicPrefixMeter)
}

// MeterHealth returns the topic for meter link health reports.
//
// Example: wisun/meter/health
func (Topics) MeterHealth() string {
	return fmt.Sprintf("%s/health", TopicPrefixMeter)
}

// MeterEvent returns the topic for unsolicited meter notifications,
// such as INF frames pushed by the meter outside the polling cycle.
//
// Example: wisun/meter/event
func (Topics) MeterEvent() string {
	return fmt.Sprintf("%s/event", TopicPrefixMeter)
}

// DiscoveryConfig returns the Home Assistant discovery config topic for
// a sensor entity.
//
// Parameters:
//   - prefix: The discovery prefix (usually "homeassistant")
//   - nodeID: The device grouping node, e.g. "wisun_meter"
//   - objectID: The entity within the node, e.g. "instant_power"
//
// Example: homeassistant/sensor/wisun_meter/instant_power/config
func (Topics) DiscoveryConfig(prefix, nodeID, objectID string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", prefix, nodeID, objectID)
}

// DiscoveryStatus returns the Home Assistant birth/will topic under the
// discovery prefix. HA publishes "online" here on startup; integrations
// listen and republish their discovery configs in response.
//
// Example: homeassistant/status
func (Topics) DiscoveryStatus(prefix string) string {
	return fmt.Sprintf("%s/status", prefix)
}

// AllGatewayTopics returns a pattern matching every topic the gateway
// publishes. Use with caution, this receives ALL gateway traffic.
//
// Pattern: wisun/#
func (Topics) AllGatewayTopics() string {
	return TopicPrefix + "/#"
}

// AllMeterTopics returns a pattern matching all meter topics.
//
// Pattern: wisun/meter/+
func (Topics) AllMeterTopics() string {
	return TopicPrefixMeter + "/+"
}
