package meter

import (
	"fmt"
)

// Home Assistant MQTT discovery. One retained config message per sensor
// entity lets Home Assistant pick the meter up without manual YAML.

// discoveryNodeID groups the gateway's entities under one discovery node.
const discoveryNodeID = "wisun_meter"

// discoveryDevice is the HA device block shared by all entities.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// discoveryConfig is an HA MQTT discovery payload for one sensor.
type discoveryConfig struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	AvailabilityTopic string          `json:"availability_topic"`
	ValueTemplate     string          `json:"value_template"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	DeviceClass       string          `json:"device_class"`
	StateClass        string          `json:"state_class"`
	Device            discoveryDevice `json:"device"`
	ExpireAfter       int             `json:"expire_after,omitempty"`
}

// discoveryEntity describes one sensor the gateway exposes.
type discoveryEntity struct {
	objectID    string
	name        string
	field       string
	unit        string
	deviceClass string
	stateClass  string
}

// discoveryEntities lists the sensors published from each poll.
// The T-phase current entity exists even for single-phase meters; it
// simply reports null there.
var discoveryEntities = []discoveryEntity{
	{
		objectID:    "instant_power",
		name:        "Instant Power",
		field:       "instant_power_w",
		unit:        "W",
		deviceClass: "power",
		stateClass:  "measurement",
	},
	{
		objectID:    "current_r",
		name:        "Current R Phase",
		field:       "current_r_a",
		unit:        "A",
		deviceClass: "current",
		stateClass:  "measurement",
	},
	{
		objectID:    "current_t",
		name:        "Current T Phase",
		field:       "current_t_a",
		unit:        "A",
		deviceClass: "current",
		stateClass:  "measurement",
	},
	{
		objectID:    "cumulative_energy",
		name:        "Cumulative Energy",
		field:       "cumulative_kwh",
		unit:        "kWh",
		deviceClass: "energy",
		stateClass:  "total_increasing",
	},
	{
		objectID:    "cumulative_energy_reverse",
		name:        "Cumulative Energy Reverse",
		field:       "cumulative_reverse_kwh",
		unit:        "kWh",
		deviceClass: "energy",
		stateClass:  "total_increasing",
	},
}

// publishDiscovery publishes one retained discovery config per entity.
func (b *Bridge) publishDiscovery() error {
	device := discoveryDevice{
		Identifiers:  []string{discoveryNodeID},
		Name:         "Smart Meter",
		Manufacturer: "ECHONET Lite",
		Model:        "Low-voltage smart electric energy meter",
	}

	// Mark values stale if three poll intervals pass without an update
	expireAfter := 3 * b.cfg.Meter.PollInterval

	for _, e := range discoveryEntities {
		cfg := discoveryConfig{
			Name:              e.name,
			UniqueID:          fmt.Sprintf("%s_%s", discoveryNodeID, e.objectID),
			StateTopic:        b.topics.MeterState(),
			AvailabilityTopic: b.topics.GatewayStatus(),
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", e.field),
			UnitOfMeasurement: e.unit,
			DeviceClass:       e.deviceClass,
			StateClass:        e.stateClass,
			Device:            device,
			ExpireAfter:       expireAfter,
		}

		topic := b.topics.DiscoveryConfig(b.cfg.Meter.DiscoveryPrefix, discoveryNodeID, e.objectID)
		if err := b.mqtt.PublishJSON(topic, cfg, true); err != nil {
			return fmt.Errorf("publish discovery for %s: %w", e.objectID, err)
		}
	}

	b.logInfo("published discovery", "entities", len(discoveryEntities))
	return nil
}

// watchBirthTopic subscribes to the Home Assistant birth topic and
// republishes discovery configs when HA announces it is online. The
// retained configs normally survive an HA restart, but not a broker
// that was wiped or swapped while the gateway kept running.
func (b *Bridge) watchBirthTopic() error {
	topic := b.topics.DiscoveryStatus(b.cfg.Meter.DiscoveryPrefix)
	return b.mqtt.Subscribe(topic, byte(b.cfg.MQTT.QoS), func(_ string, payload []byte) error {
		if string(payload) != "online" {
			return nil
		}
		b.logInfo("home assistant came online, republishing discovery")
		return b.publishDiscovery()
	})
}
