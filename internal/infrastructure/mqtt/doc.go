// Package mqtt connects the gateway to its MQTT broker.
//
// MQTT is the gateway's main outward surface: meter readings, health
// reports and Home Assistant discovery configs are published here so
// automation platforms never need to know about ECHONET Lite or
// Wi-SUN. The package wraps eclipse/paho.mqtt.golang with the pieces
// the gateway needs on top: availability publishing tied to the
// connection lifecycle (retained status topic plus a Last Will for the
// crash path), subscription replay across reconnects, and panic
// containment around inbound handlers.
//
// Topic layout is fixed by the builders in Topics; state and discovery
// topics publish retained so Home Assistant recovers full state after
// a restart from the broker alone.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishJSON(mqtt.Topics{}.MeterState(), reading, true)
//
// TLS (1.2 minimum) and username/password auth are configured through
// config.yaml; anonymous plaintext is for local development only.
package mqtt
