// Package meter polls a low-voltage smart electric energy meter over a
// Wi-SUN B-route link and fans the readings out to MQTT, InfluxDB,
// SQLite history and WebSocket subscribers.
//
// The bridge owns the meter session lifecycle: it registers the Route-B
// credentials, scans for the meter's PAN, joins it via PANA, and
// re-establishes the session with backoff when the meter drops it. Each
// poll issues one ECHONET Lite Get request for instantaneous power,
// phase currents and the cumulative energy registers, converts the raw
// register values using the meter's coefficient and unit, and publishes
// the result.
//
// Unsolicited meter notifications (ESV INF), such as the 30-minute
// fixed-time cumulative reading, are forwarded to the event topic.
//
// With discovery enabled the bridge also publishes Home Assistant MQTT
// discovery configs, so the meter's sensors appear automatically.
package meter
