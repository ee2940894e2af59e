package meter

import (
	"encoding/json"
	"time"

	"github.com/nana4rider/wisun-gateway/internal/readings"
	"github.com/nana4rider/wisun-gateway/internal/wisun"
)

// MQTT message types published by the meter bridge.

// StateMessage is published after each successful poll.
// Topic: wisun/meter/state
// QoS: 1, Retained: Yes
type StateMessage struct {
	// Timestamp is when the values were read (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// InstantPowerW is the instantaneous power in watts. Negative when
	// power is fed back to the grid. Null when the meter returned no data.
	InstantPowerW *float64 `json:"instant_power_w"`

	// CurrentRA and CurrentTA are the instantaneous phase currents in
	// amperes. CurrentTA is null on single-phase meters.
	CurrentRA *float64 `json:"current_r_a"`
	CurrentTA *float64 `json:"current_t_a"`

	// CumulativeKWh is the cumulative energy in the normal direction,
	// already scaled by the meter's coefficient and unit.
	CumulativeKWh *float64 `json:"cumulative_kwh"`

	// CumulativeReverseKWh is the cumulative energy fed back to the grid.
	CumulativeReverseKWh *float64 `json:"cumulative_reverse_kwh"`
}

// NewStateMessage builds a state message from a stored reading.
func NewStateMessage(r readings.Reading) StateMessage {
	return StateMessage{
		Timestamp:            r.RecordedAt,
		InstantPowerW:        r.InstantPowerW,
		CurrentRA:            r.CurrentRA,
		CurrentTA:            r.CurrentTA,
		CumulativeKWh:        r.CumulativeKWh,
		CumulativeReverseKWh: r.CumulativeReverseKWh,
	}
}

// encodeStatePayload marshals a state message for WebSocket fan-out.
func encodeStatePayload(msg StateMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// HealthStatus represents the operational status of the gateway.
type HealthStatus string

const (
	// HealthHealthy indicates polling is working normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the gateway is up but a dependency is
	// down (no PANA session, MQTT reconnecting, polls failing).
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the gateway is establishing its first
	// session with the meter.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the gateway is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published periodically to report gateway status.
// Topic: wisun/meter/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status is the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the gateway software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the gateway has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Session is true while a PANA session with the meter is established.
	Session bool `json:"session"`

	// Statistics contains link-level counters.
	Statistics *LinkStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// LinkStatistics contains Wi-SUN link counters.
type LinkStatistics struct {
	// CommandsSent is the total number of module commands issued.
	CommandsSent uint64 `json:"commands_sent"`

	// DatagramsReceived is the total number of ECHONET Lite datagrams
	// received from the meter.
	DatagramsReceived uint64 `json:"datagrams_received"`

	// Joins is the number of successful PANA joins since start.
	Joins uint64 `json:"joins"`

	// Errors is the total number of link errors.
	Errors uint64 `json:"errors"`
}

// NewHealthMessage builds a health message from the current link stats.
func NewHealthMessage(version string, status HealthStatus, stats wisun.Stats, startTime time.Time) HealthMessage {
	return HealthMessage{
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Session:       stats.Session,
		Statistics: &LinkStatistics{
			CommandsSent:      stats.CommandsTx,
			DatagramsReceived: stats.DatagramsRx,
			Joins:             stats.JoinsTotal,
			Errors:            stats.ErrorsTotal,
		},
	}
}

// EventMessage is published when the meter pushes an unsolicited
// notification (ESV INF), such as the 30-minute fixed-time cumulative
// energy reading.
// Topic: wisun/meter/event
// QoS: 1, Retained: No
type EventMessage struct {
	// Timestamp is when the notification arrived (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Properties maps property names to decoded values. Properties the
	// gateway cannot decode are reported as hex strings under their
	// EPC code (e.g. "epc_8a").
	Properties map[string]any `json:"properties"`
}
