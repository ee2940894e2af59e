package api

import (
	"net/http"
	"time"
)

// StatusResponse reports gateway and meter link state.
type StatusResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Session       bool    `json:"session"`
	CommandsSent  uint64  `json:"commands_sent"`
	DatagramsRx   uint64  `json:"datagrams_rx"`
	Joins         uint64  `json:"joins"`
	Errors        uint64  `json:"errors"`
	FailedPolls   int     `json:"failed_polls"`
	LastPoll      string  `json:"last_poll,omitempty"`
	Coefficient   uint32  `json:"coefficient"`
	EnergyUnitKWh float64 `json:"energy_unit_kwh"`
	WSClients     int     `json:"ws_clients"`
}

// handleStatus returns meter link statistics from the bridge.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.bridge == nil {
		writeServiceUnavailable(w, "meter bridge not running")
		return
	}

	m := s.bridge.GetMetrics()

	resp := StatusResponse{
		Status:        m.Status,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Session:       m.Session,
		CommandsSent:  m.CommandsSent,
		DatagramsRx:   m.DatagramsRx,
		Joins:         m.Joins,
		Errors:        m.Errors,
		FailedPolls:   m.FailedPolls,
		Coefficient:   m.Coefficient,
		EnergyUnitKWh: m.EnergyUnitKWh,
	}
	if !m.LastPoll.IsZero() {
		resp.LastPoll = m.LastPoll.UTC().Format(time.RFC3339)
	}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, resp)
}
