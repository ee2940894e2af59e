package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nana4rider/wisun-gateway/internal/readings"
)

const (
	// defaultReadingsRange is the lookback window when "from" is omitted.
	defaultReadingsRange = 24 * time.Hour

	// defaultReadingsLimit is the result cap when "limit" is omitted.
	defaultReadingsLimit = 1000
)

// handleListReadings returns stored readings within a time range.
//
// Query parameters:
//   - from: RFC3339 or Unix timestamp, inclusive (default: 24h ago)
//   - to: RFC3339 or Unix timestamp, exclusive (default: now)
//   - limit: maximum rows returned (default 1000, max 5000)
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeServiceUnavailable(w, "reading store not configured")
		return
	}

	now := time.Now().UTC()
	from, err := parseTimeParam(r.URL.Query().Get("from"), now.Add(-defaultReadingsRange))
	if err != nil {
		writeBadRequest(w, "invalid from parameter (RFC3339 or Unix timestamp)")
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"), now)
	if err != nil {
		writeBadRequest(w, "invalid to parameter (RFC3339 or Unix timestamp)")
		return
	}
	if !to.After(from) {
		writeBadRequest(w, "to must be after from")
		return
	}
	limit, err := parseLimitParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	list, err := s.repo.ListRange(r.Context(), from, to, limit)
	if err != nil {
		s.logger.Error("failed to list readings", "error", err)
		writeInternalError(w, "failed to load readings")
		return
	}

	// Empty ranges serialise as [] rather than null.
	if list == nil {
		list = []readings.Reading{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from":     from.Format(time.RFC3339),
		"to":       to.Format(time.RFC3339),
		"count":    len(list),
		"readings": list,
	})
}

// handleLatestReading returns the most recent stored reading.
func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeServiceUnavailable(w, "reading store not configured")
		return
	}

	latest, err := s.repo.Latest(r.Context())
	if err != nil {
		if errors.Is(err, readings.ErrNoReadings) {
			writeNotFound(w, "no readings recorded yet")
			return
		}
		s.logger.Error("failed to load latest reading", "error", err)
		writeInternalError(w, "failed to load latest reading")
		return
	}

	writeJSON(w, http.StatusOK, latest)
}

// parseLimitParam parses the limit query parameter with bounds enforcement.
func parseLimitParam(raw string) (int, error) {
	if raw == "" {
		return defaultReadingsLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > readings.MaxListLimit {
		return 0, fmt.Errorf("limit exceeds maximum of %d", readings.MaxListLimit)
	}
	return limit, nil
}

// parseTimeParam parses an RFC3339 or Unix timestamp, with a fallback default.
func parseTimeParam(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
	}
	return time.Unix(secs, 0).UTC(), nil
}
