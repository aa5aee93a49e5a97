package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// parseLimit reads the optional ?limit= query parameter. Zero means the
// repository default; the repository clamps oversized values.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}

// handleMeasureHistory returns recorded samples for one measure,
// newest first.
func (s *Server) handleMeasureHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history recording is disabled")
		return
	}

	measureID := chi.URLParam(r, "id")
	limit, ok := parseLimit(r)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}

	samples, err := s.history.Samples(r.Context(), measureID, limit)
	if err != nil {
		s.logger.Error("sample history query failed", "measure_id", measureID, "error", err)
		writeInternalError(w, "querying sample history failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"measure_id": measureID,
		"samples":    samples,
		"count":      len(samples),
	})
}

// handleCommandEvents returns recorded lifecycle events for one command,
// newest first.
func (s *Server) handleCommandEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history recording is disabled")
		return
	}

	commandID := chi.URLParam(r, "id")
	limit, ok := parseLimit(r)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}

	events, err := s.history.Events(r.Context(), commandID, limit)
	if err != nil {
		s.logger.Error("command event query failed", "command_id", commandID, "error", err)
		writeInternalError(w, "querying command events failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"command_id": commandID,
		"events":     events,
		"count":      len(events),
	})
}
