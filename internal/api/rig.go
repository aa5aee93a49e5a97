package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Eventect/roastsight-core/internal/driver"
)

// handleAbout returns the rig's static metadata: identity, measures, and
// commands with their supported verbs and bounds.
func (s *Server) handleAbout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rig.About())
}

// handleState returns a point-in-time snapshot of the full rig state.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rig.Snapshot())
}

// paramsResponse mirrors driver.Config with wire-friendly fields.
// Durations are expressed in milliseconds.
type paramsResponse struct {
	ConnectionRejectionPercentage   float64 `json:"connection_rejection_percentage"`
	SamplingFrequencyMS             int64   `json:"sampling_frequency_ms"`
	ReconnectDelayMS                int64   `json:"reconnect_delay_ms"`
	MaxReconnectionAttempts         int     `json:"max_reconnection_attempts"`
	CommandRetryLimited             bool    `json:"command_retry_limited"`
	MaxNumberOfRetries              int     `json:"max_number_of_retries"`
	RetryFrequency                  int     `json:"retry_frequency"`
	DisconnectionOnUpdatePercentage float64 `json:"disconnection_on_update_percentage"`
	ActuationStep                   float64 `json:"actuation_step"`
	ActuationStepIntervalMS         int64   `json:"actuation_step_interval_ms"`
	ConvergenceBand                 float64 `json:"convergence_band"`
	ConvergenceTolerance            float64 `json:"convergence_tolerance"`
}

// handleParams returns the driver's recognised options and their current values.
func (s *Server) handleParams(w http.ResponseWriter, _ *http.Request) {
	cfg := s.rig.Params()
	writeJSON(w, http.StatusOK, paramsResponse{
		ConnectionRejectionPercentage:   cfg.ConnectionRejectionPercentage,
		SamplingFrequencyMS:             cfg.SamplingInterval.Milliseconds(),
		ReconnectDelayMS:                cfg.ReconnectDelay.Milliseconds(),
		MaxReconnectionAttempts:         cfg.MaxReconnectionAttempts,
		CommandRetryLimited:             cfg.CommandRetryLimited,
		MaxNumberOfRetries:              cfg.MaxNumberOfRetries,
		RetryFrequency:                  cfg.RetryFrequency,
		DisconnectionOnUpdatePercentage: cfg.DisconnectionOnUpdatePercentage,
		ActuationStep:                   cfg.ActuationStep,
		ActuationStepIntervalMS:         cfg.ActuationStepInterval.Milliseconds(),
		ConvergenceBand:                 cfg.ConvergenceBand,
		ConvergenceTolerance:            cfg.ConvergenceTolerance,
	})
}

// handleConnect starts the rig's connection sequence.
//
// Connection establishment is asynchronous: rejected attempts are retried
// in the background, so the handler acknowledges the request rather than
// reporting the outcome. Poll /state or subscribe over WebSocket to see
// the result.
func (s *Server) handleConnect(w http.ResponseWriter, _ *http.Request) {
	if s.rig.Connected() {
		writeJSON(w, http.StatusOK, map[string]any{"status": "connected"})
		return
	}

	s.rig.Connect()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "connecting"})
}

// handleDisconnect stops sampling, cancels in-flight actuation, and drops
// the rig connection. Measure and command state is retained for the next
// connection.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.rig.Disconnect()
	writeJSON(w, http.StatusOK, map[string]any{"status": "disconnected"})
}

// commandRequest is the body of POST /commands/{id}.
type commandRequest struct {
	Verb   string  `json:"verb"`
	Target float64 `json:"target"`
}

// commandResponse acknowledges an accepted command issuance.
type commandResponse struct {
	IssueID   string  `json:"issue_id"`
	CommandID string  `json:"command_id"`
	Verb      string  `json:"verb"`
	Target    float64 `json:"target"`
}

// handleCommand issues a verb against a command channel.
//
// The response acknowledges acceptance; convergence happens over subsequent
// sampling ticks and is reported via /state, the WebSocket event stream,
// and the recorded event history.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	commandID := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if req.Verb == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "verb is required")
		return
	}

	verb, err := driver.ParseVerb(req.Verb)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	issueID, err := s.rig.Command(commandID, verb, req.Target)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, commandResponse{
			IssueID:   issueID,
			CommandID: commandID,
			Verb:      verb.String(),
			Target:    req.Target,
		})
	case errors.Is(err, driver.ErrUnknownCommand):
		writeNotFound(w, "unknown command: "+commandID)
	case errors.Is(err, driver.ErrUnsupportedVerb):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("command issuance failed", "command_id", commandID, "error", err)
		writeInternalError(w, "command issuance failed")
	}
}
