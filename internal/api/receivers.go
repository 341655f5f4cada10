package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	fsbridge "github.com/nerrad567/gray-logic-fsapi/internal/bridges/fsapi"
)

// discoveryTimeout bounds a discovery run triggered over HTTP. The search
// itself waits discovery.wait; the rest covers friendly-name lookups.
const discoveryTimeout = 30 * time.Second

// commandRequest is the request body for POST /receivers/{id}/commands.
type commandRequest struct {
	ID         string         `json:"id,omitempty"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (s *Server) handleListReceivers(w http.ResponseWriter, _ *http.Request) {
	receivers := s.bridge.Receivers()
	writeJSON(w, http.StatusOK, map[string]any{
		"receivers": receivers,
		"count":     len(receivers),
	})
}

func (s *Server) handleGetReceiver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := s.bridge.Receiver(id)
	if !ok {
		writeNotFound(w, "receiver not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCommand runs a command and answers with its acknowledgement.
// The ack is also published on MQTT, so Core sees API-originated commands.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.bridge.Receiver(id); !ok {
		writeNotFound(w, "receiver not found")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	ack := s.bridge.Execute(fsbridge.CommandMessage{
		ID:         req.ID,
		Timestamp:  time.Now().UTC(),
		DeviceID:   id,
		Command:    req.Command,
		Parameters: req.Parameters,
		Source:     "api",
		UserID:     subjectFrom(r.Context()),
	})

	writeJSON(w, ackHTTPStatus(ack), ack)
}

// ackHTTPStatus maps an acknowledgement to a response status.
func ackHTTPStatus(ack fsbridge.AckMessage) int {
	if ack.Error == nil {
		return http.StatusOK
	}
	switch ack.Error.Code {
	case fsbridge.ErrCodeInvalidCommand, fsbridge.ErrCodeInvalidParameters:
		return http.StatusBadRequest
	case fsbridge.ErrCodeNotConfigured:
		return http.StatusNotFound
	case fsbridge.ErrCodeRejected:
		return http.StatusConflict
	case fsbridge.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), discoveryTimeout)
	defer cancel()

	msg, err := s.bridge.Discover(ctx)
	switch {
	case errors.Is(err, fsbridge.ErrDiscoveryDisabled):
		writeError(w, http.StatusConflict, ErrCodeConflict, "discovery is not enabled")
	case err != nil:
		s.logger.Warn("discovery request failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "discovery failed")
	default:
		writeJSON(w, http.StatusOK, msg)
	}
}
