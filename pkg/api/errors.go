package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"digital.vasic.prompthunter/pkg/aiscore"
	"digital.vasic.prompthunter/pkg/logging"
	"digital.vasic.prompthunter/pkg/session"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response", logging.ErrorField(err))
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure maps err onto a status code and a message safe to
// show a player.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrRoleNotFound),
		errors.Is(err, session.ErrPhaseNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, session.ErrNotCopyPhase):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, session.ErrAIUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	var aerr *aiscore.Error
	if errors.As(err, &aerr) {
		status := http.StatusBadGateway
		switch aerr.Kind {
		case aiscore.KindMissingKey, aiscore.KindInvalidKeyFormat:
			status = http.StatusBadRequest
		case aiscore.KindUnauthorized:
			status = http.StatusForbidden
		case aiscore.KindRateLimited:
			status = http.StatusTooManyRequests
			if aerr.RetryAfter > 0 {
				secs := int(math.Ceil(aerr.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
		}
		s.writeJSON(w, status, errorResponse{
			Error: aiscore.UserMessage(err),
			Kind:  string(aerr.Kind),
		})
		return
	}

	s.logger.Error("request failed", logging.ErrorField(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
