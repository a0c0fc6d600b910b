package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/closetloop/gatekeeper/internal/gate"
	"github.com/closetloop/gatekeeper/internal/moderation"
	"github.com/closetloop/gatekeeper/internal/protocol"
)

// sendResponse is the body of POST /v1/conversations/{id}/messages.
type sendResponse struct {
	moderation.Decision
	Throttled   bool `json:"throttled,omitempty"`
	RetryAfter  int  `json:"retry_after,omitempty"` // seconds
	Muted       bool `json:"muted,omitempty"`
	MutedFor    int  `json:"muted_for,omitempty"`    // seconds
	MuteApplied int  `json:"mute_applied,omitempty"` // seconds
}

// reviewResponse is the body of POST /v1/listings/{id}/reviews.
type reviewResponse struct {
	Accepted   bool                        `json:"accepted"`
	Result     moderation.ValidationResult `json:"result"`
	Warning    string                      `json:"warning,omitempty"`
	RetryAfter int                         `json:"retry_after,omitempty"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req protocol.ContentRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, moderation.Detect(req.Content))
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req protocol.ContentRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, protocol.RedactResponse{Redacted: moderation.Redact(req.Content)})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req protocol.ContentRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, moderation.Validate(req.Content))
}

func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	var req protocol.ModerateRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, moderation.Moderate(req.Content, req.PriorMessages))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req protocol.SendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.gate.Send(r.Context(), gate.SendRequest{
		ConversationID: mux.Vars(r)["id"],
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		Text:           req.Content,
	})
	if err != nil {
		s.writeGateError(w, r, err)
		return
	}

	resp := sendResponse{
		Decision:    out.Decision,
		Throttled:   out.Throttled,
		RetryAfter:  seconds(out.RetryAfter),
		Muted:       out.Muted,
		MutedFor:    seconds(out.MutedFor),
		MuteApplied: seconds(out.MuteApplied),
	}
	switch {
	case out.Throttled:
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
		writeJSON(w, http.StatusTooManyRequests, resp)
	case out.Muted:
		writeJSON(w, http.StatusForbidden, resp)
	case out.Decision.Allowed():
		writeJSON(w, http.StatusOK, resp)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	}
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var req protocol.ReviewRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.gate.SubmitReview(r.Context(), gate.ReviewRequest{
		ListingID: mux.Vars(r)["id"],
		AuthorID:  req.AuthorID,
		Text:      req.Content,
	})
	if err != nil {
		s.writeGateError(w, r, err)
		return
	}

	resp := reviewResponse{
		Accepted:   out.Accepted,
		Result:     out.Result,
		Warning:    out.Warning,
		RetryAfter: seconds(out.RetryAfter),
	}
	switch {
	case out.Throttled:
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
		writeJSON(w, http.StatusTooManyRequests, resp)
	case out.Accepted:
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	}
}

func (s *Server) handleSanitizeField(w http.ResponseWriter, r *http.Request) {
	var req protocol.SanitizeRequest
	if !s.decode(w, r, &req) {
		return
	}

	value, err := s.gate.SanitizeField(r.Context(), gate.SanitizeRequest{
		UserID: req.UserID,
		Field:  mux.Vars(r)["field"],
		Value:  req.Content,
	})
	if err != nil {
		s.writeGateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.SanitizeResponse{Value: value})
}

// decode reads a JSON body into v and writes a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	code := "malformed_request"
	switch {
	case errors.Is(err, protocol.ErrMissingContent):
		code = "missing_content"
	case errors.Is(err, protocol.ErrInvalidContent):
		code = "invalid_content"
	}
	s.logger.WithRequestID(requestID(r.Context())).Debug("rejected request body",
		zap.String("code", code), zap.Error(err))
	writeError(w, http.StatusBadRequest, code, err.Error())
	return false
}

// writeGateError maps gate errors to HTTP statuses.
func (s *Server) writeGateError(w http.ResponseWriter, r *http.Request, err error) {
	var throttled *gate.ThrottledError
	switch {
	case errors.Is(err, moderation.ErrPersonalInfo):
		writeError(w, http.StatusUnprocessableEntity, "personal_info", err.Error())
	case errors.As(err, &throttled):
		w.Header().Set("Retry-After", strconv.Itoa(seconds(throttled.RetryAfter)))
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, gate.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, "invalid_message", err.Error())
	case errors.Is(err, gate.ErrDelivery):
		s.logger.WithRequestID(requestID(r.Context())).Error("delivery failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "delivery_failed", "message could not be delivered")
	default:
		s.logger.WithRequestID(requestID(r.Context())).Error("gate error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorResponse{Code: code, Message: message})
}

// seconds rounds d up to whole seconds.
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
