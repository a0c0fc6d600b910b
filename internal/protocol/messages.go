// Package protocol defines the JSON request and result types exchanged with
// gatekeeper over HTTP and NATS. Decoding is strict about content: a missing,
// null or non-string content field is an error, never an empty message.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/closetloop/gatekeeper/internal/moderation"
)

var (
	// ErrMalformedRequest is returned when the payload is not a JSON object
	// of the expected shape.
	ErrMalformedRequest = errors.New("protocol: malformed request")

	// ErrMissingContent is returned when content is absent or null.
	ErrMissingContent = errors.New("protocol: missing content")

	// ErrInvalidContent is returned when content is present but not a string.
	ErrInvalidContent = errors.New("protocol: content must be a string")
)

// contentFrom decodes a raw content field into a string.
func contentFrom(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrMissingContent
	}
	if raw[0] != '"' {
		return "", ErrInvalidContent
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return s, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
}

// ---------------------------------------------------------------------------
// HTTP request bodies
// ---------------------------------------------------------------------------

// ContentRequest is the body of /v1/detect, /v1/redact and /v1/validate.
type ContentRequest struct {
	Content string `json:"content"`
}

// UnmarshalJSON rejects missing or non-string content.
func (r *ContentRequest) UnmarshalJSON(data []byte) error {
	var w struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return malformed(err)
	}
	c, err := contentFrom(w.Content)
	if err != nil {
		return err
	}
	r.Content = c
	return nil
}

// priorMessage is moderation.Message with strict content decoding.
type priorMessage struct {
	Content json.RawMessage `json:"content"`
}

// ModerateRequest is the body of /v1/moderate. PriorMessages is the recent
// history the spam check compares against; it may be omitted.
type ModerateRequest struct {
	Content       string               `json:"content"`
	PriorMessages []moderation.Message `json:"prior_messages"`
}

// UnmarshalJSON rejects missing or non-string content, including in any
// prior message.
func (r *ModerateRequest) UnmarshalJSON(data []byte) error {
	var w struct {
		Content       json.RawMessage `json:"content"`
		PriorMessages []priorMessage  `json:"prior_messages"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return malformed(err)
	}
	c, err := contentFrom(w.Content)
	if err != nil {
		return err
	}
	prior := make([]moderation.Message, 0, len(w.PriorMessages))
	for i, p := range w.PriorMessages {
		pc, err := contentFrom(p.Content)
		if err != nil {
			return fmt.Errorf("prior_messages[%d]: %w", i, err)
		}
		prior = append(prior, moderation.Message{Content: pc})
	}
	r.Content = c
	r.PriorMessages = prior
	return nil
}

// SendMessageRequest is the body of POST /v1/conversations/{id}/messages.
type SendMessageRequest struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

// UnmarshalJSON rejects missing or non-string content.
func (r *SendMessageRequest) UnmarshalJSON(data []byte) error {
	type plain SendMessageRequest
	var w struct {
		plain
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return malformed(err)
	}
	c, err := contentFrom(w.Content)
	if err != nil {
		return err
	}
	*r = SendMessageRequest(w.plain)
	r.Content = c
	return nil
}

// ReviewRequest is the body of POST /v1/listings/{id}/reviews.
type ReviewRequest struct {
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`
}

// UnmarshalJSON rejects missing or non-string content.
func (r *ReviewRequest) UnmarshalJSON(data []byte) error {
	type plain ReviewRequest
	var w struct {
		plain
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return malformed(err)
	}
	c, err := contentFrom(w.Content)
	if err != nil {
		return err
	}
	*r = ReviewRequest(w.plain)
	r.Content = c
	return nil
}

// SanitizeRequest is the body of POST /v1/profile/fields/{field}/sanitize.
type SanitizeRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

// UnmarshalJSON rejects missing or non-string content.
func (r *SanitizeRequest) UnmarshalJSON(data []byte) error {
	type plain SanitizeRequest
	var w struct {
		plain
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return malformed(err)
	}
	c, err := contentFrom(w.Content)
	if err != nil {
		return err
	}
	*r = SanitizeRequest(w.plain)
	r.Content = c
	return nil
}

// ---------------------------------------------------------------------------
// HTTP responses
// ---------------------------------------------------------------------------

// RedactResponse is returned by /v1/redact.
type RedactResponse struct {
	Redacted string `json:"redacted"`
}

// SanitizeResponse is returned by a successful field sanitize.
type SanitizeResponse struct {
	Value string `json:"value"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// NATS moderation.check
// ---------------------------------------------------------------------------

// ModerationRequest is published on moderation.check by chat servers that
// want a message moderated and, if allowed, delivered.
type ModerationRequest struct {
	RequestID      string `json:"request_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Content        string `json:"content"`
}

// UnmarshalJSON rejects missing or non-string content.
func (r *ModerationRequest) UnmarshalJSON(data []byte) error {
	type plain ModerationRequest
	var w struct {
		plain
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return malformed(err)
	}
	c, err := contentFrom(w.Content)
	if err != nil {
		return err
	}
	*r = ModerationRequest(w.plain)
	r.Content = c
	return nil
}

// Validate checks that the routing fields are present.
func (r ModerationRequest) Validate() error {
	switch {
	case r.ConversationID == "":
		return fmt.Errorf("%w: conversation_id is required", ErrMalformedRequest)
	case r.SenderID == "":
		return fmt.Errorf("%w: sender_id is required", ErrMalformedRequest)
	}
	return nil
}

// ModerationResult is published to moderation.result.<sender_id>. Action is
// empty when the message was throttled, muted or rejected with Error.
type ModerationResult struct {
	RequestID      string            `json:"request_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Action         moderation.Action `json:"action,omitempty"`
	Message        string            `json:"message,omitempty"`
	Redacted       string            `json:"redacted,omitempty"`
	Throttled      bool              `json:"throttled,omitempty"`
	RetryAfter     int               `json:"retry_after,omitempty"` // seconds
	Muted          bool              `json:"muted,omitempty"`
	MutedFor       int               `json:"muted_for,omitempty"` // seconds
	Error          string            `json:"error,omitempty"`
}

// ParseModerationRequest decodes and validates a moderation.check payload.
func ParseModerationRequest(data []byte) (ModerationRequest, error) {
	var req ModerationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ModerationRequest{}, err
	}
	if err := req.Validate(); err != nil {
		return ModerationRequest{}, err
	}
	return req, nil
}
