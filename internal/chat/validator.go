package chat

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // hard cap on encoded size
	MaxTextChars    = 2000 // max character count
)

var (
	ErrEmptyMessage = errors.New("chat: message text is empty")
	ErrInvalidUTF8  = errors.New("chat: message contains invalid UTF-8")
	ErrTooLong      = errors.New("chat: message too long")
)

// ValidateMessage checks that a chat message meets content requirements.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("%w: exceeds %d byte limit", ErrTooLong, MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return ErrInvalidUTF8
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("%w: exceeds %d character limit", ErrTooLong, MaxTextChars)
	}
	return nil
}
