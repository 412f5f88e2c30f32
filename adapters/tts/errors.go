package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyText        = errors.New("text cannot be empty")
	ErrInvalidVoice     = errors.New("invalid or unsupported voice")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUnauthorized     = errors.New("credentials rejected")
	ErrTokenUnavailable = errors.New("access token unavailable")
)

// SynthesisError carries the provider's failure details.
type SynthesisError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
	// Retryable is true for transient upstream failures.
	Retryable bool
}

func (e *SynthesisError) Error() string {
	msg := e.Provider + ": " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// statusError maps a non-200 upstream response to a SynthesisError.
func statusError(provider string, status int, body string) *SynthesisError {
	var cause error
	switch status {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		cause = ErrUnauthorized
	case http.StatusNotFound:
		cause = ErrInvalidVoice
	}
	return &SynthesisError{
		Provider:   provider,
		StatusCode: status,
		Message:    body,
		Cause:      cause,
		Retryable:  status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
	}
}
