package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("stt: API key required")

	// ErrNoProviders is returned when a chain is built without providers.
	ErrNoProviders = errors.New("stt: no providers configured")

	// ErrEmptyRecording is returned when there is no audio to transcribe.
	ErrEmptyRecording = errors.New("stt: empty recording")

	// ErrProviderTimeout is returned when a provider exceeded the call timeout.
	ErrProviderTimeout = errors.New("stt: provider timed out")

	// ErrProviderFailed is returned for network errors and non-success responses.
	ErrProviderFailed = errors.New("stt: provider failed")

	// ErrLowConfidence is returned when a transcript scored below the threshold.
	ErrLowConfidence = errors.New("stt: transcript confidence below threshold")

	// ErrNoSpeech is returned when the provider heard nothing.
	ErrNoSpeech = errors.New("stt: no speech in recording")

	// ErrTranscriptionExhausted is returned when every allowed attempt failed.
	ErrTranscriptionExhausted = errors.New("stt: transcription failed on every provider")

	// ErrUnsupportedFormat is returned when a provider cannot accept the recording.
	ErrUnsupportedFormat = errors.New("stt: unsupported audio format")
)

// APIError represents an error response from an STT API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code from the API (if provided).
	Code string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stt [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("stt [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Is makes every API error match ErrProviderFailed.
func (e *APIError) Is(target error) bool {
	return target == ErrProviderFailed
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// LowConfidenceError carries a transcript that was rejected on confidence.
type LowConfidenceError struct {
	Text       string
	Confidence float64
	Threshold  float64
	Provider   string
}

// Error implements the error interface.
func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("stt [%s]: confidence %.2f below %.2f for %q", e.Provider, e.Confidence, e.Threshold, e.Text)
}

// Unwrap returns ErrLowConfidence.
func (e *LowConfidenceError) Unwrap() error {
	return ErrLowConfidence
}

// ChainError aggregates the failed attempts of one chain call.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "stt chain: no healthy providers"
	case 1:
		return fmt.Sprintf("stt chain: %v", e.Errors[0])
	default:
		return fmt.Sprintf("stt chain: %d attempts failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
	}
}

// Unwrap exposes every attempt error plus ErrTranscriptionExhausted.
func (e *ChainError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors)+1)
	out = append(out, e.Errors...)
	return append(out, ErrTranscriptionExhausted)
}
