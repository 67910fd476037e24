package core

import (
	"fmt"
)

// Error is the canonical error for every failure that crosses a package
// boundary in voicebridge. Adapter and pipeline failures are wrapped into
// an *Error so the orchestrator can decide on a fallback instruction
// instead of letting a fault reach the telephony gateway unanswered.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest       ErrorType = "invalid_request_error"
	ErrRecordingUnavailable ErrorType = "recording_unavailable_error"
	ErrTranscription        ErrorType = "transcription_error"
	ErrGeneration           ErrorType = "generation_error"
	ErrSynthesis            ErrorType = "synthesis_error"
	ErrConfiguration        ErrorType = "configuration_error"
	ErrProvider             ErrorType = "provider_error"
	ErrAPI                  ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error naming
// the offending callback field.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewRecordingUnavailableError creates an error for a recording that never
// became fetchable within the retry budget.
func NewRecordingUnavailableError(message string, cause error) *Error {
	return &Error{
		Type:    ErrRecordingUnavailable,
		Message: message,
		Cause:   cause,
	}
}

// NewTranscriptionError creates a speech-to-text failure error.
func NewTranscriptionError(message string, cause error) *Error {
	return &Error{
		Type:    ErrTranscription,
		Message: message,
		Cause:   cause,
	}
}

// NewGenerationError creates a reply-generation failure error.
func NewGenerationError(message string, cause error) *Error {
	return &Error{
		Type:    ErrGeneration,
		Message: message,
		Cause:   cause,
	}
}

// NewSynthesisError creates a text-to-speech failure error.
func NewSynthesisError(message string, cause error) *Error {
	return &Error{
		Type:    ErrSynthesis,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigurationError creates a startup configuration error.
func NewConfigurationError(message string) *Error {
	return &Error{
		Type:    ErrConfiguration,
		Message: message,
	}
}

// NewProviderError wraps a failure from a named external provider.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:    ErrProvider,
		Message: provider,
		Cause:   underlying,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}
