package errors

import (
	"errors"
	"fmt"
)

// ErrorKind tags every failure of the scoring path. The kind, not the concrete
// error type, drives retry policy.
type ErrorKind string

const (
	// KindTransient covers network, HTTP and provider-side failures (retryable).
	KindTransient ErrorKind = "transient"

	// KindSchema indicates the model answered but the payload failed parsing or
	// validation (retryable: the next attempt may produce a valid payload).
	KindSchema ErrorKind = "schema"

	// KindFetch indicates the detail record for an item could not be obtained.
	// Never retried within a run.
	KindFetch ErrorKind = "fetch"

	// KindFatal aborts the current model immediately: unknown provider,
	// misconfiguration, or cancellation of the caller's context.
	KindFatal ErrorKind = "fatal"

	// KindExhausted is returned when every attempt of every model failed.
	KindExhausted ErrorKind = "exhausted"
)

// Retryable reports whether a failure of kind k warrants another attempt
// against the same model.
func Retryable(k ErrorKind) bool {
	return k == KindTransient || k == KindSchema
}

// ErrorType refines transient provider failures for logs and metrics.
//
//nolint:godot // linter incorrectly flags properly capitalized comment
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates the provider rejected the call with 429.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues.
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates provider service unavailable (5xx).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeAuth indicates authentication failed.
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypeRequest indicates the provider rejected the request body.
	ErrorTypeRequest ErrorType = "bad_request"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Common scoring errors.
var (
	// ErrUnknownProvider indicates a model id names a provider with no adapter.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNoModels indicates the client was built without any model to call.
	ErrNoModels = errors.New("no scoring models configured")

	// ErrEmptyResponse indicates the provider returned no text.
	ErrEmptyResponse = errors.New("empty provider response")

	// ErrInvalidResponse indicates the provider returned an undecodable envelope.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrJSONValidation indicates the model payload is not a JSON object.
	ErrJSONValidation = errors.New("JSON validation failed")

	// ErrMaxRetriesExceeded indicates every attempt of every model failed.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ProviderError captures structured error responses from scoring providers.
type ProviderError struct {
	Provider   string    `json:"provider"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Type       ErrorType `json:"type"`
	Cause      error     `json:"-"`
}

// Error returns formatted provider error with status code context.
func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// ValidationError captures a schema failure of the model payload with the
// offending field, so attempt logs say exactly what the model got wrong.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error returns formatted validation error with field-specific context.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ScoringError is the terminal error of a scoring call or of one model's
// attempt budget. Err is the last underlying failure.
type ScoringError struct {
	Kind     ErrorKind `json:"kind"`
	Model    string    `json:"model"`
	Attempts int       `json:"attempts"`
	Err      error     `json:"-"`
}

func (e *ScoringError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("scoring %s after %d attempts: %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("scoring %s on %s after %d attempts: %v", e.Kind, e.Model, e.Attempts, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

// Is lets callers match an exhausted run with errors.Is(err, ErrMaxRetriesExceeded).
func (e *ScoringError) Is(target error) bool {
	return target == ErrMaxRetriesExceeded && e.Kind == KindExhausted
}
