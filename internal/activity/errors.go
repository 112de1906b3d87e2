package activity

import (
	"errors"

	"go.temporal.io/sdk/temporal"
)

// Errors surfaced to the workflow. The Temporal error type of each is the
// tag passed to retryable/nonRetryable.
var (
	// ErrActivityValidation is returned when activity input validation fails.
	ErrActivityValidation = errors.New("activity input validation failed")

	// ErrRunSetup is returned when the pipeline cannot be assembled, for
	// example because configuration is invalid. Retrying will not help.
	ErrRunSetup = errors.New("audit run setup failed")
)

// Temporal application error types.
const (
	TypeValidation = "Validation"
	TypeSetup      = "Setup"
	TypeBatch      = "BatchUnavailable"
	TypeRun        = "Run"
)

// nonRetryable wraps an error as a Temporal non-retryable application error.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps an error so the workflow retry policy applies to it.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationErrorWithCause(msg, tag, cause)
}
