package errors

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

// ServerErrorStatusThreshold defines the HTTP status code threshold for server errors.
const ServerErrorStatusThreshold = 500

// Classify maps any error on the scoring path to its ErrorKind. It is a pure
// function of the error chain. Unknown errors are transient: a scoring attempt
// is retried on any failure it cannot prove permanent.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var scoringErr *ScoringError
	if errors.As(err, &scoringErr) {
		return scoringErr.Kind
	}

	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		return KindFetch
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrUnknownProvider) || errors.Is(err, ErrNoModels) {
		return KindFatal
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return KindSchema
	}
	if errors.Is(err, ErrJSONValidation) || errors.Is(err, domain.ErrInvalidResult) {
		return KindSchema
	}

	return KindTransient
}

// ClassifyStatus determines the ErrorType of a provider failure from the HTTP
// status and the provider's own error code.
func ClassifyStatus(statusCode int, errorCode string) ErrorType {
	lowerCode := strings.ToLower(errorCode)
	if strings.Contains(lowerCode, "rate") || strings.Contains(lowerCode, "limit") {
		return ErrorTypeRateLimit
	}
	if strings.Contains(lowerCode, "timeout") {
		return ErrorTypeTimeout
	}
	if strings.Contains(lowerCode, "auth") || strings.Contains(lowerCode, "unauthorized") {
		return ErrorTypeAuth
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorTypeAuth
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrorTypeRequest
	default:
		if statusCode >= ServerErrorStatusThreshold {
			return ErrorTypeProvider
		}
		return ErrorTypeUnknown
	}
}
