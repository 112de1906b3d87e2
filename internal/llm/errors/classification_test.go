package errors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-clinaudit/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "unknown error is transient", err: io.ErrUnexpectedEOF, want: KindTransient},
		{name: "provider 503", err: &ProviderError{Provider: "openrouter", StatusCode: 503, Type: ErrorTypeProvider}, want: KindTransient},
		{name: "provider 429", err: &ProviderError{Provider: "openrouter", StatusCode: 429, Type: ErrorTypeRateLimit}, want: KindTransient},
		{name: "deadline is transient", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: KindTransient},
		{name: "cancellation is fatal", err: fmt.Errorf("call: %w", context.Canceled), want: KindFatal},
		{name: "unknown provider is fatal", err: fmt.Errorf("route: %w", ErrUnknownProvider), want: KindFatal},
		{name: "validation error", err: &ValidationError{Field: "score_calidad", Message: "out of range"}, want: KindSchema},
		{name: "wrapped validation error", err: fmt.Errorf("attempt 2: %w", &ValidationError{Field: "x"}), want: KindSchema},
		{name: "json sentinel", err: fmt.Errorf("%w: eof", ErrJSONValidation), want: KindSchema},
		{name: "struct validation", err: fmt.Errorf("%w: min", domain.ErrInvalidResult), want: KindSchema},
		{name: "fetch error", err: &domain.FetchError{Err: domain.ErrDetailNotFound}, want: KindFetch},
		{name: "scoring error keeps its kind", err: &ScoringError{Kind: KindExhausted, Err: io.EOF}, want: KindExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(KindTransient))
	assert.True(t, Retryable(KindSchema))
	assert.False(t, Retryable(KindFetch))
	assert.False(t, Retryable(KindFatal))
	assert.False(t, Retryable(KindExhausted))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   ErrorType
	}{
		{http.StatusTooManyRequests, "", ErrorTypeRateLimit},
		{http.StatusOK, "rate_limit_exceeded", ErrorTypeRateLimit},
		{http.StatusUnauthorized, "", ErrorTypeAuth},
		{http.StatusForbidden, "", ErrorTypeAuth},
		{http.StatusGatewayTimeout, "", ErrorTypeTimeout},
		{http.StatusBadRequest, "", ErrorTypeRequest},
		{http.StatusBadGateway, "", ErrorTypeProvider},
		{599, "", ErrorTypeProvider},
		{http.StatusTeapot, "", ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.status, tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status, tt.code))
		})
	}
}

func TestScoringError(t *testing.T) {
	cause := &ProviderError{Provider: "openrouter", StatusCode: 502, Message: "bad gateway"}
	err := &ScoringError{Kind: KindExhausted, Attempts: 6, Err: cause}

	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Contains(t, err.Error(), "after 6 attempts")

	var pe *ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, 502, pe.StatusCode)

	partial := &ScoringError{Kind: KindTransient, Model: "openrouter/a", Attempts: 3, Err: cause}
	assert.NotErrorIs(t, partial, ErrMaxRetriesExceeded)
	assert.Contains(t, partial.Error(), "openrouter/a")
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "validation failed for field score_calidad: must be in [0,100]",
		(&ValidationError{Field: "score_calidad", Message: "must be in [0,100]"}).Error())
	assert.Equal(t, "validation failed: not an object", (&ValidationError{Message: "not an object"}).Error())
}
