package scoring

import (
	"context"

	"github.com/ahrav/go-clinaudit/internal/llm/transport"
)

// NewValidationMiddleware parses and validates the model output of every
// attempt. It sits inside the retry middleware so a malformed answer costs one
// attempt, exactly like a transport failure.
func NewValidationMiddleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}

			result, err := ParseResult(resp.Content)
			if err != nil {
				return nil, err
			}
			resp.Result = result
			return resp, nil
		})
	}
}
