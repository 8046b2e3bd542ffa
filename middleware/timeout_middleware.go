package middleware

import (
	"context"
	"encoding/json"
	"time"

	"devtools-rpc/message"
)

// TimeOutMiddleware bounds each command by timeout. An expired command returns
// context.DeadlineExceeded and only its own waiter is detached.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}
