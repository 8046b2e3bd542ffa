// Package middleware wraps the outbound command path of a connection.
//
//	caller ─→ Logging ─→ Timeout ─→ RateLimit ─→ round trip (id, waiter, write, await)
//
// A HandlerFunc sees the request before its id is assigned; the id is filled in
// by the innermost round trip and is visible to outer middleware after next returns.
package middleware

import (
	"context"
	"encoding/json"

	"devtools-rpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) (json.RawMessage, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
