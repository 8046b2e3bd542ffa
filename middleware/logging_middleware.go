package middleware

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"devtools-rpc/message"
)

// LoggingMiddleware logs every command with its id, duration and error.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (json.RawMessage, error) {
			start := time.Now()
			result, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Int64("id", req.ID),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("command failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("command done", fields...)
			}
			return result, err
		}
	}
}
