package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor logs every RPC with its procedure, actor and duration.
// Install it inside RequireAuth so the actor is known. Connect errors are
// caller problems and log at warn; anything else logs at error.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	logger := slog.Default().With("component", "rpc")
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []any{
				"procedure", req.Spec().Procedure,
				"actor_id", ActorID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			var connectErr *connect.Error
			switch {
			case err == nil:
				logger.InfoContext(ctx, "RPC ok", attrs...)
			case errors.As(err, &connectErr) && connectErr.Code() != connect.CodeUnavailable && connectErr.Code() != connect.CodeInternal:
				logger.WarnContext(ctx, "RPC error", append(attrs, "code", connectErr.Code(), "error", connectErr.Message())...)
			default:
				logger.ErrorContext(ctx, "RPC error", append(attrs, "error", err)...)
			}
			return resp, err
		}
	}
}
