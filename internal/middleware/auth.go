package middleware

import (
	"context"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/sharedledger/internal/auth"
)

type contextKey string

// ActorIDKey holds the authenticated participant ID.
const ActorIDKey contextKey = "actor_id"

// ActorID returns the authenticated participant, or "" before RequireAuth ran.
func ActorID(ctx context.Context) string {
	actorID, _ := ctx.Value(ActorIDKey).(string)
	return actorID
}

// WithActorID returns a context carrying actorID.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorIDKey, actorID)
}

// RequireAuth rejects calls without a valid bearer token and stores the
// token subject as the acting participant.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(token)
			if err != nil {
				slog.WarnContext(ctx, "Rejected token", "procedure", req.Spec().Procedure, "error", err)
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			return next(WithActorID(ctx, claims.ParticipantID()), req)
		}
	}
}
