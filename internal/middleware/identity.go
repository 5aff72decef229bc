package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/audit"
)

type contextKey string

const UserIDContextKey contextKey = "userID"
const ConnectionIDContextKey contextKey = "connectionID"

// UserIDHeader carries the already-verified caller identity set by the
// authentication gateway. Credentials are never checked here; this
// service only authorizes identity against session and match ownership.
const UserIDHeader = "X-User-ID"

// ConnectionIDHeader optionally distinguishes concurrent connections of
// the same user for rate limiting. Absent, the user id keys the budget.
const ConnectionIDHeader = "X-Connection-ID"

const maxIdentityLength = 128

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDContextKey).(string); ok {
		return userID
	}
	return ""
}

func GetConnectionID(ctx context.Context) string {
	if connID, ok := ctx.Value(ConnectionIDContextKey).(string); ok && connID != "" {
		return connID
	}
	return GetUserID(ctx)
}

// IdentityMiddleware rejects requests arriving without a gateway-issued
// identity.
type IdentityMiddleware struct{}

func NewIdentityMiddleware() *IdentityMiddleware {
	return &IdentityMiddleware{}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" || len(userID) > maxIdentityLength {
			log.Warn().Msg("identity middleware: missing or malformed user identity")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventIdentityRejected})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing caller identity",
			})
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		if connID := r.Header.Get(ConnectionIDHeader); connID != "" && len(connID) <= maxIdentityLength {
			ctx = context.WithValue(ctx, ConnectionIDContextKey, connID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
