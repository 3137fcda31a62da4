package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/observability"
)

// SessionCookieName carries the session token for browser clients
const SessionCookieName = "session"

// IdentityResolver turns a session token into an Identity
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Identity, error)
}

// IdentityMiddleware attaches the caller's Identity when the request carries a
// valid session. Invalid, expired or revoked sessions continue unauthenticated.
func IdentityMiddleware(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidSession) {
					observability.FromContext(r.Context()).WithError(err).Error("failed to resolve session")
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := auth.WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth rejects requests without an Identity
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
