package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/leadrelay/keygate/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the management session principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// RequireSession guards the management API with a Bearer session token.
// On success the principal is attached to the request context.
func RequireSession(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized,
					"Authentication required. Provide a Bearer token.", nil)
				return
			}

			p, err := sessions.Validate(strings.TrimPrefix(authHeader, "Bearer "))
			if errors.Is(err, service.ErrTokenExpired) {
				WriteError(w, http.StatusUnauthorized, CodeTokenExpired, "Session token has expired", nil)
				return
			}
			if err != nil {
				WriteError(w, http.StatusUnauthorized, CodeInvalidToken, "Invalid session token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the session principal from the context.
// Returns nil if no principal is present.
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}
