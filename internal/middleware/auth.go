package middleware

import (
	"context"
	"net/http"

	"vigil/internal/auth"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey ContextKey = "user"
)

// AuthMiddleware creates an HTTP middleware that authenticates requests
// through the shared authenticator. Tokens are accepted the same way as
// on the websocket upgrade (Bearer header or token query parameter).
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticator.ValidateRequest(r)
			if err != nil {
				switch err {
				case auth.ErrMissingToken:
					http.Error(w, `{"error": "missing token"}`, http.StatusUnauthorized)
				case auth.ErrExpiredToken:
					http.Error(w, `{"error": "token has expired"}`, http.StatusUnauthorized)
				default:
					http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
				}
				return
			}
			if claims == nil {
				// Authentication disabled
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext retrieves user claims from the request context
func GetUserFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}
