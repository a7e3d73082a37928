package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"rfq-realtime/handlers/auth"
)

type contextKey string

// ClaimsContextKey carries the verified service claims through the request
// context.
const ClaimsContextKey = contextKey("claims")

// ServiceAuth guards the administrative ingress: only requests carrying a
// bearer service token signed with the shared secret get through.
func ServiceAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Authorization header is required"})
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Authorization header format must be Bearer {token}"})
				return
			}

			claims, err := auth.ParseServiceToken(parts[1], secret)
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
