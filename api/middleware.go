/*
middleware.go - Authentication middleware for the HTTP API

PURPOSE:
  Bearer-token authentication backed by auth.Tokens. Verified claims are
  stashed on the request context; AdminOnly layers an authorization check
  on top for the admin route group.

SEE ALSO:
  - server.go: Mounts the middleware on route groups
  - auth/token.go: Token issue/verify
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/vantage/invest-engine/auth"
)

type contextKey string

const claimsKey contextKey = "authClaims"

// ClaimsFromContext returns the verified claims for the request, if any.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// Authenticator rejects requests without a valid bearer token.
func (h *Handler) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}

		claims, err := h.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly requires an authenticated admin. Must run after Authenticator.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || !claims.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
