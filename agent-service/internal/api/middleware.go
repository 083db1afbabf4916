package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/multimart/marketplace/internal/role"
	"github.com/multimart/marketplace/internal/session"
)

// RequireCapability rejects principals whose role resolves to none of caps.
// Runs after session.Middleware, so an absent principal is a 401.
func RequireCapability(caps ...role.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := session.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			for _, c := range caps {
				if role.Satisfies(principal.RawRole, c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Forbidden")
		})
	}
}

// InternalAuthMiddleware guards service-to-service routes with a shared key.
// An empty key disables the check for local environments.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(requiredKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
