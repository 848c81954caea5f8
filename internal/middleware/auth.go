// Package middleware contains HTTP middleware for the application.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/anmolmahajan9/photo20-app/internal/auth"
	"github.com/anmolmahajan9/photo20-app/internal/domain"
	"github.com/anmolmahajan9/photo20-app/internal/handler"
	"github.com/anmolmahajan9/photo20-app/internal/identity"
)

// AuthMiddleware verifies the bearer ID token on incoming requests and
// applies the configured access policy.
type AuthMiddleware struct {
	verifier identity.Verifier
	policy   domain.AccessPolicy
	logger   *slog.Logger
}

// NewAuthMiddleware creates an AuthMiddleware.
func NewAuthMiddleware(verifier identity.Verifier, policy domain.AccessPolicy, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		policy:   policy,
		logger:   logger,
	}
}

// RequireUser verifies the Authorization bearer token, checks the access
// allowlist, and stores the principal in the request context. Requests
// without a valid token get 401; valid identities outside the allowlist
// get 403.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			handler.ErrorResponse(w, r, m.logger,
				domain.Unauthorized("auth.middleware", "Authentication required. Please sign in."))
			return
		}

		principal, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}

		if !m.policy.Allowed(*principal) {
			m.logger.Info("access denied by allowlist", "email", principal.Email)
			handler.ErrorResponse(w, r, m.logger,
				domain.Forbidden("auth.middleware", "Your account does not have access to this application."))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetPrincipal(r.Context(), principal)))
	})
}

// RequireAdmin requires an authenticated principal with admin privileges.
// Use after RequireUser.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := auth.GetPrincipal(r.Context())
		if principal == nil {
			handler.ErrorResponse(w, r, m.logger,
				domain.Unauthorized("auth.middleware", "Authentication required. Please sign in."))
			return
		}
		if !m.policy.IsAdmin(*principal) {
			handler.ErrorResponse(w, r, m.logger,
				domain.Forbidden("auth.middleware", "Administrator access required."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// Stack composes middleware; the first element is the outermost.
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
