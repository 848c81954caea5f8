// Package auth provides authentication context helpers.
//
// It is imported by both middleware and handler packages without causing
// import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const principalContextKey contextKey = "principal"

// GetPrincipal retrieves the authenticated principal from the context.
// Returns nil if the request is unauthenticated.
func GetPrincipal(ctx context.Context) *domain.Principal {
	principal, ok := ctx.Value(principalContextKey).(*domain.Principal)
	if !ok {
		return nil
	}
	return principal
}

// GetPrincipalFromRequest is a convenience wrapper around GetPrincipal.
func GetPrincipalFromRequest(r *http.Request) *domain.Principal {
	return GetPrincipal(r.Context())
}

// SetPrincipal stores a principal in the context. Called by the auth
// middleware after verifying the bearer token.
func SetPrincipal(ctx context.Context, principal *domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}
