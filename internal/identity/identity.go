// Package identity verifies bearer credentials against the external
// identity provider and resolves them to a Principal.
//
// The provider is treated as authoritative: a token it signed is trusted as
// is, and nothing here re-validates user state beyond the token claims.
package identity

import (
	"context"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// Verifier validates an ID token and returns the principal it identifies.
//
// Implementations:
// - GoogleVerifier: verifies Firebase/GCP ID tokens against Google's
//   published signing certificates.
// - StaticVerifier: fixed token table for development and tests.
type Verifier interface {
	// Verify returns the principal for a valid token, or a domain error with
	// code EUNAUTHORIZED for a missing, malformed, or expired credential.
	Verify(ctx context.Context, idToken string) (*domain.Principal, error)
}
