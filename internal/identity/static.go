package identity

import (
	"context"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// StaticVerifier resolves tokens from a fixed table. Development only.
type StaticVerifier struct {
	tokens map[string]domain.Principal
}

// NewStaticVerifier creates a verifier that accepts exactly the given
// token -> principal mappings.
func NewStaticVerifier(tokens map[string]domain.Principal) *StaticVerifier {
	copied := make(map[string]domain.Principal, len(tokens))
	for token, principal := range tokens {
		copied[token] = principal
	}
	return &StaticVerifier{tokens: copied}
}

// Verify implements Verifier.
func (v *StaticVerifier) Verify(_ context.Context, idToken string) (*domain.Principal, error) {
	const op = "identity.verify"

	principal, ok := v.tokens[idToken]
	if !ok {
		return nil, domain.Unauthorized(op, "Invalid or expired session. Please sign in again.")
	}
	return &principal, nil
}
