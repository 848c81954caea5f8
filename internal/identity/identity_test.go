package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

func TestStaticVerifier(t *testing.T) {
	verifier := NewStaticVerifier(map[string]domain.Principal{
		"token-1": {UID: "uid-1", Email: "one@example.com"},
	})

	principal, err := verifier.Verify(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", principal.UID)
	assert.Equal(t, "one@example.com", principal.Email)

	_, err = verifier.Verify(context.Background(), "unknown")
	require.Error(t, err)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))

	_, err = verifier.Verify(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}

func TestCertCacheTTL(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"with max-age", "public, max-age=21600, must-revalidate", 21600 * time.Second},
		{"no max-age", "no-cache", defaultCertTTL},
		{"empty header", "", defaultCertTTL},
		{"zero max-age", "max-age=0", defaultCertTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, certCacheTTL(tt.header))
		})
	}
}

func TestParseCertPublicKey_RejectsGarbage(t *testing.T) {
	_, err := parseCertPublicKey("not a certificate")
	assert.Error(t, err)

	_, err = parseCertPublicKey("-----BEGIN CERTIFICATE-----\naGVsbG8=\n-----END CERTIFICATE-----")
	assert.Error(t, err)
}
