package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

const (
	// certsURL publishes the X.509 certificates Google uses to sign
	// Firebase ID tokens, keyed by kid.
	certsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

	// issuerPrefix is the expected issuer for Firebase ID tokens; the
	// project id is appended.
	issuerPrefix = "https://securetoken.google.com/"

	// defaultCertTTL is used when the certs response carries no max-age.
	defaultCertTTL = 1 * time.Hour
)

var maxAgePattern = regexp.MustCompile(`max-age=(\d+)`)

// GoogleVerifier validates Firebase ID tokens: RS256 signature against
// Google's published certificates, plus audience/issuer checks for the
// configured project. Certificates are cached until their max-age expires.
type GoogleVerifier struct {
	projectID string
	client    *http.Client
	logger    *slog.Logger

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	keysExpires time.Time
}

// NewGoogleVerifier creates a verifier for the given Firebase project.
func NewGoogleVerifier(projectID string, logger *slog.Logger) (*GoogleVerifier, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firebase project id is required")
	}
	return &GoogleVerifier{
		projectID: projectID,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}, nil
}

// Verify implements Verifier.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*domain.Principal, error) {
	const op = "identity.verify"

	if idToken == "" {
		return nil, domain.Unauthorized(op, "Authentication required. Please sign in.")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, v.keyForToken(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		v.logger.Info("token verification failed", "error", err)
		return nil, domain.Unauthorized(op, "Invalid or expired session. Please sign in again.")
	}

	uid, err := claims.GetSubject()
	if err != nil || uid == "" {
		return nil, domain.Unauthorized(op, "Invalid or expired session. Please sign in again.")
	}

	email, _ := claims["email"].(string)

	return &domain.Principal{UID: uid, Email: email}, nil
}

// keyForToken returns a jwt.Keyfunc resolving the signing key by kid.
func (v *GoogleVerifier) keyForToken(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}

		keys, err := v.signingKeys(ctx)
		if err != nil {
			return nil, err
		}

		key, ok := keys[kid]
		if !ok {
			return nil, fmt.Errorf("no certificate for kid %q", kid)
		}
		return key, nil
	}
}

// signingKeys returns the cached certificate set, refreshing it when stale.
func (v *GoogleVerifier) signingKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	v.mu.RLock()
	if v.keys != nil && time.Now().Before(v.keysExpires) {
		keys := v.keys
		v.mu.RUnlock()
		return keys, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Another request may have refreshed while we waited for the lock.
	if v.keys != nil && time.Now().Before(v.keysExpires) {
		return v.keys, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build certs request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing certs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch signing certs: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read certs response: %w", err)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return nil, fmt.Errorf("decode certs response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, certPEM := range certs {
		key, err := parseCertPublicKey(certPEM)
		if err != nil {
			v.logger.Warn("skipping unparsable signing cert", "kid", kid, "error", err)
			continue
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no usable signing certs in response")
	}

	v.keys = keys
	v.keysExpires = time.Now().Add(certCacheTTL(resp.Header.Get("Cache-Control")))

	v.logger.Debug("refreshed token signing certs", "count", len(keys))
	return keys, nil
}

// parseCertPublicKey extracts the RSA public key from a PEM certificate.
func parseCertPublicKey(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, fmt.Errorf("not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate key is not RSA")
	}
	return key, nil
}

// certCacheTTL extracts max-age from a Cache-Control header.
func certCacheTTL(cacheControl string) time.Duration {
	match := maxAgePattern.FindStringSubmatch(cacheControl)
	if len(match) == 2 {
		if seconds, err := strconv.Atoi(match[1]); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultCertTTL
}
