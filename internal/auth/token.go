// Package auth resolves backend credentials into bearer tokens. Endpoints
// either accept a static API key or, for gateways configured with a signing
// key, a short-lived signed JWT minted per call.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// MaxTokenDuration caps minted token lifetimes. Short lifetimes keep a
// leaked trace harmless; gateways reject anything longer anyway.
const MaxTokenDuration = 10 * time.Minute

// defaultTokenDuration leaves headroom under the cap for clock skew.
const defaultTokenDuration = 9 * time.Minute

// Minter mints short-lived RS256 JWTs for a gateway, caching the current
// token until it nears expiry. It satisfies backend.TokenSource.
type Minter struct {
	issuer     string
	privateKey *rsa.PrivateKey
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewMinter creates a Minter from a PEM-encoded RSA private key.
func NewMinter(issuer string, privateKeyPEM []byte) (*Minter, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer cannot be empty")
	}
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return &Minter{issuer: issuer, privateKey: key, now: time.Now}, nil
}

// Token returns a valid signed token, minting a fresh one when the cached
// token is within a minute of expiry.
func (m *Minter) Token(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expires.Add(-time.Minute)) {
		return m.token, nil
	}

	token, expires, err := m.mint(defaultTokenDuration)
	if err != nil {
		return "", err
	}
	m.token = token
	m.expires = expires
	return token, nil
}

func (m *Minter) mint(duration time.Duration) (string, time.Time, error) {
	if duration <= 0 || duration > MaxTokenDuration {
		return "", time.Time{}, fmt.Errorf("duration %v outside (0, %v]", duration, MaxTokenDuration)
	}

	now := m.now()
	expires := now.Add(duration)
	claims := jwt.RegisteredClaims{
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// parsePrivateKey parses a PEM-encoded RSA private key in PKCS#1 or PKCS#8
// form.
func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("not a PKCS#1 or PKCS#8 private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PKCS#8 key is %T, want *rsa.PrivateKey", parsed)
	}
	return key, nil
}
