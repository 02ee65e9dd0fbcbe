package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func testKeyPEM(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return pem.EncodeToMemory(block), key
}

func TestNewMinter_EmptyIssuer(t *testing.T) {
	pemData, _ := testKeyPEM(t)
	if _, err := NewMinter("", pemData); err == nil {
		t.Error("expected error for empty issuer")
	}
}

func TestNewMinter_BadPEM(t *testing.T) {
	if _, err := NewMinter("gw", []byte("not a key")); err == nil {
		t.Error("expected error for invalid PEM")
	}
}

func TestToken_SignedAndVerifiable(t *testing.T) {
	pemData, key := testKeyPEM(t)
	m, err := NewMinter("model-gateway", pemData)
	if err != nil {
		t.Fatalf("NewMinter: %v", err)
	}

	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if claims.Issuer != "model-gateway" {
		t.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > MaxTokenDuration {
		t.Errorf("token lifetime exceeds cap: %v", claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	}
}

func TestToken_CachedUntilNearExpiry(t *testing.T) {
	pemData, _ := testKeyPEM(t)
	m, err := NewMinter("gw", pemData)
	if err != nil {
		t.Fatalf("NewMinter: %v", err)
	}

	now := time.Now()
	m.now = func() time.Time { return now }

	first, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	second, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if first != second {
		t.Error("expected cached token on immediate second call")
	}

	// Advance past the refresh window; a new token must be minted.
	now = now.Add(defaultTokenDuration)
	third, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if third == first {
		t.Error("expected fresh token after expiry window")
	}
}
