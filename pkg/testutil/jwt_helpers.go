// Package testutil holds helpers shared by package tests.
package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"safenet/pkg/auth"
)

// JWTTestHelper mints tokens for handler and middleware tests
type JWTTestHelper struct {
	Secret []byte
}

// NewJWTTestHelper creates a new JWT test helper with a default test secret
func NewJWTTestHelper() *JWTTestHelper {
	return &JWTTestHelper{
		Secret: []byte("test-secret-for-unit-tests"),
	}
}

// NewJWTTestHelperWithSecret creates a new JWT test helper with a custom secret
func NewJWTTestHelperWithSecret(secret []byte) *JWTTestHelper {
	return &JWTTestHelper{
		Secret: secret,
	}
}

// GenerateValidJWT returns a token valid for an hour
func (h *JWTTestHelper) GenerateValidJWT(subject, role string) (string, error) {
	token, _, err := auth.GenerateJWT(subject, role, h.Secret, time.Hour)
	return token, err
}

// GenerateExpiredJWT returns a token that expired an hour ago
func (h *JWTTestHelper) GenerateExpiredJWT(subject, role string) (string, error) {
	return h.GenerateJWTWithCustomExpiry(subject, role, time.Now().Add(-1*time.Hour))
}

// GenerateJWTWithCustomExpiry signs claims that expire at expiresAt
func (h *JWTTestHelper) GenerateJWTWithCustomExpiry(subject, role string, expiresAt time.Time) (string, error) {
	claims := &auth.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    auth.Issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-1 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.Secret)
}

// GenerateJWTWithWrongSecret signs a valid-looking token with another key
func (h *JWTTestHelper) GenerateJWTWithWrongSecret(subject, role string) (string, error) {
	other := NewJWTTestHelperWithSecret([]byte("wrong-secret"))
	return other.GenerateValidJWT(subject, role)
}
