// Package keys generates and validates WireGuard key material.
package keys

import (
	"errors"
	"fmt"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// ErrInvalidKey is returned for text that is not a base64 Curve25519 key.
var ErrInvalidKey = errors.New("invalid wireguard key")

// Pair is a private key and the public key derived from it.
type Pair struct {
	Private wgtypes.Key
	Public  wgtypes.Key
}

// Generate returns a new random key pair.
func Generate() (Pair, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return Pair{}, fmt.Errorf("generate private key: %w", err)
	}
	return Pair{Private: priv, Public: priv.PublicKey()}, nil
}

// FromPrivate derives the pair for an existing base64 private key.
func FromPrivate(s string) (Pair, error) {
	priv, err := ParsePrivate(s)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Private: priv, Public: priv.PublicKey()}, nil
}

// ParsePrivate parses a base64 private key.
func ParsePrivate(s string) (wgtypes.Key, error) {
	k, err := wgtypes.ParseKey(s)
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("%w: private key: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// ParsePublic parses a base64 public key.
func ParsePublic(s string) (wgtypes.Key, error) {
	k, err := wgtypes.ParseKey(s)
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("%w: public key: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// PrivateText returns the base64 private key. Callers must not log it.
func (p Pair) PrivateText() string { return p.Private.String() }

// PublicText returns the base64 public key.
func (p Pair) PublicText() string { return p.Public.String() }

// String shows the public half only.
func (p Pair) String() string {
	return fmt.Sprintf("keys.Pair{Public: %s, Private: [REDACTED]}", p.Public)
}

// GoString keeps %#v from printing the private key bytes.
func (p Pair) GoString() string { return p.String() }
