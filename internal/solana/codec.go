// Package solana holds the wire codec for ed25519 wallet identities:
// base58 text forms of fixed-length public keys and signatures, plus a
// verification wrapper around the stdlib primitive.
package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

const (
	// PublicKeySize is the raw length of an ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize

	// SignatureSize is the raw length of an ed25519 signature.
	SignatureSize = ed25519.SignatureSize
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key format")
	ErrInvalidSignature = errors.New("invalid signature format")
)

// DecodePublicKey decodes a base58 public key and checks its length.
func DecodePublicKey(encoded string) (ed25519.PublicKey, error) {
	if encoded == "" {
		return nil, ErrInvalidPublicKey
	}
	raw := base58.Decode(encoded)
	if len(raw) != PublicKeySize {
		return nil, fmt.Errorf("%w: decoded to %d bytes, want %d", ErrInvalidPublicKey, len(raw), PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// DecodeSignature decodes a base58 signature and checks its length.
func DecodeSignature(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, ErrInvalidSignature
	}
	raw := base58.Decode(encoded)
	if len(raw) != SignatureSize {
		return nil, fmt.Errorf("%w: decoded to %d bytes, want %d", ErrInvalidSignature, len(raw), SignatureSize)
	}
	return raw, nil
}

// EncodePublicKey returns the base58 text form of a raw public key.
func EncodePublicKey(key ed25519.PublicKey) string {
	return base58.Encode(key)
}

// EncodeSignature returns the base58 text form of a raw signature.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}

// Verify reports whether sig is a valid signature of msg under key.
// Both lengths must already have been validated by the decoders; a
// malformed key would make the primitive panic otherwise.
func Verify(key ed25519.PublicKey, msg, sig []byte) bool {
	if len(key) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(key, msg, sig)
}
