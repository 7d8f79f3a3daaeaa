package cryptoprim

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrInvalidSignature is returned by Verify when a signature does not
// validate against the given message and public key.
var ErrInvalidSignature = errors.New("cryptoprim: invalid signature")

// GenerateSigningKey returns a fresh Ed25519 key pair.
func GenerateSigningKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptoprim: generate ed25519 key: %w", err)
	}
	return pub, priv, nil
}

// Sign produces an Ed25519 signature over message.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Verify checks an Ed25519 signature. A one-bit mutation of message,
// signature, or pub is guaranteed to invalidate the signature.
func Verify(pub ed25519.PublicKey, message, signature []byte) error {
	if !ed25519.Verify(pub, message, signature) {
		return ErrInvalidSignature
	}
	return nil
}
