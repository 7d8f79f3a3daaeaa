package cryptoprim

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptionFailed is returned when ciphertext, nonce, or associated
// data have been tampered with.
var ErrDecryptionFailed = errors.New("cryptoprim: AEAD decryption failed")

// AEADKeySize is the required key size in bytes.
const AEADKeySize = chacha20poly1305.KeySize

// NonceSize is the required nonce size in bytes.
const NonceSize = chacha20poly1305.NonceSize

// Seal encrypts plaintext under key, authenticating associatedData, and
// returns nonce||ciphertext. key must be AEADKeySize bytes and nonce
// must be NonceSize bytes.
func Seal(key, nonce, plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: new AEAD: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("cryptoprim: nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, associatedData)
	return out, nil
}

// Open decrypts a nonce||ciphertext value produced by Seal. Any
// modification to the ciphertext, nonce, or associated data causes
// Open to return ErrDecryptionFailed.
func Open(key, sealed, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: new AEAD: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// DeterministicNonce derives a reproducible nonce from a stream
// position, for simulation testing where appends must be replayable
// bit-for-bit. Production callers should use RandomNonce instead.
func DeterministicNonce(streamPosition uint64) []byte {
	nonce := make([]byte, NonceSize)
	binary.LittleEndian.PutUint64(nonce, streamPosition)
	return nonce
}

// RandomNonce draws a fresh random nonce from crypto/rand, for
// production use.
func RandomNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptoprim: read random nonce: %w", err)
	}
	return nonce, nil
}
