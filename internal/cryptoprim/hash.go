// Package cryptoprim provides the pure, deterministic cryptographic
// primitives the rest of the pipeline is built on: the hash chain that
// binds log records together, incremental CRC32 framing, AEAD
// encryption, Ed25519 signatures, and key wrapping. Nothing in this
// package performs I/O or reads the clock. Randomness is drawn from
// crypto/rand only by RandomNonce, GenerateSigningKey, and WrapKey
// (through RandomNonce); every other function is deterministic.
package cryptoprim

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// Hash32 is a 32-byte deterministic fingerprint: a chain hash or a
// state hash.
type Hash32 [32]byte

// IsZero reports whether h is the all-zero sentinel used as the chain
// seed for a stream's genesis record.
func (h Hash32) IsZero() bool {
	var zero Hash32
	return subtle.ConstantTimeCompare(h[:], zero[:]) == 1
}

func (h Hash32) String() string {
	return fmt.Sprintf("%x", h[:])
}

// chainKey is the fixed, non-secret key used to put chain_hash into
// HMAC-SHA256's keyed mode. It is not a secret: the hash chain's
// tamper-evidence comes from chaining prev_hash through every record,
// not from key secrecy. Using a fixed application-specific key keeps
// chain_hash domain-separated from any other SHA-256 use in the
// process.
var chainKey = []byte("kimberlite/record-chain/v1")

// stateKey domain-separates state hashing from record chaining: the two
// must never collide even when fed the same bytes.
var stateKey = []byte("kimberlite/state-hash/v1")

// HashBytes computes a deterministic, collision-resistant fingerprint of
// data, independent of the record chain. Used by the kernel to fold an
// entire State into one Hash32 for replica agreement.
func HashBytes(data []byte) Hash32 {
	h := hmac.New(sha256.New, stateKey)
	h.Write(data)
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}

// ChainHash computes the next link of a record's hash chain:
// H(prev_hash ‖ kind ‖ uncompressed_payload). prev is nil for a
// stream's genesis record, in which case the chain seed is the
// all-zero hash. ChainHash never returns the all-zero hash for
// non-empty data; callers may assert this as a coding-error guard.
func ChainHash(prev *Hash32, kind byte, data []byte) Hash32 {
	h := hmac.New(sha256.New, chainKey)
	if prev != nil {
		h.Write(prev[:])
	} else {
		var zero Hash32
		h.Write(zero[:])
	}
	h.Write([]byte{kind})
	h.Write(data)

	var out Hash32
	copy(out[:], h.Sum(nil))
	if out.IsZero() && (len(data) > 0 || prev != nil) {
		panic("cryptoprim: chain hash collapsed to all-zero for non-empty input")
	}
	return out
}
