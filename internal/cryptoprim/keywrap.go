package cryptoprim

import (
	"errors"
	"fmt"
)

// ErrUnwrapFailed is returned when unwrapping fails, typically because
// the wrong key-encryption key was supplied.
var ErrUnwrapFailed = errors.New("cryptoprim: key unwrap failed")

// keyWrapAAD binds wrapped keys to their purpose so a wrapped value
// cannot be replayed as, say, a signing key where an encryption key
// was expected.
var keyWrapAAD = []byte("kimberlite/key-wrap/v1")

// WrapKey wraps a 32-byte data-encryption key under a 32-byte
// key-encryption key (KEK), using the same AEAD primitive as record
// encryption. The nonce is random: wrapped keys are not replayed for
// comparison, so determinism is not required here.
func WrapKey(kek, dek []byte) ([]byte, error) {
	if len(dek) != AEADKeySize {
		return nil, fmt.Errorf("cryptoprim: data key must be %d bytes, got %d", AEADKeySize, len(dek))
	}
	nonce, err := RandomNonce()
	if err != nil {
		return nil, err
	}
	return Seal(kek, nonce, dek, keyWrapAAD)
}

// UnwrapKey recovers the data-encryption key wrapped by WrapKey.
// Unwrapping with the wrong KEK returns ErrUnwrapFailed.
func UnwrapKey(kek, wrapped []byte) ([]byte, error) {
	dek, err := Open(kek, wrapped, keyWrapAAD)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	return dek, nil
}
