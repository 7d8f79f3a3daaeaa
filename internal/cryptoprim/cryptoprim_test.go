package cryptoprim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC32MatchesStandardVector(t *testing.T) {
	assert.Equal(t, uint32(0xCBF43926), CRC32([]byte("123456789")))
}

func TestIncrementalCRC32MatchesOneShotAtEverySplit(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, 0123456789")
	want := CRC32(data)
	for split := 0; split <= len(data); split++ {
		inc := NewIncrementalCRC32()
		inc.Update(data[:split])
		inc.Update(data[split:])
		assert.Equalf(t, want, inc.Finalize(), "split=%d", split)
	}
}

func TestChainHashDeterministicAndNeverZeroForNonEmptyInput(t *testing.T) {
	a := ChainHash(nil, 1, []byte("e1"))
	b := ChainHash(nil, 1, []byte("e1"))
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())

	c := ChainHash(&a, 1, []byte("e2"))
	assert.NotEqual(t, a, c)
	assert.False(t, c.IsZero())
}

func TestChainHashGenesisSeedIsAllZero(t *testing.T) {
	a := ChainHash(nil, 1, []byte("e1"))
	var zero Hash32
	b := ChainHash(&zero, 1, []byte("e1"))
	assert.Equal(t, a, b)
}

func TestHashBytesDeterministicAndDomainSeparatedFromChainHash(t *testing.T) {
	data := []byte("streams|tables|indexes")
	a := HashBytes(data)
	b := HashBytes(data)
	assert.Equal(t, a, b)

	chain := ChainHash(nil, 1, data)
	assert.NotEqual(t, a, chain, "state hashing and chain hashing must never collide on the same bytes")
}

func TestAEADRoundTripAndTamperDetection(t *testing.T) {
	key := make([]byte, AEADKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	nonce := DeterministicNonce(7)
	aad := []byte("stream=1")

	sealed, err := Seal(key, nonce, []byte("hello"), aad)
	require.NoError(t, err)

	plain, err := Open(key, sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = Open(key, tampered, aad)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = Open(key, sealed, []byte("stream=2"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEd25519RoundTripAndMutationInvalidates(t *testing.T) {
	pub, priv, err := GenerateSigningKey()
	require.NoError(t, err)

	msg := []byte("audit action payload")
	sig := Sign(priv, msg)
	require.NoError(t, Verify(pub, msg, sig))

	mutated := append([]byte(nil), msg...)
	mutated[0] ^= 0x01
	assert.ErrorIs(t, Verify(pub, mutated, sig), ErrInvalidSignature)
}

func TestKeyWrapRoundTripAndWrongKEKFails(t *testing.T) {
	kek := make([]byte, AEADKeySize)
	wrongKEK := make([]byte, AEADKeySize)
	wrongKEK[0] = 0xFF
	dek := make([]byte, AEADKeySize)
	for i := range dek {
		dek[i] = byte(255 - i)
	}

	wrapped, err := WrapKey(kek, dek)
	require.NoError(t, err)

	recovered, err := UnwrapKey(kek, wrapped)
	require.NoError(t, err)
	assert.Equal(t, dek, recovered)

	_, err = UnwrapKey(wrongKEK, wrapped)
	assert.ErrorIs(t, err, ErrUnwrapFailed)
}
