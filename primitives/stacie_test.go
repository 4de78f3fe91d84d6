package primitives

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeros(n int) []byte { return make([]byte, n) }

// TestStacieDeterminism covers spec.md §8's determinism property: identical
// inputs must yield identical outputs across repeated calls.
func TestStacieDeterminism(t *testing.T) {
	salt := zeros(16)
	nonce := zeros(16)

	a, err := Stacie("password", salt, nonce, 8)
	require.NoError(t, err)
	b, err := Stacie("password", salt, nonce, 8)
	require.NoError(t, err)

	assert.Equal(t, a.Seed, b.Seed)
	assert.Equal(t, a.Shard, b.Shard)
	assert.Equal(t, a.HashedToken, b.HashedToken)
	assert.Equal(t, a.VerificationToken, b.VerificationToken)
}

// TestStacieBitFlip covers spec.md §8's bit-flip property: a single bit
// flip in any input must produce a seed differing in at least 200 bits.
func TestStacieBitFlip(t *testing.T) {
	salt := zeros(16)
	nonce := zeros(16)

	base, err := Stacie("password", salt, nonce, 8)
	require.NoError(t, err)

	flipped := make([]byte, 16)
	copy(flipped, salt)
	flipped[0] ^= 0x01

	other, err := Stacie("password", flipped, nonce, 8)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, hammingDistance(base.Seed, other.Seed), 200)
}

func TestStacieRoundBounds(t *testing.T) {
	salt := zeros(16)
	nonce := zeros(16)

	_, err := Stacie("password", salt, nonce, StacieMinRounds-1)
	assert.Error(t, err)

	_, err = Stacie("password", salt, nonce, StacieMaxRounds+1)
	assert.Error(t, err)

	_, err = Stacie("password", salt, nonce, StacieMinRounds)
	assert.NoError(t, err)
}

func TestStacieInputValidation(t *testing.T) {
	_, err := Stacie("password", zeros(15), zeros(16), 8)
	assert.Error(t, err)

	_, err = Stacie("password", zeros(16), zeros(15), 8)
	assert.Error(t, err)
}

func hammingDistance(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dist := 0
	for i := 0; i < n; i++ {
		x := a[i] ^ b[i]
		for x != 0 {
			dist++
			x &= x - 1
		}
	}
	return dist
}
