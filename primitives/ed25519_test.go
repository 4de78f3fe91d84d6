package primitives

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maddog226uk/magma/keys"
)

// TestEd25519FixedVector reproduces spec.md §8 scenario 1 (RFC 8032 test
// vector 1): an empty message signed with a known private scalar must
// yield the exact documented signature.
func TestEd25519FixedVector(t *testing.T) {
	seed, err := hex.DecodeString("9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60" +
		"d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a")
	require.NoError(t, err)
	require.Len(t, seed, 64)

	priv := keys.NewPrivate(keys.Ed25519Private, append([]byte{}, seed[:32]...))
	pub := keys.New(keys.Ed25519Public, seed[32:])

	sig, err := Ed25519Sign(priv, []byte{})
	require.NoError(t, err)

	expected, err := hex.DecodeString("e5564300c360ac729086e2cc806e828a84877f1eb8e5d974d873e065224901555" +
		"fb8821590a33bacc61e39701cf9b46bd25bf5f0595bbe24655141438e7a100b")
	require.NoError(t, err)

	assert.True(t, bytes.Equal(expected, sig), "signature mismatch:\n got %x\nwant %x", sig, expected)
	assert.True(t, Ed25519Verify(pub, []byte{}, sig))
}

func TestEd25519GenerateSignVerify(t *testing.T) {
	pub, priv, err := Ed25519Generate()
	require.NoError(t, err)

	msg := []byte("prime test message")
	sig, err := Ed25519Sign(priv, msg)
	require.NoError(t, err)
	require.Len(t, sig, Ed25519SignatureLen)

	assert.True(t, Ed25519Verify(pub, msg, sig))
	assert.False(t, Ed25519Verify(pub, []byte("tampered"), sig))

	// flip a single bit of the signature - must invalidate it
	tampered := append([]byte{}, sig...)
	tampered[0] ^= 0x01
	assert.False(t, Ed25519Verify(pub, msg, tampered))
}

func TestEd25519SignRejectsWrongKeyType(t *testing.T) {
	bad := keys.NewPrivate(keys.Secp256k1Private, make([]byte, 32))
	_, err := Ed25519Sign(bad, []byte("x"))
	assert.Error(t, err)
}
