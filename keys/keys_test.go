package keys

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 1)
	}
	return b
}

func TestStringConversion(t *testing.T) {
	tests := []struct {
		code Code
		len  int
	}{
		{Ed25519Public, 32},
		{Secp256k1Public, 33},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.code), func(t *testing.T) {
			bts := randomBytes(test.len)
			key := New(test.code, bts)
			require.True(t, key.IsValid())

			keyString := key.String()
			parsed, err := FromString(keyString)
			require.NoError(t, err)
			require.Equal(t, bts, parsed.Bytes())
			require.True(t, parsed.IsValid())
		})
	}
}

func TestInvalidStringConversions(t *testing.T) {
	tests := []string{"blub", "blub123", "ked2", "ked2 ", "ked2111OO00"}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			key, err := FromString(s)
			assert.Error(t, err)
			assert.Nil(t, key)
		})
	}
}

func TestPrivateKeyZeroizeOnDestroy(t *testing.T) {
	secret := randomBytes(32)
	cp := make([]byte, len(secret))
	copy(cp, secret)

	pk := NewPrivate(Ed25519Private, cp)
	require.True(t, pk.IsValid())
	assert.Equal(t, secret, pk.Bytes())

	pk.Destroy()
	assert.False(t, pk.IsValid())
	assert.Nil(t, pk.Bytes())

	// idempotent
	pk.Destroy()
}

func TestAssertCode(t *testing.T) {
	key := New(Ed25519Public, randomBytes(32))
	assert.NoError(t, key.AssertCode(Ed25519Public))
	assert.Error(t, key.AssertCode(Secp256k1Public))
}
