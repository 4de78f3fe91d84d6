package sign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	raw := make([]byte, 64)
	for i := range raw {
		raw[i] = byte(i)
	}
	sig := New(ED25519, raw)
	require.True(t, sig.IsValid())

	parsed, err := FromString(sig.String())
	require.NoError(t, err)
	assert.Equal(t, raw, parsed.Bytes())
	assert.True(t, parsed.IsValid())
}

func TestInvalidLengthIsNotValid(t *testing.T) {
	sig := New(ED25519, make([]byte, 10))
	assert.False(t, sig.IsValid())
}

func TestAssertCode(t *testing.T) {
	sig := New(ED25519, make([]byte, 64))
	assert.NoError(t, sig.AssertCode(ED25519))
	assert.Error(t, sig.AssertCode(UNKNOWN))
}

func TestFromStringUnknownPrefix(t *testing.T) {
	_, err := FromString("nonexistent-prefix-string")
	assert.Error(t, err)
}
