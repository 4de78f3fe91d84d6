package fingerprint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestSignet(t *testing.T) {
	b := make([]byte, 1024)
	n, err := rand.Read(b)
	require.NoError(t, err)
	require.Equal(t, 1024, n)

	d := NewDigest(Signet)
	n, err = d.Write(b)
	require.NoError(t, err)
	require.Equal(t, 1024, n)

	fp := d.AsFingerprint()
	require.True(t, fp.IsValid())
	assert.NoError(t, fp.AssertCode(Signet))
	assert.Len(t, fp.Bytes(), Size)
}

func TestOfIsDeterministicAndSensitive(t *testing.T) {
	a := Of(Signet, []byte("canonical bytes"))
	b := Of(Signet, []byte("canonical bytes"))
	assert.True(t, a.Equal(b))

	c := Of(Signet, []byte("canonical Bytes"))
	assert.False(t, a.Equal(c))
}

func TestStringRoundTrip(t *testing.T) {
	fp := Of(Request, []byte("a request's canonical bytes"))
	parsed, err := FromString(fp.String())
	require.NoError(t, err)
	assert.True(t, fp.Equal(parsed))
	assert.NoError(t, parsed.AssertCode(Request))
}

func TestNewRejectsWrongLength(t *testing.T) {
	_, err := New(Signet, make([]byte, 16))
	assert.Error(t, err)
}

func TestFromStringUnknownPrefix(t *testing.T) {
	_, err := FromString("nonexistent-prefix-string")
	assert.Error(t, err)
}
