package primitives

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecp256k1ECDHAgreement(t *testing.T) {
	aPub, aPriv, err := Secp256k1Generate()
	require.NoError(t, err)
	bPub, bPriv, err := Secp256k1Generate()
	require.NoError(t, err)

	sharedA, err := Secp256k1ComputeShared(aPriv, bPub)
	require.NoError(t, err)
	sharedB, err := Secp256k1ComputeShared(bPriv, aPub)
	require.NoError(t, err)

	assert.Equal(t, sharedA, sharedB)
	assert.Len(t, sharedA, Secp256k1SharedLen)
}

func TestSecp256k1RejectsInvalidKeys(t *testing.T) {
	_, priv, err := Secp256k1Generate()
	require.NoError(t, err)

	_, err = Secp256k1ComputeShared(priv, nil)
	assert.Error(t, err)
}
