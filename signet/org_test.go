package signet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOrgKeyProducesValidSignet(t *testing.T) {
	key, err := GenerateOrgKey()
	require.NoError(t, err)
	defer key.Destroy()

	s := key.Signet()
	assert.True(t, s.Validate())
}

func TestOrgSignetValidateRejectsTamperedKey(t *testing.T) {
	key, err := GenerateOrgKey()
	require.NoError(t, err)
	defer key.Destroy()

	s := key.Signet()
	other, err := GenerateOrgKey()
	require.NoError(t, err)
	defer other.Destroy()

	s.Encryption = other.EncryptionPub
	assert.False(t, s.Validate())
}

func TestOrgSignetBinaryRoundTrip(t *testing.T) {
	key, err := GenerateOrgKey()
	require.NoError(t, err)
	defer key.Destroy()

	s := key.Signet()
	b, err := s.MarshalBinary()
	require.NoError(t, err)

	parsed, err := ParseOrgSignet(b)
	require.NoError(t, err)
	assert.True(t, s.Equal(parsed))
	assert.True(t, parsed.Validate())
}

func TestOrgSignetArmorRoundTrip(t *testing.T) {
	key, err := GenerateOrgKey()
	require.NoError(t, err)
	defer key.Destroy()

	s := key.Signet()
	armored, err := s.Armor()
	require.NoError(t, err)

	parsed, err := ParseOrgSignetArmored(armored)
	require.NoError(t, err)
	assert.True(t, s.Equal(parsed))
}

func TestOrgSignetIdentifierAndIdentifiableSignature(t *testing.T) {
	key, err := GenerateOrgKey()
	require.NoError(t, err)
	defer key.Destroy()

	s := key.Signet()

	withID, err := s.WithIdentifier()
	require.NoError(t, err)
	assert.True(t, withID.Identifier.IsValid())

	withSig, err := withID.WithIdentifiableSignature(key.Signing)
	require.NoError(t, err)
	assert.False(t, withSig.IdentifiableSig.IsNil())
	assert.True(t, withSig.Validate())
}

func TestOrgSignetIdentifiableSignatureRequiresIdentifier(t *testing.T) {
	key, err := GenerateOrgKey()
	require.NoError(t, err)
	defer key.Destroy()

	s := key.Signet()
	_, err = s.WithIdentifiableSignature(key.Signing)
	assert.Error(t, err)
}

func TestOrgSignetFullSignature(t *testing.T) {
	key, err := GenerateOrgKey()
	require.NoError(t, err)
	defer key.Destroy()

	s := key.Signet()
	withFull, err := s.WithFullSignature(key.Signing)
	require.NoError(t, err)
	assert.False(t, withFull.Full.IsNil())

	b, err := withFull.MarshalBinary()
	require.NoError(t, err)
	parsed, err := ParseOrgSignet(b)
	require.NoError(t, err)
	assert.True(t, withFull.Equal(parsed))
}

func TestParseOrgSignetRejectsWrongArtifactCode(t *testing.T) {
	key, err := GenerateOrgKey()
	require.NoError(t, err)
	defer key.Destroy()

	s := key.Signet()
	payload, err := s.MarshalBinary()
	require.NoError(t, err)
	// Corrupt the magic code bytes to another known artifact.
	payload[0], payload[1] = 0x07, 0xA0
	_, err = ParseOrgSignet(payload)
	assert.Error(t, err)
}

func TestOrgSignetDebug(t *testing.T) {
	key, err := GenerateOrgKey()
	require.NoError(t, err)
	defer key.Destroy()

	out := key.Signet().Debug()
	assert.Contains(t, out, "signing:")
	assert.Contains(t, out, "encryption:")
	assert.Contains(t, out, "self-signature:")
}
