package signet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maddog226uk/magma/codec"
)

func generateOrg(t *testing.T) *OrgKey {
	t.Helper()
	org, err := GenerateOrgKey()
	require.NoError(t, err)
	t.Cleanup(org.Destroy)
	return org
}

func TestGenerateRequestHasValidCustody(t *testing.T) {
	key, req, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer key.Destroy()

	assert.True(t, req.ValidateCustody())
}

func TestSignProducesValidSignet(t *testing.T) {
	org := generateOrg(t)
	key, req, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer key.Destroy()

	s, err := Sign(req, org.Signing)
	require.NoError(t, err)
	assert.True(t, s.Validate(org.SigningPub))
}

func TestSignRejectsRequestWithBadCustodySignature(t *testing.T) {
	org := generateOrg(t)
	key, req, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer key.Destroy()

	other, otherReq, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer other.Destroy()
	req.CustodySig = otherReq.CustodySig

	_, err = Sign(req, org.Signing)
	assert.Error(t, err)
}

func TestUserSignetValidateRejectsWrongOrg(t *testing.T) {
	org := generateOrg(t)
	otherOrg := generateOrg(t)
	key, req, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer key.Destroy()

	s, err := Sign(req, org.Signing)
	require.NoError(t, err)
	assert.False(t, s.Validate(otherOrg.SigningPub))
}

func TestUserSignetBinaryRoundTrip(t *testing.T) {
	org := generateOrg(t)
	key, req, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer key.Destroy()

	s, err := Sign(req, org.Signing)
	require.NoError(t, err)

	b, err := s.MarshalBinary()
	require.NoError(t, err)

	parsed, err := ParseUserSignet(b)
	require.NoError(t, err)
	assert.True(t, s.Equal(parsed))
	assert.True(t, parsed.Validate(org.SigningPub))
}

func TestUserSignetRenewalCarriesPreviousIdentifier(t *testing.T) {
	org := generateOrg(t)
	firstKey, firstReq, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer firstKey.Destroy()

	first, err := Sign(firstReq, org.Signing)
	require.NoError(t, err)
	firstWithID, err := first.WithIdentifier()
	require.NoError(t, err)

	secondKey, secondReq, err := GenerateRequest(firstWithID.Identifier)
	require.NoError(t, err)
	defer secondKey.Destroy()

	second, err := Sign(secondReq, org.Signing)
	require.NoError(t, err)
	assert.True(t, second.Validate(org.SigningPub))
	assert.Equal(t, firstWithID.Identifier, second.PreviousSig)
}

func TestRequestArmorRoundTrip(t *testing.T) {
	key, req, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer key.Destroy()

	armored, err := req.Armor()
	require.NoError(t, err)
	assert.Contains(t, armored, "BEGIN USER SIGNING REQUEST")

	_, payload, err := codec.DearmorArtifact(armored)
	require.NoError(t, err)
	parsed, err := requestFromFields(payload)
	require.NoError(t, err)
	assert.True(t, parsed.ValidateCustody())
}

func TestValidationCacheDistinguishesSignetsByFingerprint(t *testing.T) {
	org := generateOrg(t)
	key1, req1, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer key1.Destroy()
	key2, req2, err := GenerateRequest(nil)
	require.NoError(t, err)
	defer key2.Destroy()

	valid, err := Sign(req1, org.Signing)
	require.NoError(t, err)
	other, err := Sign(req2, org.Signing)
	require.NoError(t, err)
	other.OrgSig = valid.OrgSig // forge: copy a countersignature that doesn't cover this key

	cache, err := NewValidationCache(8)
	require.NoError(t, err)

	assert.True(t, cache.Validate(valid, org.SigningPub))
	assert.False(t, cache.Validate(other, org.SigningPub))
	// repeated lookups against the same entries are stable
	assert.True(t, cache.Validate(valid, org.SigningPub))
	assert.False(t, cache.Validate(other, org.SigningPub))
}
