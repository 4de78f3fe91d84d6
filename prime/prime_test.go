package prime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maddog226uk/magma/codec"
	"github.com/maddog226uk/magma/encscheme"
	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/message"
	"github.com/maddog226uk/magma/primitives"
	"github.com/maddog226uk/magma/signet"
)

func startedPrime(t *testing.T) (*Prime, *signet.OrgKey) {
	t.Helper()
	org, err := SignetGenerateOrg()
	require.NoError(t, err)
	p := New()
	require.NoError(t, p.Start(Config{Org: org}))
	t.Cleanup(p.Stop)
	return p, org
}

func TestStartRequiresValidOrgKey(t *testing.T) {
	p := New()
	err := p.Start(Config{Org: nil})
	assert.Error(t, err)
}

func TestStartTwiceFails(t *testing.T) {
	p, _ := startedPrime(t)
	err := p.Start(Config{})
	assert.Error(t, err)
}

func TestOperationsRequireStart(t *testing.T) {
	p := New()
	s := p.Alloc()
	defer s.Free()

	_, err := p.KeyGenerateUser(s)
	assert.Error(t, err)

	_, err = p.RequestGenerate(s, nil)
	assert.Error(t, err)
}

func TestRequestGenerateSignValidate(t *testing.T) {
	p, org := startedPrime(t)
	s := p.Alloc()
	defer s.Free()

	req, err := p.RequestGenerate(s, nil)
	require.NoError(t, err)

	signed, err := p.RequestSign(req)
	require.NoError(t, err)

	ok, err := p.SignetValidateUser(signed)
	require.NoError(t, err)
	assert.True(t, ok)

	fp, err := SignetFingerprintUser(signed)
	require.NoError(t, err)
	assert.True(t, fp.IsValid())

	_ = org
}

func TestSessionSetGet(t *testing.T) {
	p, _ := startedPrime(t)
	s := p.Alloc()
	defer s.Free()

	s.Set("subject", "hello")
	v, ok := s.Get("subject")
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestSessionFreeZeroizesTrackedKeys(t *testing.T) {
	p, _ := startedPrime(t)
	s := p.Alloc()

	key, err := p.KeyGenerateUser(s)
	require.NoError(t, err)
	require.True(t, key.Signing.IsValid())

	s.Free()
	assert.False(t, key.Signing.IsValid())
	assert.False(t, key.Encryption.IsValid())
}

func TestKeyEncryptDecryptRoundTrip(t *testing.T) {
	p, _ := startedPrime(t)
	s := p.Alloc()
	defer s.Free()

	key, err := p.KeyGenerateUser(s)
	require.NoError(t, err)
	secret := append([]byte{}, key.Signing.Bytes()...)

	salt := make([]byte, 16)
	nonce := make([]byte, 16)
	enc, err := KeyEncrypt(key.Signing, "correct horse battery staple", salt, nonce, 8)
	require.NoError(t, err)
	assert.Equal(t, keys.Ed25519Private, enc.Code)

	decrypted, err := KeyDecrypt(enc, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, secret, decrypted.Bytes())
}

func TestEncryptedPrivateKeyBinaryRoundTrip(t *testing.T) {
	p, _ := startedPrime(t)
	s := p.Alloc()
	defer s.Free()

	key, err := p.KeyGenerateUser(s)
	require.NoError(t, err)

	enc, err := KeyEncrypt(key.Signing, "hunter2", make([]byte, 16), make([]byte, 16), 8)
	require.NoError(t, err)

	raw, err := enc.MarshalBinary(codec.UserKeyEncrypted)
	require.NoError(t, err)

	artifact, parsed, err := ParseEncryptedPrivateKey(raw)
	require.NoError(t, err)
	assert.Equal(t, codec.UserKeyEncrypted, artifact)

	decrypted, err := KeyDecrypt(parsed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, key.Signing.Bytes(), decrypted.Bytes())
}

func TestKeyDecryptRejectsWrongPassword(t *testing.T) {
	p, _ := startedPrime(t)
	s := p.Alloc()
	defer s.Free()

	key, err := p.KeyGenerateUser(s)
	require.NoError(t, err)

	salt := make([]byte, 16)
	nonce := make([]byte, 16)
	enc, err := KeyEncrypt(key.Signing, "right password", salt, nonce, 8)
	require.NoError(t, err)

	_, err = KeyDecrypt(enc, "wrong password")
	assert.Error(t, err)
}

func TestMessageEncryptDecryptViaFacade(t *testing.T) {
	p, _ := startedPrime(t)
	s := p.Alloc()
	defer s.Free()

	key, err := p.KeyGenerateUser(s)
	require.NoError(t, err)
	authorPub, authorPriv, err := primitives.Ed25519Generate()
	require.NoError(t, err)

	m, err := MessageEncrypt(
		[]byte("\n\nhi"),
		message.Participants{
			Author:      message.Party{Signing: authorPriv},
			Destination: message.Party{Encryption: key.EncryptionPub},
		},
	)
	require.NoError(t, err)

	got, err := MessageDecrypt(m, encscheme.Destination, key.Encryption, message.Verifiers{Author: authorPub})
	require.NoError(t, err)
	assert.Equal(t, []byte("\n\nhi"), got)
}
