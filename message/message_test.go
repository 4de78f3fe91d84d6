package message

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maddog226uk/magma/chunk"
	"github.com/maddog226uk/magma/encscheme"
	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/primitives"
)

type testParties struct {
	authorSigningPub keys.PublicKey
	authorSigning    *keys.PrivateKey
	destPub          keys.PublicKey
	destPriv         *keys.PrivateKey
}

func newTestParties(t *testing.T) testParties {
	t.Helper()
	authorPub, authorPriv, err := primitives.Ed25519Generate()
	require.NoError(t, err)
	destPub, destPriv, err := primitives.Secp256k1Generate()
	require.NoError(t, err)
	return testParties{authorSigningPub: authorPub, authorSigning: authorPriv, destPub: destPub, destPriv: destPriv}
}

func (tp testParties) participants() Participants {
	return Participants{
		Author:      Party{Signing: tp.authorSigning},
		Destination: Party{Encryption: tp.destPub},
	}
}

func (tp testParties) verifiers() Verifiers {
	return Verifiers{Author: tp.authorSigningPub}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tp := newTestParties(t)

	plaintext := []byte("subject: hello\n\nbody of the message")
	m, err := Encrypt(plaintext, tp.participants())
	require.NoError(t, err)

	// tracing, ephemeral, common headers, body, signature tree, user sig
	assert.Len(t, m.Chunks, 6)

	got, err := Decrypt(m, encscheme.Destination, tp.destPriv, tp.verifiers())
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptBuildsEphemeralOriginDestinationAndSignatureChunks(t *testing.T) {
	authorPub, authorPriv, err := primitives.Ed25519Generate()
	require.NoError(t, err)
	originOrgPub, originOrgPriv, err := primitives.Ed25519Generate()
	require.NoError(t, err)
	destOrgPub, destOrgPriv, err := primitives.Ed25519Generate()
	require.NoError(t, err)
	originPub, _, err := primitives.Secp256k1Generate()
	require.NoError(t, err)
	destPub, destPriv, err := primitives.Secp256k1Generate()
	require.NoError(t, err)

	parties := Participants{
		Author:      Party{Signing: authorPriv},
		Origin:      Party{Encryption: originPub, Signing: originOrgPriv},
		Destination: Party{Encryption: destPub, Signing: destOrgPriv},
	}

	m, err := Encrypt([]byte("hello\n\nworld"), parties)
	require.NoError(t, err)

	types := map[byte]bool{}
	for _, c := range m.Chunks {
		types[c.Type] = true
	}
	for _, want := range []byte{chunk.TypeEphemeral, chunk.TypeOrigin, chunk.TypeDestination, chunk.TypeSignatureTree, chunk.TypeUserSignature, chunk.TypeOriginOrgSig, chunk.TypeDestOrgSig} {
		assert.True(t, types[want], "expected chunk type %d to be present", want)
	}

	got, err := Decrypt(m, encscheme.Destination, destPriv, Verifiers{Author: authorPub, OriginOrg: originOrgPub, DestinationOrg: destOrgPub})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n\nworld"), got)
}

func TestDecryptRejectsWrongRecipient(t *testing.T) {
	tp := newTestParties(t)
	_, wrongPriv, err := primitives.Secp256k1Generate()
	require.NoError(t, err)

	m, err := Encrypt([]byte("\n\nsecret"), tp.participants())
	require.NoError(t, err)

	_, err = Decrypt(m, encscheme.Destination, wrongPriv, tp.verifiers())
	assert.Error(t, err)
}

func TestDecryptRejectsWrongAuthorVerifier(t *testing.T) {
	tp := newTestParties(t)
	wrongAuthorPub, _, err := primitives.Ed25519Generate()
	require.NoError(t, err)

	m, err := Encrypt([]byte("\n\nsecret"), tp.participants())
	require.NoError(t, err)

	_, err = Decrypt(m, encscheme.Destination, tp.destPriv, Verifiers{Author: wrongAuthorPub})
	assert.Error(t, err)
}

func TestEncryptSpansOversizedBody(t *testing.T) {
	tp := newTestParties(t)

	large := bytes.Repeat([]byte{0x42}, maxChunkPlaintext+100)
	plaintext := append([]byte("\n\n"), large...)
	m, err := Encrypt(plaintext, tp.participants())
	require.NoError(t, err)

	var bodyChunks int
	for _, c := range m.Chunks {
		if c.Type == chunk.TypeBody {
			bodyChunks++
		}
	}
	assert.Equal(t, 2, bodyChunks)

	got, err := Decrypt(m, encscheme.Destination, tp.destPriv, tp.verifiers())
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptAssignsFreshTraceIDPerMessage(t *testing.T) {
	tp := newTestParties(t)

	m1, err := Encrypt([]byte("\n\na"), tp.participants())
	require.NoError(t, err)
	m2, err := Encrypt([]byte("\n\na"), tp.participants())
	require.NoError(t, err)

	assert.False(t, m1.TraceID.Equal(m2.TraceID))
}

func TestMessageEncodeParseRoundTrip(t *testing.T) {
	tp := newTestParties(t)

	plaintext := []byte("subject: hi\n\nbody text")
	m, err := Encrypt(plaintext, tp.participants())
	require.NoError(t, err)

	encoded, err := m.Encode()
	require.NoError(t, err)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	assert.True(t, m.TraceID.Equal(parsed.TraceID))
	assert.Len(t, parsed.Chunks, len(m.Chunks))

	got, err := Decrypt(parsed, encscheme.Destination, tp.destPriv, tp.verifiers())
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}
