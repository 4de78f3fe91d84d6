// Package signet implements the PRIME artifact model: organizational
// and user keys, their signets, and user signing requests, along with
// the signature-graph validation spec.md §3/§4.3 describes. There is
// no single teacher analog for this package - it is new, grounded on
// the multiformat envelope idioms of keys, sign, fingerprint and
// artifactid, composed with the codec TLV/armor encoders the way
// format/eat/token.go in the teacher repository composes several
// format/* primitives into one signed, serializable token.
package signet

import (
	"bytes"

	"github.com/eluv-io/errors-go"

	"github.com/maddog226uk/magma/codec"
	"github.com/maddog226uk/magma/fingerprint"
	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/primeerr"
	"github.com/maddog226uk/magma/primitives"
	"github.com/maddog226uk/magma/sign"
)

// Org artifact field tags (spec.md §4.3, SPEC_FULL.md §C).
const (
	tagOrgSigning          byte = 1
	tagOrgSigningSecondary byte = 2
	tagOrgEncryption       byte = 3
	tagOrgSelfSig          byte = 4
	tagFull                byte = 253
	tagIdentifier          byte = 254
	tagIdentifiableSig     byte = 255
)

var orgFieldWidths = map[byte]codec.Width{
	tagOrgSigning:          codec.Width1,
	tagOrgSigningSecondary: codec.Width1,
	tagOrgEncryption:       codec.Width1,
	tagOrgSelfSig:          codec.Width1,
	tagFull:                codec.Width1,
	tagIdentifier:          codec.Width1,
	tagIdentifiableSig:     codec.Width1,
}

var orgFieldLabels = map[byte]string{
	tagOrgSigning:          "signing",
	tagOrgSigningSecondary: "signing-secondary",
	tagOrgEncryption:       "encryption",
	tagOrgSelfSig:          "self-signature",
	tagFull:                "full-signature",
	tagIdentifier:          "identifier",
	tagIdentifiableSig:     "identifiable-signature",
}

// OrgKey is the process-wide organizational key pair (spec.md §3): one
// Ed25519 signing key and one secp256k1 encryption key, plus the
// self-signature binding them together.
type OrgKey struct {
	Signing       *keys.PrivateKey
	SigningPub    keys.PublicKey
	Encryption    *keys.PrivateKey
	EncryptionPub keys.PublicKey
	SelfSig       sign.Sig
}

// GenerateOrgKey creates a fresh org key: an Ed25519 signing keypair, a
// secp256k1 encryption keypair, and a self-signature over their public
// halves (fields 1 and 3, spec.md §4.3).
func GenerateOrgKey() (*OrgKey, error) {
	e := primeerr.Template("generate org key", primeerr.Crypto, errors.K.Internal)

	signingPub, signingPriv, err := primitives.Ed25519Generate()
	if err != nil {
		return nil, e(err)
	}
	encPub, encPriv, err := primitives.Secp256k1Generate()
	if err != nil {
		return nil, e(err)
	}

	canonical, err := encodeOrgPublicFields(signingPub, encPub)
	if err != nil {
		return nil, e(err)
	}
	sigBytes, err := primitives.Ed25519Sign(signingPriv, canonical)
	if err != nil {
		return nil, e(err)
	}

	return &OrgKey{
		Signing:       signingPriv,
		SigningPub:    signingPub,
		Encryption:    encPriv,
		EncryptionPub: encPub,
		SelfSig:       sign.New(sign.ED25519, sigBytes),
	}, nil
}

// Signet derives this org key's public signet.
func (k *OrgKey) Signet() *OrgSignet {
	return &OrgSignet{
		Signing:    k.SigningPub,
		Encryption: k.EncryptionPub,
		SelfSig:    k.SelfSig,
	}
}

// Destroy zeroizes both private keys of the org key.
func (k *OrgKey) Destroy() {
	k.Signing.Destroy()
	k.Encryption.Destroy()
}

///////////////////////////////////////////////////////////////////////////////

// OrgSignet is the public, self-signed organizational artifact (spec.md
// §3, §4.3): the org's signing and encryption public keys plus a
// self-signature, and optionally the reserved 253/254/255 fields
// (SPEC_FULL.md §C).
type OrgSignet struct {
	Signing    keys.PublicKey
	Encryption keys.PublicKey
	SelfSig    sign.Sig

	Full           sign.Sig
	Identifier     fingerprint.Fingerprint
	IdentifiableSig sign.Sig
}

func encodeOrgPublicFields(signing, encryption keys.PublicKey) ([]byte, error) {
	fields := []codec.Field{
		{Tag: tagOrgSigning, Value: signing},
		{Tag: tagOrgEncryption, Value: encryption},
	}
	return codec.EncodeFields(fields, orgFieldWidths)
}

// signedFields returns this signet's TLV fields with tag < 253, in
// ascending tag order - what the fingerprint and the field-253 full
// signature are computed over. The self-signature (field 4) covers
// fields 1 and 3 only (encodeOrgPublicFields).
func (s *OrgSignet) signedFields() []codec.Field {
	return []codec.Field{
		{Tag: tagOrgSigning, Value: s.Signing},
		{Tag: tagOrgEncryption, Value: s.Encryption},
		{Tag: tagOrgSelfSig, Value: s.SelfSig},
	}
}

func (s *OrgSignet) canonical() ([]byte, error) {
	return codec.EncodeFields(s.signedFields(), orgFieldWidths)
}

// allFields returns every present field in ascending tag order,
// including the reserved envelope fields when set.
func (s *OrgSignet) allFields() []codec.Field {
	fields := s.signedFields()
	if !s.Full.IsNil() {
		fields = append(fields, codec.Field{Tag: tagFull, Value: s.Full})
	}
	if !s.Identifier.IsNil() {
		fields = append(fields, codec.Field{Tag: tagIdentifier, Value: s.Identifier})
	}
	if !s.IdentifiableSig.IsNil() {
		fields = append(fields, codec.Field{Tag: tagIdentifiableSig, Value: s.IdentifiableSig})
	}
	return fields
}

// Validate reports whether the self-signature verifies under the
// signet's own signing key (spec.md §3 invariant: "An org signet is
// valid iff the self-signature verifies under its own signing key").
func (s *OrgSignet) Validate() bool {
	canonical, err := encodeOrgPublicFields(s.Signing, s.Encryption)
	if err != nil {
		return false
	}
	return primitives.Ed25519Verify(s.Signing, canonical, s.SelfSig.Bytes())
}

// Fingerprint computes this signet's field-254 identifier: SHA-512 of
// the canonical serialization (fields with tag < 253), truncated to 32
// bytes (spec.md §6.2 signet_fingerprint).
func (s *OrgSignet) Fingerprint() (fingerprint.Fingerprint, error) {
	canonical, err := s.canonical()
	if err != nil {
		return nil, err
	}
	return fingerprint.Of(fingerprint.Signet, canonical), nil
}

// WithIdentifier returns a copy of s with field 254 set to its own
// fingerprint. Per spec.md's Open Question (§9), callers opt into this
// explicitly; signet_generate never sets it automatically.
func (s *OrgSignet) WithIdentifier() (*OrgSignet, error) {
	fp, err := s.Fingerprint()
	if err != nil {
		return nil, err
	}
	res := *s
	res.Identifier = fp
	return &res, nil
}

// WithFullSignature returns a copy of s with field 253 set to an
// Ed25519 signature by priv over the canonical fields (tags 1, 3 and
// 4).
func (s *OrgSignet) WithFullSignature(priv *keys.PrivateKey) (*OrgSignet, error) {
	canonical, err := s.canonical()
	if err != nil {
		return nil, err
	}
	sigBytes, err := primitives.Ed25519Sign(priv, canonical)
	if err != nil {
		return nil, err
	}
	res := *s
	res.Full = sign.New(sign.ED25519, sigBytes)
	return &res, nil
}

// WithIdentifiableSignature returns a copy of s with field 255 set to
// an Ed25519 signature by priv over the canonical fields (tag < 253)
// followed by the raw field-254 identifier bytes (SPEC_FULL.md §C);
// field 253 is not covered. Requires field 254 to already be set.
func (s *OrgSignet) WithIdentifiableSignature(priv *keys.PrivateKey) (*OrgSignet, error) {
	if s.Identifier.IsNil() {
		return nil, primeerr.E("identifiable signature", primeerr.State, errors.K.Invalid,
			"reason", "identifier (field 254) not set")
	}
	canonical, err := s.canonical()
	if err != nil {
		return nil, err
	}
	canonical = append(canonical, s.Identifier...)
	sigBytes, err := primitives.Ed25519Sign(priv, canonical)
	if err != nil {
		return nil, err
	}
	res := *s
	res.IdentifiableSig = sign.New(sign.ED25519, sigBytes)
	return &res, nil
}

// MarshalBinary serializes this signet as an artifact-framed TLV
// payload under the ORGANIZATIONAL SIGNET magic code (spec.md §6.1).
func (s *OrgSignet) MarshalBinary() ([]byte, error) {
	payload, err := codec.EncodeFields(s.allFields(), orgFieldWidths)
	if err != nil {
		return nil, err
	}
	return codec.EncodeArtifact(codec.OrgSignet, payload), nil
}

// Armor serializes and armors this signet (spec.md §4.2).
func (s *OrgSignet) Armor() (string, error) {
	payload, err := codec.EncodeFields(s.allFields(), orgFieldWidths)
	if err != nil {
		return "", err
	}
	return codec.ArmorArtifact(codec.OrgSignet, payload), nil
}

// Debug renders a human-readable dump of this signet's fields.
func (s *OrgSignet) Debug() string {
	return codec.Debug(s.allFields(), orgFieldLabels)
}

// ParseOrgSignet parses an artifact-framed org signet.
func ParseOrgSignet(b []byte) (*OrgSignet, error) {
	code, payload, err := codec.DecodeArtifact(b)
	if err != nil {
		return nil, err
	}
	if code != codec.OrgSignet {
		return nil, primeerr.E("parse org signet", primeerr.Format, errors.K.Invalid,
			"reason", "wrong artifact code", "code", code)
	}
	return orgSignetFromFields(payload)
}

// ParseOrgSignetArmored dearmors and parses an org signet.
func ParseOrgSignetArmored(s string) (*OrgSignet, error) {
	code, payload, err := codec.DearmorArtifact(s)
	if err != nil {
		return nil, err
	}
	if code != codec.OrgSignet {
		return nil, primeerr.E("parse org signet", primeerr.Format, errors.K.Invalid,
			"reason", "wrong artifact code", "code", code)
	}
	return orgSignetFromFields(payload)
}

func orgSignetFromFields(payload []byte) (*OrgSignet, error) {
	fields, err := codec.DecodeFields(payload, orgFieldWidths)
	if err != nil {
		return nil, err
	}
	s := &OrgSignet{}
	for _, f := range fields {
		switch f.Tag {
		case tagOrgSigning:
			s.Signing = keys.PublicKey(f.Value)
		case tagOrgEncryption:
			s.Encryption = keys.PublicKey(f.Value)
		case tagOrgSelfSig:
			s.SelfSig = sign.Sig(f.Value)
		case tagFull:
			s.Full = sign.Sig(f.Value)
		case tagIdentifier:
			s.Identifier = fingerprint.Fingerprint(f.Value)
		case tagIdentifiableSig:
			s.IdentifiableSig = sign.Sig(f.Value)
		default:
			return nil, primeerr.E("parse org signet", primeerr.Format, errors.K.Invalid,
				"reason", "unexpected field tag", "tag", f.Tag)
		}
	}
	if s.Signing == nil || s.Encryption == nil || s.SelfSig == nil {
		return nil, primeerr.E("parse org signet", primeerr.Format, errors.K.Invalid,
			"reason", "missing required field")
	}
	return s, nil
}

// Equal compares two org signets byte-for-byte over every present field.
func (s *OrgSignet) Equal(other *OrgSignet) bool {
	if s == nil || other == nil {
		return s == other
	}
	a, err1 := s.MarshalBinary()
	b, err2 := other.MarshalBinary()
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(a, b)
}
