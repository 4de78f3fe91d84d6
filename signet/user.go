package signet

import (
	"bytes"

	"github.com/eluv-io/errors-go"

	lru "github.com/hashicorp/golang-lru"

	"github.com/maddog226uk/magma/codec"
	"github.com/maddog226uk/magma/fingerprint"
	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/primeerr"
	"github.com/maddog226uk/magma/primitives"
	"github.com/maddog226uk/magma/sign"
)

// User artifact field tags (spec.md §4.3, SPEC_FULL.md §C): fields 1
// and 2 are the new key's own public halves, field 4 is the custody
// signature, field 5 is the user's own self-signature over 1..4, and
// field 6 is the org's countersignature over 1..5. spec.md §6.1 places
// the previous-signet identifier "at a tag specified in §6.1" without
// naming the number; we pick 7, the next free slot below the reserved
// range, and record the choice in DESIGN.md's Open Question log.
const (
	tagUserSigning       byte = 1
	tagUserEncryption    byte = 2
	tagUserCustodySig    byte = 4
	tagUserSelfSig       byte = 5
	tagUserOrgSig        byte = 6
	tagUserPreviousSigNo byte = 7
)

var userFieldWidths = map[byte]codec.Width{
	tagUserSigning:       codec.Width1,
	tagUserEncryption:    codec.Width1,
	tagUserCustodySig:    codec.Width1,
	tagUserSelfSig:       codec.Width1,
	tagUserOrgSig:        codec.Width1,
	tagUserPreviousSigNo: codec.Width1,
	tagFull:              codec.Width1,
	tagIdentifier:        codec.Width1,
	tagIdentifiableSig:   codec.Width1,
}

var userFieldLabels = map[byte]string{
	tagUserSigning:       "signing",
	tagUserEncryption:    "encryption",
	tagUserCustodySig:    "custody-signature",
	tagUserSelfSig:       "self-signature",
	tagUserOrgSig:        "org-signature",
	tagUserPreviousSigNo: "previous-identifier",
	tagFull:              "full-signature",
	tagIdentifier:        "identifier",
	tagIdentifiableSig:   "identifiable-signature",
}

// UserKey is a user's Ed25519 signing keypair and secp256k1 encryption
// keypair (spec.md §3). Unlike the org key, a user key has no
// self-signature of its own - its authenticity comes from the
// signing request's chain of custody and countersignature.
type UserKey struct {
	Signing       *keys.PrivateKey
	SigningPub    keys.PublicKey
	Encryption    *keys.PrivateKey
	EncryptionPub keys.PublicKey
}

// GenerateUserKey creates a fresh user key.
func GenerateUserKey() (*UserKey, error) {
	e := primeerr.Template("generate user key", primeerr.Crypto, errors.K.Internal)
	signingPub, signingPriv, err := primitives.Ed25519Generate()
	if err != nil {
		return nil, e(err)
	}
	encPub, encPriv, err := primitives.Secp256k1Generate()
	if err != nil {
		return nil, e(err)
	}
	return &UserKey{
		Signing:       signingPriv,
		SigningPub:    signingPub,
		Encryption:    encPriv,
		EncryptionPub: encPub,
	}, nil
}

// Destroy zeroizes both private keys of the user key.
func (k *UserKey) Destroy() {
	k.Signing.Destroy()
	k.Encryption.Destroy()
}

func encodeUserPublicFields(signing, encryption keys.PublicKey) ([]byte, error) {
	fields := []codec.Field{
		{Tag: tagUserSigning, Value: signing},
		{Tag: tagUserEncryption, Value: encryption},
	}
	return codec.EncodeFields(fields, userFieldWidths)
}

///////////////////////////////////////////////////////////////////////////////

// Request is a user signing request: the public halves of a fresh user
// key, custody-signed by that same key, awaiting an org countersignature
// (spec.md §3, §4.3). GenerateRequest and Sign together implement the
// request_generate/request_sign split of spec.md §6.2.
type Request struct {
	Signing     keys.PublicKey
	Encryption  keys.PublicKey
	CustodySig  sign.Sig
	SelfSig     sign.Sig
	PreviousSig fingerprint.Fingerprint
}

// GenerateRequest creates a fresh user key and a request for it: a
// custody signature over the key's own public halves, then a
// self-signature over fields 1..4 binding that custody signature to
// the same key (spec.md §4.3 field 5). previous is nil for a brand new
// user, or the fingerprint of the signet being renewed.
func GenerateRequest(previous fingerprint.Fingerprint) (*UserKey, *Request, error) {
	e := primeerr.Template("generate request", primeerr.Crypto, errors.K.Internal)
	key, err := GenerateUserKey()
	if err != nil {
		return nil, nil, e(err)
	}
	custodyCanonical, err := encodeUserPublicFields(key.SigningPub, key.EncryptionPub)
	if err != nil {
		return nil, nil, e(err)
	}
	custodySigBytes, err := primitives.Ed25519Sign(key.Signing, custodyCanonical)
	if err != nil {
		return nil, nil, e(err)
	}
	req := &Request{
		Signing:     key.SigningPub,
		Encryption:  key.EncryptionPub,
		CustodySig:  sign.New(sign.ED25519, custodySigBytes),
		PreviousSig: previous,
	}
	selfCanonical, err := req.selfCanonical()
	if err != nil {
		return nil, nil, e(err)
	}
	selfSigBytes, err := primitives.Ed25519Sign(key.Signing, selfCanonical)
	if err != nil {
		return nil, nil, e(err)
	}
	req.SelfSig = sign.New(sign.ED25519, selfSigBytes)
	return key, req, nil
}

// selfCanonical is the canonical serialization of fields 1, 2 and 4 -
// what the request's own self-signature (field 5) is computed over.
func (r *Request) selfCanonical() ([]byte, error) {
	fields := []codec.Field{
		{Tag: tagUserSigning, Value: r.Signing},
		{Tag: tagUserEncryption, Value: r.Encryption},
		{Tag: tagUserCustodySig, Value: r.CustodySig},
	}
	return codec.EncodeFields(fields, userFieldWidths)
}

func (r *Request) signedFields() []codec.Field {
	fields := []codec.Field{
		{Tag: tagUserSigning, Value: r.Signing},
		{Tag: tagUserEncryption, Value: r.Encryption},
	}
	if !r.PreviousSig.IsNil() {
		fields = append(fields, codec.Field{Tag: tagUserPreviousSigNo, Value: r.PreviousSig})
	}
	fields = append(fields, codec.Field{Tag: tagUserCustodySig, Value: r.CustodySig})
	fields = append(fields, codec.Field{Tag: tagUserSelfSig, Value: r.SelfSig})
	return fields
}

func (r *Request) canonical() ([]byte, error) {
	return codec.EncodeFields(r.signedFields(), userFieldWidths)
}

// ValidateCustody reports whether the request's custody signature
// verifies under its own signing key (spec.md §3: "A signing request is
// valid iff its custody signature verifies under the key it carries").
func (r *Request) ValidateCustody() bool {
	canonical, err := encodeUserPublicFields(r.Signing, r.Encryption)
	if err != nil {
		return false
	}
	return primitives.Ed25519Verify(r.Signing, canonical, r.CustodySig.Bytes())
}

// ValidateSelf reports whether the request's self-signature (field 5)
// verifies under its own signing key over fields 1..4 (spec.md §4.3).
func (r *Request) ValidateSelf() bool {
	canonical, err := r.selfCanonical()
	if err != nil {
		return false
	}
	return primitives.Ed25519Verify(r.Signing, canonical, r.SelfSig.Bytes())
}

// Fingerprint computes this request's field-254 identifier.
func (r *Request) Fingerprint() (fingerprint.Fingerprint, error) {
	canonical, err := r.canonical()
	if err != nil {
		return nil, err
	}
	return fingerprint.Of(fingerprint.Request, canonical), nil
}

// MarshalBinary serializes this request as an artifact-framed TLV
// payload under the USER SIGNING REQUEST magic code.
func (r *Request) MarshalBinary() ([]byte, error) {
	payload, err := r.canonical()
	if err != nil {
		return nil, err
	}
	return codec.EncodeArtifact(codec.UserSigningRequest, payload), nil
}

// Armor serializes and armors this request.
func (r *Request) Armor() (string, error) {
	payload, err := r.canonical()
	if err != nil {
		return "", err
	}
	return codec.ArmorArtifact(codec.UserSigningRequest, payload), nil
}

// ParseRequest parses an artifact-framed user signing request.
func ParseRequest(b []byte) (*Request, error) {
	code, payload, err := codec.DecodeArtifact(b)
	if err != nil {
		return nil, err
	}
	if code != codec.UserSigningRequest {
		return nil, primeerr.E("parse request", primeerr.Format, errors.K.Invalid,
			"reason", "wrong artifact code", "code", code)
	}
	return requestFromFields(payload)
}

func requestFromFields(payload []byte) (*Request, error) {
	fields, err := codec.DecodeFields(payload, userFieldWidths)
	if err != nil {
		return nil, err
	}
	r := &Request{}
	for _, f := range fields {
		switch f.Tag {
		case tagUserSigning:
			r.Signing = keys.PublicKey(f.Value)
		case tagUserEncryption:
			r.Encryption = keys.PublicKey(f.Value)
		case tagUserCustodySig:
			r.CustodySig = sign.Sig(f.Value)
		case tagUserSelfSig:
			r.SelfSig = sign.Sig(f.Value)
		case tagUserPreviousSigNo:
			r.PreviousSig = fingerprint.Fingerprint(f.Value)
		default:
			return nil, primeerr.E("parse request", primeerr.Format, errors.K.Invalid,
				"reason", "unexpected field tag", "tag", f.Tag)
		}
	}
	if r.Signing == nil || r.Encryption == nil || r.CustodySig == nil || r.SelfSig == nil {
		return nil, primeerr.E("parse request", primeerr.Format, errors.K.Invalid,
			"reason", "missing required field")
	}
	return r, nil
}

///////////////////////////////////////////////////////////////////////////////

// UserSignet is a user's org-countersigned public artifact (spec.md §3,
// §4.3): the request's public fields, custody signature and
// self-signature plus the org's countersignature over fields 1, 2, 4
// and 5 (the previous-signet field 7 is not covered), and optionally
// the reserved 253/254/255 fields (SPEC_FULL.md §C).
type UserSignet struct {
	Signing     keys.PublicKey
	Encryption  keys.PublicKey
	CustodySig  sign.Sig
	SelfSig     sign.Sig
	OrgSig      sign.Sig
	PreviousSig fingerprint.Fingerprint

	Full            sign.Sig
	Identifier      fingerprint.Fingerprint
	IdentifiableSig sign.Sig
}

// Sign counter-signs a valid request with the org's signing key,
// producing the user signet (spec.md §6.2 request_sign). Refuses to
// sign a request whose custody or self signature does not verify.
func Sign(req *Request, orgSigning *keys.PrivateKey) (*UserSignet, error) {
	e := primeerr.Template("sign request", primeerr.Crypto, errors.K.Invalid)
	if !req.ValidateCustody() {
		return nil, e("reason", "custody signature does not verify")
	}
	if !req.ValidateSelf() {
		return nil, e("reason", "self signature does not verify")
	}
	s := &UserSignet{
		Signing:     req.Signing,
		Encryption:  req.Encryption,
		CustodySig:  req.CustodySig,
		SelfSig:     req.SelfSig,
		PreviousSig: req.PreviousSig,
	}
	canonical, err := s.canonicalUnsigned()
	if err != nil {
		return nil, e(err)
	}
	sigBytes, err := primitives.Ed25519Sign(orgSigning, canonical)
	if err != nil {
		return nil, e(err)
	}
	s.OrgSig = sign.New(sign.ED25519, sigBytes)
	return s, nil
}

// selfCanonical is the canonical serialization of fields 1, 2 and 4 -
// what the user's own self-signature (field 5) is computed over.
func (s *UserSignet) selfCanonical() ([]byte, error) {
	fields := []codec.Field{
		{Tag: tagUserSigning, Value: s.Signing},
		{Tag: tagUserEncryption, Value: s.Encryption},
		{Tag: tagUserCustodySig, Value: s.CustodySig},
	}
	return codec.EncodeFields(fields, userFieldWidths)
}

// canonicalUnsigned is the canonical serialization of fields 1, 2, 4
// and 5 - what the org countersignature (field 6) is computed over.
func (s *UserSignet) canonicalUnsigned() ([]byte, error) {
	fields := []codec.Field{
		{Tag: tagUserSigning, Value: s.Signing},
		{Tag: tagUserEncryption, Value: s.Encryption},
		{Tag: tagUserCustodySig, Value: s.CustodySig},
		{Tag: tagUserSelfSig, Value: s.SelfSig},
	}
	return codec.EncodeFields(fields, userFieldWidths)
}

func (s *UserSignet) signedFields() []codec.Field {
	fields := []codec.Field{
		{Tag: tagUserSigning, Value: s.Signing},
		{Tag: tagUserEncryption, Value: s.Encryption},
	}
	if !s.PreviousSig.IsNil() {
		fields = append(fields, codec.Field{Tag: tagUserPreviousSigNo, Value: s.PreviousSig})
	}
	fields = append(fields, codec.Field{Tag: tagUserCustodySig, Value: s.CustodySig})
	fields = append(fields, codec.Field{Tag: tagUserSelfSig, Value: s.SelfSig})
	fields = append(fields, codec.Field{Tag: tagUserOrgSig, Value: s.OrgSig})
	return fields
}

func (s *UserSignet) canonical() ([]byte, error) {
	return codec.EncodeFields(s.signedFields(), userFieldWidths)
}

func (s *UserSignet) allFields() []codec.Field {
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

// Validate reports whether the embedded custody signature, the user's
// own self-signature, and the org countersignature all verify, given
// the org's signing public key (spec.md §3: "A user signet is valid
// iff its custody signature verifies under its own key, its
// self-signature verifies under its own key, and its org signature
// verifies under the issuing org's signing key").
func (s *UserSignet) Validate(orgSigning keys.PublicKey) bool {
	custodyCanonical, err := encodeUserPublicFields(s.Signing, s.Encryption)
	if err != nil {
		return false
	}
	if !primitives.Ed25519Verify(s.Signing, custodyCanonical, s.CustodySig.Bytes()) {
		return false
	}
	selfCanonical, err := s.selfCanonical()
	if err != nil {
		return false
	}
	if !primitives.Ed25519Verify(s.Signing, selfCanonical, s.SelfSig.Bytes()) {
		return false
	}
	orgCanonical, err := s.canonicalUnsigned()
	if err != nil {
		return false
	}
	return primitives.Ed25519Verify(orgSigning, orgCanonical, s.OrgSig.Bytes())
}

// Fingerprint computes this signet's field-254 identifier.
func (s *UserSignet) Fingerprint() (fingerprint.Fingerprint, error) {
	canonical, err := s.canonical()
	if err != nil {
		return nil, err
	}
	return fingerprint.Of(fingerprint.Signet, canonical), nil
}

// WithIdentifier returns a copy of s with field 254 set to its own
// fingerprint (SPEC_FULL.md §C; not set automatically by Sign).
func (s *UserSignet) WithIdentifier() (*UserSignet, error) {
	fp, err := s.Fingerprint()
	if err != nil {
		return nil, err
	}
	res := *s
	res.Identifier = fp
	return &res, nil
}

// WithFullSignature returns a copy of s with field 253 set to an
// Ed25519 signature by priv over the canonical fields (tag < 253).
func (s *UserSignet) WithFullSignature(priv *keys.PrivateKey) (*UserSignet, error) {
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
// followed by the raw field-254 identifier bytes; field 253 is not
// covered. Requires field 254 to already be set.
func (s *UserSignet) WithIdentifiableSignature(priv *keys.PrivateKey) (*UserSignet, error) {
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
// payload under the USER SIGNET magic code.
func (s *UserSignet) MarshalBinary() ([]byte, error) {
	payload, err := codec.EncodeFields(s.allFields(), userFieldWidths)
	if err != nil {
		return nil, err
	}
	return codec.EncodeArtifact(codec.UserSignet, payload), nil
}

// Armor serializes and armors this signet.
func (s *UserSignet) Armor() (string, error) {
	payload, err := codec.EncodeFields(s.allFields(), userFieldWidths)
	if err != nil {
		return "", err
	}
	return codec.ArmorArtifact(codec.UserSignet, payload), nil
}

// Debug renders a human-readable dump of this signet's fields.
func (s *UserSignet) Debug() string {
	return codec.Debug(s.allFields(), userFieldLabels)
}

// ParseUserSignet parses an artifact-framed user signet.
func ParseUserSignet(b []byte) (*UserSignet, error) {
	code, payload, err := codec.DecodeArtifact(b)
	if err != nil {
		return nil, err
	}
	if code != codec.UserSignet {
		return nil, primeerr.E("parse user signet", primeerr.Format, errors.K.Invalid,
			"reason", "wrong artifact code", "code", code)
	}
	return userSignetFromFields(payload)
}

func userSignetFromFields(payload []byte) (*UserSignet, error) {
	fields, err := codec.DecodeFields(payload, userFieldWidths)
	if err != nil {
		return nil, err
	}
	s := &UserSignet{}
	for _, f := range fields {
		switch f.Tag {
		case tagUserSigning:
			s.Signing = keys.PublicKey(f.Value)
		case tagUserEncryption:
			s.Encryption = keys.PublicKey(f.Value)
		case tagUserCustodySig:
			s.CustodySig = sign.Sig(f.Value)
		case tagUserSelfSig:
			s.SelfSig = sign.Sig(f.Value)
		case tagUserOrgSig:
			s.OrgSig = sign.Sig(f.Value)
		case tagUserPreviousSigNo:
			s.PreviousSig = fingerprint.Fingerprint(f.Value)
		case tagFull:
			s.Full = sign.Sig(f.Value)
		case tagIdentifier:
			s.Identifier = fingerprint.Fingerprint(f.Value)
		case tagIdentifiableSig:
			s.IdentifiableSig = sign.Sig(f.Value)
		default:
			return nil, primeerr.E("parse user signet", primeerr.Format, errors.K.Invalid,
				"reason", "unexpected field tag", "tag", f.Tag)
		}
	}
	if s.Signing == nil || s.Encryption == nil || s.CustodySig == nil || s.SelfSig == nil || s.OrgSig == nil {
		return nil, primeerr.E("parse user signet", primeerr.Format, errors.K.Invalid,
			"reason", "missing required field")
	}
	return s, nil
}

// Equal compares two user signets byte-for-byte over every present field.
func (s *UserSignet) Equal(other *UserSignet) bool {
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

///////////////////////////////////////////////////////////////////////////////
// Validation cache

// ValidationCache memoizes signet_validate results keyed by the
// signet's fingerprint and the validating org key, since the same signet is commonly re-validated
// once per message it appears in (spec.md §5 concurrency model). Built
// on the pinned pre-generics hashicorp/golang-lru API.
type ValidationCache struct {
	cache *lru.Cache
}

// NewValidationCache creates a cache holding up to size results.
func NewValidationCache(size int) (*ValidationCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, primeerr.E("new validation cache", primeerr.Resource, errors.K.Internal, err)
	}
	return &ValidationCache{cache: c}, nil
}

// Validate returns s.Validate(orgSigning), consulting and populating
// the cache by s's fingerprint together with orgSigning.
func (c *ValidationCache) Validate(s *UserSignet, orgSigning keys.PublicKey) bool {
	fp, err := s.Fingerprint()
	if err != nil {
		return false
	}
	key := fp.String() + "|" + orgSigning.String()
	if v, ok := c.cache.Get(key); ok {
		return v.(bool)
	}
	ok := s.Validate(orgSigning)
	c.cache.Add(key, ok)
	return ok
}
