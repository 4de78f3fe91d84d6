// Package prime is the PRIME façade: the single entry point spec.md
// §6.2 describes (start/stop, alloc/free/cleanup, set/get,
// key_generate, key_encrypt/key_decrypt, signet_generate,
// signet_fingerprint, signet_validate, request_generate/request_sign,
// message_encrypt/message_decrypt), built on signet, chunk and
// message. Grounded on original_source/src/providers/prime/prime.h's
// prime_t/prime_alloc/prime_free/prime_cleanup lifecycle, translated
// from C's manual handle allocation into Go's explicit Session
// value with a Free method callers defer, and on spec.md §5's
// two process-wide read-only handles (the org signing and encryption
// keys), held here behind go.uber.org/atomic so concurrent readers
// never observe a partially-initialized org identity.
package prime

import (
	"sync"

	"github.com/eluv-io/errors-go"
	"github.com/eluv-io/log-go"
	"go.uber.org/atomic"

	"github.com/maddog226uk/magma/codec"
	"github.com/maddog226uk/magma/encscheme"
	"github.com/maddog226uk/magma/fingerprint"
	"github.com/maddog226uk/magma/keys"
	"github.com/maddog226uk/magma/message"
	"github.com/maddog226uk/magma/primeerr"
	"github.com/maddog226uk/magma/primitives"
	"github.com/maddog226uk/magma/signet"
)

// Config supplies the process-wide org identity a Prime instance
// serves (spec.md §5). The org key must already be self-signed and
// valid; Start refuses to take ownership of one that is not.
type Config struct {
	Org            *signet.OrgKey
	ValidationSize int // LRU size for the signet validation cache, 0 selects a default
}

const defaultValidationCacheSize = 4096

// Prime is the process-wide PRIME handle. The zero value is not
// ready for use; construct with New and call Start.
type Prime struct {
	started atomic.Bool

	orgSigningPub    atomic.Value // keys.PublicKey
	orgEncryptionPub atomic.Value // keys.PublicKey
	org              *signet.OrgKey
	validation       *signet.ValidationCache
}

// New constructs an unstarted Prime handle.
func New() *Prime {
	return &Prime{}
}

// Start validates and takes ownership of cfg.Org, publishing its
// public keys as the two process-wide read-only handles spec.md §5
// describes. Safe to call exactly once; a second call without an
// intervening Stop is a State error.
func (p *Prime) Start(cfg Config) error {
	e := primeerr.Template("start", primeerr.State, errors.K.Invalid)
	if !p.started.CAS(false, true) {
		return e("reason", "already started")
	}
	if cfg.Org == nil || !cfg.Org.Signet().Validate() {
		p.started.Store(false)
		return e("reason", "invalid org key")
	}

	size := cfg.ValidationSize
	if size <= 0 {
		size = defaultValidationCacheSize
	}
	cache, err := signet.NewValidationCache(size)
	if err != nil {
		p.started.Store(false)
		return e(err)
	}

	p.org = cfg.Org
	p.orgSigningPub.Store(cfg.Org.SigningPub)
	p.orgEncryptionPub.Store(cfg.Org.EncryptionPub)
	p.validation = cache

	log.Info("prime started", "org_signing", cfg.Org.SigningPub.String())
	return nil
}

// Stop zeroizes the org key and releases the process-wide handles.
// Safe to call on an already-stopped or never-started Prime.
func (p *Prime) Stop() {
	if !p.started.CAS(true, false) {
		return
	}
	if p.org != nil {
		p.org.Destroy()
	}
	p.org = nil
	p.validation = nil
	p.orgSigningPub.Store(keys.PublicKey(nil))
	p.orgEncryptionPub.Store(keys.PublicKey(nil))
	log.Info("prime stopped")
}

func (p *Prime) requireStarted(op string) error {
	if !p.started.Load() {
		return primeerr.E(op, primeerr.State, errors.K.Invalid, "reason", "not started")
	}
	return nil
}

// OrgSigningPublic returns the process-wide org signing public key.
func (p *Prime) OrgSigningPublic() keys.PublicKey {
	pub, _ := p.orgSigningPub.Load().(keys.PublicKey)
	return pub
}

// OrgEncryptionPublic returns the process-wide org encryption public key.
func (p *Prime) OrgEncryptionPublic() keys.PublicKey {
	pub, _ := p.orgEncryptionPub.Load().(keys.PublicKey)
	return pub
}

///////////////////////////////////////////////////////////////////////////////
// Session: prime_alloc/prime_free/prime_cleanup, prime_set/prime_get

// Session is a scratch handle for one unit of work - generating a key,
// building a request, assembling a message - carrying whatever
// private key material that work produces until the caller is done
// with it. Translates prime_alloc/prime_free/prime_cleanup's manual
// lifecycle into Go's defer-a-cleanup idiom: callers should
// `s := p.Alloc(); defer s.Free()`.
type Session struct {
	mu          sync.Mutex
	attrs       map[string]interface{}
	privateKeys []*keys.PrivateKey
}

// Alloc creates a new Session.
func (p *Prime) Alloc() *Session {
	return &Session{attrs: map[string]interface{}{}}
}

// Set stores an arbitrary attribute on the session (prime_set).
func (s *Session) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Get retrieves an attribute previously stored with Set (prime_get).
func (s *Session) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// track registers a private key for zeroization when the session is freed.
func (s *Session) track(pk *keys.PrivateKey) *keys.PrivateKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.privateKeys = append(s.privateKeys, pk)
	return pk
}

// Cleanup zeroizes every private key the session has produced without
// releasing the session itself - the caller can keep using it.
func (s *Session) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pk := range s.privateKeys {
		pk.Destroy()
	}
	s.privateKeys = s.privateKeys[:0]
}

// Free cleans up and releases the session. Idempotent.
func (s *Session) Free() {
	s.Cleanup()
}

///////////////////////////////////////////////////////////////////////////////
// Key generation and password-based key encryption

// KeyGenerateUser creates a fresh user key, tracked by s for zeroization.
func (p *Prime) KeyGenerateUser(s *Session) (*signet.UserKey, error) {
	if err := p.requireStarted("key_generate"); err != nil {
		return nil, err
	}
	key, err := signet.GenerateUserKey()
	if err != nil {
		return nil, err
	}
	s.track(key.Signing)
	s.track(key.Encryption)
	return key, nil
}

// EncryptedPrivateKey is the result of password-wrapping a private
// key's raw secret bytes (spec.md §4.6, the ENCRYPTED USER/ORG KEY
// artifacts): the STACIE parameters needed to re-derive the wrapping
// key, the wrapped key's own code (so KeyDecrypt doesn't need it
// passed out of band), plus the sealed secret.
type EncryptedPrivateKey struct {
	Code       keys.Code
	Salt       []byte
	Nonce      []byte
	Rounds     uint32
	Ciphertext []byte
}

// KeyEncrypt password-protects priv's raw secret bytes with
// AES-256-GCM under a key and nonce HKDF-derived from the STACIE
// schedule's seed (wrappingKeyMaterial; spec.md §4.6, §6.2 key_encrypt).
func KeyEncrypt(priv *keys.PrivateKey, password string, salt, nonce []byte, rounds uint32) (*EncryptedPrivateKey, error) {
	e := primeerr.Template("key encrypt", primeerr.Crypto, errors.K.Internal)
	result, err := primitives.Stacie(password, salt, nonce, rounds)
	if err != nil {
		return nil, e(err)
	}
	aeadKey, aeadNonce, err := wrappingKeyMaterial(result)
	if err != nil {
		return nil, e(err)
	}
	ciphertext, err := primitives.AEADSeal(aeadKey, aeadNonce, nil, priv.Bytes())
	if err != nil {
		return nil, e(err)
	}
	return &EncryptedPrivateKey{Code: priv.Code(), Salt: salt, Nonce: nonce, Rounds: rounds, Ciphertext: ciphertext}, nil
}

///////////////////////////////////////////////////////////////////////////////
// ENCRYPTED USER/ORG KEY artifact framing

const (
	tagEncCode       byte = 1
	tagEncSalt       byte = 2
	tagEncNonce      byte = 3
	tagEncRounds     byte = 4
	tagEncCiphertext byte = 5
)

var encryptedKeyFieldWidths = map[byte]codec.Width{
	tagEncCode:       codec.Width1,
	tagEncSalt:       codec.Width1,
	tagEncNonce:      codec.Width1,
	tagEncRounds:     codec.Width1,
	tagEncCiphertext: codec.Width2,
}

func (enc *EncryptedPrivateKey) fields() []codec.Field {
	rounds := make([]byte, 4)
	rounds[0] = byte(enc.Rounds >> 24)
	rounds[1] = byte(enc.Rounds >> 16)
	rounds[2] = byte(enc.Rounds >> 8)
	rounds[3] = byte(enc.Rounds)
	return []codec.Field{
		{Tag: tagEncCode, Value: []byte{byte(enc.Code)}},
		{Tag: tagEncSalt, Value: enc.Salt},
		{Tag: tagEncNonce, Value: enc.Nonce},
		{Tag: tagEncRounds, Value: rounds},
		{Tag: tagEncCiphertext, Value: enc.Ciphertext},
	}
}

// MarshalBinary serializes enc as an artifact-framed TLV payload under
// code, which must be codec.UserKeyEncrypted or codec.OrgKeyEncrypted.
func (enc *EncryptedPrivateKey) MarshalBinary(artifact codec.ArtifactCode) ([]byte, error) {
	payload, err := codec.EncodeFields(enc.fields(), encryptedKeyFieldWidths)
	if err != nil {
		return nil, err
	}
	return codec.EncodeArtifact(artifact, payload), nil
}

// Armor serializes and armors enc under the given artifact code.
func (enc *EncryptedPrivateKey) Armor(artifact codec.ArtifactCode) (string, error) {
	payload, err := codec.EncodeFields(enc.fields(), encryptedKeyFieldWidths)
	if err != nil {
		return "", err
	}
	return codec.ArmorArtifact(artifact, payload), nil
}

// ParseEncryptedPrivateKey parses an artifact-framed ENCRYPTED USER KEY
// or ENCRYPTED ORG KEY payload, returning the artifact code alongside
// the decoded key so callers can tell which kind they were handed.
func ParseEncryptedPrivateKey(b []byte) (codec.ArtifactCode, *EncryptedPrivateKey, error) {
	e := primeerr.Template("parse encrypted key", primeerr.Format, errors.K.Invalid)
	artifact, payload, err := codec.DecodeArtifact(b)
	if err != nil {
		return 0, nil, e(err)
	}
	if artifact != codec.UserKeyEncrypted && artifact != codec.OrgKeyEncrypted {
		return 0, nil, e("reason", "wrong artifact code", "code", artifact)
	}
	fields, err := codec.DecodeFields(payload, encryptedKeyFieldWidths)
	if err != nil {
		return 0, nil, e(err)
	}
	enc := &EncryptedPrivateKey{}
	for _, f := range fields {
		switch f.Tag {
		case tagEncCode:
			if len(f.Value) != 1 {
				return 0, nil, e("reason", "invalid key code field")
			}
			enc.Code = keys.Code(f.Value[0])
		case tagEncSalt:
			enc.Salt = f.Value
		case tagEncNonce:
			enc.Nonce = f.Value
		case tagEncRounds:
			if len(f.Value) != 4 {
				return 0, nil, e("reason", "invalid rounds field")
			}
			enc.Rounds = uint32(f.Value[0])<<24 | uint32(f.Value[1])<<16 | uint32(f.Value[2])<<8 | uint32(f.Value[3])
		case tagEncCiphertext:
			enc.Ciphertext = f.Value
		default:
			return 0, nil, e("reason", "unexpected field tag", "tag", f.Tag)
		}
	}
	if enc.Salt == nil || enc.Nonce == nil || enc.Ciphertext == nil {
		return 0, nil, e("reason", "missing required field")
	}
	return artifact, enc, nil
}

// wrappingKeyMaterial derives the AEAD key and nonce used to seal a
// private key's secret bytes from a STACIE result's seed, keeping the
// account-recovery shard out of the AEAD's key schedule entirely.
func wrappingKeyMaterial(result *primitives.StacieResult) (key, nonce []byte, err error) {
	key, err = primitives.HKDF(result.Seed, nil, []byte("PRIME KEY WRAP KEY"), primitives.AEADKeyLen)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = primitives.HKDF(result.Seed, nil, []byte("PRIME KEY WRAP NONCE"), primitives.AEADNonceLen)
	if err != nil {
		return nil, nil, err
	}
	return key, nonce, nil
}

// KeyDecrypt reverses KeyEncrypt, reconstructing a PrivateKey of enc's
// own recorded code from an encrypted blob and the password that
// sealed it (spec.md §6.2 key_decrypt). Fails with a Crypto error if
// the password is wrong - the AEAD tag check is the only signal.
func KeyDecrypt(enc *EncryptedPrivateKey, password string) (*keys.PrivateKey, error) {
	e := primeerr.Template("key decrypt", primeerr.Crypto, errors.K.Invalid)
	result, err := primitives.Stacie(password, enc.Salt, enc.Nonce, enc.Rounds)
	if err != nil {
		return nil, e(err)
	}
	aeadKey, aeadNonce, err := wrappingKeyMaterial(result)
	if err != nil {
		return nil, e(err)
	}
	secret, err := primitives.AEADOpen(aeadKey, aeadNonce, nil, enc.Ciphertext)
	if err != nil {
		return nil, e(err)
	}
	return keys.NewPrivate(enc.Code, secret), nil
}

///////////////////////////////////////////////////////////////////////////////
// Signets and signing requests

// SignetGenerateOrg generates a fresh, self-signed org signet and key
// (spec.md §6.2 signet_generate, org variant). Does not require Start.
func SignetGenerateOrg() (*signet.OrgKey, error) {
	return signet.GenerateOrgKey()
}

// RequestGenerate generates a fresh user key and signing request
// (spec.md §6.2 request_generate). previous is nil for a new user.
func (p *Prime) RequestGenerate(s *Session, previous fingerprint.Fingerprint) (*signet.Request, error) {
	if err := p.requireStarted("request_generate"); err != nil {
		return nil, err
	}
	key, req, err := signet.GenerateRequest(previous)
	if err != nil {
		return nil, err
	}
	s.track(key.Signing)
	s.track(key.Encryption)
	return req, nil
}

// RequestSign countersigns req with this process's org signing key
// (spec.md §6.2 request_sign).
func (p *Prime) RequestSign(req *signet.Request) (*signet.UserSignet, error) {
	if err := p.requireStarted("request_sign"); err != nil {
		return nil, err
	}
	return signet.Sign(req, p.org.Signing)
}

// SignetFingerprintOrg computes an org signet's field-254 identifier
// (spec.md §6.2 signet_fingerprint).
func SignetFingerprintOrg(s *signet.OrgSignet) (fingerprint.Fingerprint, error) {
	return s.Fingerprint()
}

// SignetFingerprintUser computes a user signet's field-254 identifier.
func SignetFingerprintUser(s *signet.UserSignet) (fingerprint.Fingerprint, error) {
	return s.Fingerprint()
}

// SignetValidateUser validates a user signet against this process's
// org signing key, consulting the validation cache keyed by the
// signet's own fingerprint and that org key (spec.md §6.2 signet_validate).
func (p *Prime) SignetValidateUser(s *signet.UserSignet) (bool, error) {
	if err := p.requireStarted("signet_validate"); err != nil {
		return false, err
	}
	return p.validation.Validate(s, p.org.SigningPub), nil
}

///////////////////////////////////////////////////////////////////////////////
// Messages

// MessageEncrypt assembles and seals plaintext to parties' roles
// (spec.md §6.2 message_encrypt).
func MessageEncrypt(plaintext []byte, parties message.Participants) (*message.Message, error) {
	return message.Encrypt(plaintext, parties)
}

// MessageDecrypt opens every chunk of m as role and verifies its
// signatures against verifiers (spec.md §6.2 message_decrypt).
func MessageDecrypt(m *message.Message, role encscheme.Role, priv *keys.PrivateKey, verifiers message.Verifiers) ([]byte, error) {
	return message.Decrypt(m, role, priv, verifiers)
}
