// Package keys implements the multiformat-prefixed public key identifier
// used across PRIME artifacts, plus a zeroizing wrapper for private key
// material. The prefixed-identifier scheme is adapted from
// format/keys/keys.go of the teacher repository: a one byte code followed
// by the raw key bytes, rendered to text as a short ASCII prefix plus
// base58.
package keys

import (
	"bytes"
	"runtime"

	"github.com/eluv-io/errors-go"
	"github.com/eluv-io/log-go"
	"github.com/mr-tron/base58/base58"

	"github.com/maddog226uk/magma/primeerr"
)

// Code is the type of a public key identifier.
type Code uint8

// lint disable
const (
	KUNKNOWN Code = iota
	Ed25519Public
	Ed25519Private
	Secp256k1Public
	Secp256k1Private
	Secp256k1PublicUncompressed
)

const codeLen = 1
const prefixLen = 4

// ExpectedLen returns the canonical byte length for the given code, or -1
// if the code is not one of the known key codes.
func (c Code) ExpectedLen() int {
	switch c {
	case Ed25519Public, Ed25519Private:
		return 32
	case Secp256k1Public:
		return 33
	case Secp256k1Private:
		return 32
	case Secp256k1PublicUncompressed:
		return 65
	default:
		return -1
	}
}

func (c Code) IsPrivate() bool {
	return c == Ed25519Private || c == Secp256k1Private
}

var codeToPrefix = map[Code]string{}
var prefixToCode = map[string]Code{
	"kunk": KUNKNOWN,
	"ked2": Ed25519Public,
	"kes2": Ed25519Private,
	"ksk1": Secp256k1Public,
	"kss1": Secp256k1Private,
	"ksku": Secp256k1PublicUncompressed,
}

func init() {
	for prefix, code := range prefixToCode {
		if len(prefix) != prefixLen {
			log.Fatal("invalid key prefix definition", "prefix", prefix)
		}
		codeToPrefix[code] = prefix
	}
}

// PublicKey is a multiformat-prefixed public key: a one byte code
// identifying the curve/variant followed by the raw key bytes. Unlike the
// teacher's KID, there is no secret counterpart in this type - see
// PrivateKey for that.
type PublicKey []byte

// New creates a PublicKey from a code and raw key bytes.
func New(code Code, raw []byte) PublicKey {
	return PublicKey(append([]byte{byte(code)}, raw...))
}

func (k PublicKey) Code() Code {
	if len(k) == 0 {
		return KUNKNOWN
	}
	return Code(k[0])
}

func (k PublicKey) Bytes() []byte {
	if len(k) <= codeLen {
		return nil
	}
	return k[codeLen:]
}

func (k PublicKey) IsValid() bool {
	c := k.Code()
	expected := c.ExpectedLen()
	return expected > 0 && len(k.Bytes()) == expected
}

func (k PublicKey) String() string {
	if len(k) <= codeLen {
		return ""
	}
	return k.prefix() + base58.Encode(k.Bytes())
}

func (k PublicKey) prefix() string {
	p, found := codeToPrefix[k.Code()]
	if !found {
		return codeToPrefix[KUNKNOWN]
	}
	return p
}

// AssertCode checks whether the key's code equals the provided code.
func (k PublicKey) AssertCode(c Code) error {
	if k.Code() != c {
		return primeerr.E("key code check", primeerr.Crypto, errors.K.Invalid,
			"expected", codeToPrefix[c], "actual", k.prefix())
	}
	return nil
}

// MarshalText implements custom marshaling using the string representation.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements custom unmarshaling from the string representation.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return primeerr.E("unmarshal public key", primeerr.Format, errors.K.Invalid, err)
	}
	*k = parsed
	return nil
}

func (k PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(k, other)
}

// FromString parses a PublicKey from its string representation.
func FromString(s string) (PublicKey, error) {
	if len(s) <= prefixLen {
		return nil, primeerr.E("parse public key", primeerr.Format, errors.K.Invalid, "string", s)
	}
	code, found := prefixToCode[s[:prefixLen]]
	if !found {
		return nil, primeerr.E("parse public key", primeerr.Format, errors.K.Invalid, "reason", "unknown prefix", "string", s)
	}
	dec, err := base58.Decode(s[prefixLen:])
	if err != nil {
		return nil, primeerr.E("parse public key", primeerr.Format, errors.K.Invalid, err, "string", s)
	}
	return New(code, dec), nil
}

///////////////////////////////////////////////////////////////////////////////

// PrivateKey wraps secret key bytes behind a type whose Destroy method
// guarantees the backing array is overwritten with zeros. Per spec.md §5,
// callers that can lock memory against paging should do so before
// constructing a PrivateKey; this type only guarantees the zero-on-release
// half of that contract, which is all that is portable across hosts.
type PrivateKey struct {
	code    Code
	secret  []byte
	zeroed  bool
}

// NewPrivate takes ownership of secret - the caller must not retain or
// reuse the backing array after this call.
func NewPrivate(code Code, secret []byte) *PrivateKey {
	pk := &PrivateKey{code: code, secret: secret}
	runtime.SetFinalizer(pk, (*PrivateKey).Destroy)
	return pk
}

func (pk *PrivateKey) Code() Code {
	if pk == nil {
		return KUNKNOWN
	}
	return pk.code
}

// Bytes returns the raw secret bytes. The returned slice aliases internal
// storage and must not be retained past the PrivateKey's lifetime.
func (pk *PrivateKey) Bytes() []byte {
	if pk == nil || pk.zeroed {
		return nil
	}
	return pk.secret
}

func (pk *PrivateKey) IsValid() bool {
	return pk != nil && !pk.zeroed && len(pk.secret) == pk.code.ExpectedLen()
}

// Destroy overwrites the secret bytes with zeros. Idempotent, safe to call
// more than once, and safe to call from a finalizer.
func (pk *PrivateKey) Destroy() {
	if pk == nil || pk.zeroed {
		return
	}
	for i := range pk.secret {
		pk.secret[i] = 0
	}
	pk.zeroed = true
}
