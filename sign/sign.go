// Package sign implements the multiformat-prefixed signature identifier
// used throughout PRIME artifacts and message chunks, adapted from
// format/sign/sign.go of the teacher repository: a one byte code followed
// by the raw signature bytes, with a short ASCII prefix for text/JSON
// representations. The teacher's Ethereum-specific codes (ES256K,
// EIP191Personal, EIP712TypedData, SR25519) and its SignerAddress
// recovery are dropped - PRIME signs exclusively with Ed25519 (spec.md
// §4.1).
package sign

import (
	"bytes"

	"github.com/eluv-io/errors-go"
	"github.com/eluv-io/log-go"
	"github.com/mr-tron/base58/base58"

	"github.com/maddog226uk/magma/primeerr"
)

// Code is the type of a Sig.
type Code uint8

func (c Code) String() string {
	return codeToPrefix[c]
}

// lint disable
const (
	UNKNOWN Code = iota

	// ED25519 is the Edwards-curve Digital Signature Algorithm (EdDSA)
	// with SHA-512 on curve 25519, used for every signature in the PRIME
	// format: artifact self/chain-of-custody/cross-signatures and chunk
	// signatures alike (spec.md §3, §4.3, §4.4).
	ED25519
)

const codeLen = 1
const prefixLen = 7

var codeToPrefix = map[Code]string{}
var prefixToCode = map[string]Code{
	"sunk___": UNKNOWN,
	"ED25519": ED25519,
}

func init() {
	for prefix, code := range prefixToCode {
		if len(prefix) != prefixLen {
			log.Fatal("invalid signature prefix definition", "prefix", prefix)
		}
		codeToPrefix[code] = prefix
	}
}

// SigLen returns the expected length of a signature for the given code.
// Returns -1 if unknown.
func (c Code) SigLen() int {
	switch c {
	case ED25519:
		return 64
	default:
		return -1
	}
}

// Sig is the type representing a Signature: a multiformat-prefixed code
// byte followed by the raw signature bytes.
type Sig []byte

// New creates a Sig from a code and raw signature bytes.
func New(code Code, raw []byte) Sig {
	return append([]byte{byte(code)}, raw...)
}

func (sig Sig) String() string {
	if len(sig) <= codeLen {
		return ""
	}
	return sig.prefix() + base58.Encode(sig.Bytes())
}

func (sig Sig) prefix() string {
	p, found := codeToPrefix[sig.Code()]
	if !found {
		return codeToPrefix[UNKNOWN]
	}
	return p
}

func (sig Sig) Code() Code {
	if len(sig) == 0 {
		return UNKNOWN
	}
	return Code(sig[0])
}

func (sig Sig) Bytes() []byte {
	if len(sig) <= codeLen {
		return nil
	}
	return sig[codeLen:]
}

func (sig Sig) IsNil() bool {
	return sig == nil || len(sig) <= codeLen
}

// IsValid reports whether sig has the expected length for its code.
func (sig Sig) IsValid() bool {
	expected := sig.Code().SigLen()
	return expected > 0 && len(sig.Bytes()) == expected
}

// AssertCode checks whether the Sig's code equals the provided code.
func (sig Sig) AssertCode(c Code) error {
	if sig.Code() != c {
		return primeerr.E("sig code check", primeerr.Crypto, errors.K.Invalid,
			"expected", codeToPrefix[c], "actual", sig.prefix())
	}
	return nil
}

// MarshalText implements custom marshaling using the string representation.
func (sig Sig) MarshalText() ([]byte, error) {
	return []byte(sig.String()), nil
}

// UnmarshalText implements custom unmarshaling from the string representation.
func (sig *Sig) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return primeerr.E("unmarshal sig", primeerr.Format, errors.K.Invalid, err)
	}
	*sig = parsed
	return nil
}

func (sig Sig) Equal(other Sig) bool {
	return bytes.Equal(sig, other)
}

// FromString parses a Sig from the given string representation.
func FromString(s string) (Sig, error) {
	if len(s) <= prefixLen {
		return nil, primeerr.E("parse sig", primeerr.Format, errors.K.Invalid, "string", s)
	}
	code, found := prefixToCode[s[:prefixLen]]
	if !found {
		return nil, primeerr.E("parse sig", primeerr.Format, errors.K.Invalid, "reason", "unknown prefix", "string", s)
	}
	dec, err := base58.Decode(s[prefixLen:])
	if err != nil {
		return nil, primeerr.E("parse sig", primeerr.Format, errors.K.Invalid, err, "string", s)
	}
	return New(code, dec), nil
}
