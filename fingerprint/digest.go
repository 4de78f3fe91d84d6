// Package fingerprint implements the signet_fingerprint operation: a
// SHA-512 digest of an artifact's canonical serialization, truncated to
// 32 bytes, carried behind the same multiformat Code+prefix envelope
// used throughout the module. Adapted from format/hash/hash.go and
// format/hash/digest.go of the teacher repository, whose SHA-256
// content-addressed Hash/Digest pair (with preamble/part-size/storage-id
// bookkeeping for the content-fabric storage model) has no PRIME
// analog; only the streaming-digest and multiformat-prefix idioms
// survive.
package fingerprint

import (
	"bytes"
	"crypto/sha512"
	"hash"

	"github.com/eluv-io/errors-go"
	"github.com/eluv-io/log-go"
	"github.com/mr-tron/base58/base58"

	"github.com/maddog226uk/magma/primeerr"
)

// Size is the truncated fingerprint length in bytes (spec.md §6.2).
const Size = 32

// Code identifies the kind of artifact a fingerprint was taken over.
type Code uint8

const (
	UNKNOWN Code = iota

	// Signet fingerprints an org or user signet's canonical serialization.
	Signet

	// Request fingerprints a signing request's canonical serialization.
	Request
)

const codeLen = 1
const prefixLen = 4

var codeToPrefix = map[Code]string{}
var prefixToCode = map[string]Code{
	"funk": UNKNOWN,
	"fsig": Signet,
	"freq": Request,
}

func init() {
	for prefix, code := range prefixToCode {
		if len(prefix) != prefixLen {
			log.Fatal("invalid fingerprint prefix definition", "prefix", prefix)
		}
		codeToPrefix[code] = prefix
	}
}

// Fingerprint is a multiformat-prefixed code byte followed by the
// truncated SHA-512 digest bytes.
type Fingerprint []byte

// New wraps a precomputed digest with the given code. Returns an error
// if digest is not exactly Size bytes.
func New(code Code, digest []byte) (Fingerprint, error) {
	if len(digest) != Size {
		return nil, primeerr.E("init fingerprint", primeerr.Format, errors.K.Invalid,
			"reason", "invalid digest length", "length", len(digest))
	}
	return append([]byte{byte(code)}, digest...), nil
}

func (f Fingerprint) Code() Code {
	if len(f) == 0 {
		return UNKNOWN
	}
	return Code(f[0])
}

func (f Fingerprint) Bytes() []byte {
	if len(f) <= codeLen {
		return nil
	}
	return f[codeLen:]
}

func (f Fingerprint) IsNil() bool {
	return f == nil || f.Code() == UNKNOWN
}

// IsValid reports whether f carries exactly Size digest bytes.
func (f Fingerprint) IsValid() bool {
	return !f.IsNil() && len(f.Bytes()) == Size
}

func (f Fingerprint) prefix() string {
	p, found := codeToPrefix[f.Code()]
	if !found {
		return codeToPrefix[UNKNOWN]
	}
	return p
}

func (f Fingerprint) String() string {
	if f.IsNil() {
		return ""
	}
	return f.prefix() + base58.Encode(f.Bytes())
}

// FromString parses a Fingerprint from its text representation.
func FromString(s string) (Fingerprint, error) {
	if len(s) <= prefixLen {
		return nil, primeerr.E("parse fingerprint", primeerr.Format, errors.K.Invalid, "string", s)
	}
	code, found := prefixToCode[s[:prefixLen]]
	if !found {
		return nil, primeerr.E("parse fingerprint", primeerr.Format, errors.K.Invalid,
			"reason", "unknown prefix", "string", s)
	}
	dec, err := base58.Decode(s[prefixLen:])
	if err != nil {
		return nil, primeerr.E("parse fingerprint", primeerr.Format, errors.K.Invalid, err, "string", s)
	}
	return New(code, dec)
}

// AssertCode checks whether f's code equals the provided code.
func (f Fingerprint) AssertCode(c Code) error {
	if f.Code() != c {
		return primeerr.E("fingerprint code check", primeerr.Format, errors.K.Invalid,
			"expected", codeToPrefix[c], "actual", f.prefix())
	}
	return nil
}

func (f Fingerprint) Equal(other Fingerprint) bool {
	return bytes.Equal(f, other)
}

// MarshalText implements custom marshaling using the string representation.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements custom unmarshaling from the string representation.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return primeerr.E("unmarshal fingerprint", primeerr.Format, errors.K.Invalid, err)
	}
	*f = parsed
	return nil
}

///////////////////////////////////////////////////////////////////////////////

// Digest accumulates bytes of an artifact's canonical serialization and
// produces its Fingerprint on demand.
type Digest struct {
	hash.Hash
	code Code
}

var _ hash.Hash = (*Digest)(nil)

// NewDigest creates a Digest that will tag its result with code.
func NewDigest(code Code) *Digest {
	return &Digest{Hash: sha512.New(), code: code}
}

// AsFingerprint finalizes the digest over everything written so far and
// returns the truncated result as a Fingerprint.
func (d *Digest) AsFingerprint() Fingerprint {
	sum := d.Hash.Sum(nil)[:Size]
	fp, err := New(d.code, sum)
	if err != nil {
		// Size is fixed above; this cannot fail.
		log.Fatal("invalid fingerprint", "error", err)
	}
	return fp
}

// Of is a convenience wrapper computing the fingerprint of a single
// already-serialized buffer, as used by signet_fingerprint.
func Of(code Code, canonical []byte) Fingerprint {
	d := NewDigest(code)
	d.Write(canonical)
	return d.AsFingerprint()
}
