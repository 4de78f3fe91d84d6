// Package artifactid implements the multiformat-prefixed identifier for
// PRIME artifacts, with codes for org and user signets, signing requests
// and messages. Within this module it is used for the per-message trace
// identifier (spec.md §4.4 tracing chunk); signet field 254 and a
// renewal's previous-signet reference are fingerprint.Fingerprint values
// instead.
// Adapted from format/id/id.go of the teacher repository; its
// content-fabric codes (Q, QLib, Tenant, Group, KMS, ...) and their
// compatibility/decomposition machinery (IsCompatible, Decompose,
// Explain, FormatId) have no PRIME analog and are dropped, leaving the
// multiformat Code/ID envelope and random-identifier generation.
package artifactid

import (
	"bytes"

	uuid "github.com/satori/go.uuid"

	"github.com/eluv-io/errors-go"
	"github.com/eluv-io/log-go"

	"github.com/mr-tron/base58/base58"

	"github.com/maddog226uk/magma/primeerr"
)

// Code is the type of an artifact identifier.
type Code uint8

func (c Code) String() string {
	return codeToPrefix[c]
}

// lint disable
const (
	UNKNOWN Code = iota

	// OrgSignet identifies an org signet by its field-254 fingerprint.
	OrgSignet

	// UserSignet identifies a user signet by its field-254 fingerprint.
	UserSignet

	// Request identifies a signing request by its fingerprint.
	Request

	// Message identifies a message by its tracing-chunk trace identifier
	// (spec.md §4.4 chunk type 0), not a fingerprint.
	Message
)

const codeLen = 1
const prefixLen = 4

var codeToPrefix = map[Code]string{}
var prefixToCode = map[string]Code{
	"iunk": UNKNOWN,
	"iorg": OrgSignet,
	"iusr": UserSignet,
	"ireq": Request,
	"imsg": Message,
}

func init() {
	for prefix, code := range prefixToCode {
		if len(prefix) != prefixLen {
			log.Fatal("invalid artifact id prefix definition", "prefix", prefix)
		}
		codeToPrefix[code] = prefix
	}
}

// ID is the type representing an artifact identifier. IDs follow the
// multiformat principle: a one byte code prefix followed by the raw
// identifying bytes, serialized to text as a short ASCII prefix
// followed by base58.
type ID []byte

// New wraps raw identifying bytes (a fingerprint digest or a trace
// identifier) with the given code.
func New(code Code, raw []byte) ID {
	return ID(append([]byte{byte(code)}, raw...))
}

// Generate creates a fresh random Message trace identifier (spec.md
// §4.4 tracing chunk), following the teacher's use of uuid.NewV4 for
// random identifier bytes.
func Generate() ID {
	return New(Message, uuid.NewV4().Bytes())
}

func (id ID) String() string {
	if len(id) <= codeLen {
		return ""
	}
	return id.prefix() + base58.Encode(id.Bytes())
}

func (id ID) prefix() string {
	p, found := codeToPrefix[id.Code()]
	if !found {
		return codeToPrefix[UNKNOWN]
	}
	return p
}

func (id ID) Code() Code {
	if id.IsNil() {
		return UNKNOWN
	}
	return Code(id[0])
}

func (id ID) Bytes() []byte {
	if id.IsNil() {
		return nil
	}
	return id[codeLen:]
}

func (id ID) IsNil() bool {
	return len(id) <= codeLen
}

func (id ID) IsValid() bool {
	return !id.IsNil()
}

// AssertCode checks whether the ID's code equals the provided code.
func (id ID) AssertCode(c Code) error {
	if id.Code() != c {
		return primeerr.E("artifact id code check", primeerr.Format, errors.K.Invalid,
			"expected", codeToPrefix[c], "actual", id.prefix())
	}
	return nil
}

func (id ID) Equal(other ID) bool {
	return bytes.Equal(id, other)
}

// MarshalText implements custom marshaling using the string representation.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements custom unmarshaling from the string representation.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return primeerr.E("unmarshal artifact id", primeerr.Format, errors.K.Invalid, err)
	}
	*id = parsed
	return nil
}

// FromString parses an artifact ID from its text representation.
func FromString(s string) (ID, error) {
	e := primeerr.Template("parse artifact id", primeerr.Format, errors.K.Invalid)
	if len(s) <= prefixLen {
		return nil, e("string", s, "reason", "invalid prefix")
	}
	code, found := prefixToCode[s[:prefixLen]]
	if !found {
		return nil, e("string", s, "reason", "unknown prefix")
	}
	dec, err := base58.Decode(s[prefixLen:])
	if err != nil {
		return nil, e(err, "string", s)
	}
	return New(code, dec), nil
}
