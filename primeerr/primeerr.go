// Package primeerr defines the error taxonomy shared by every PRIME
// package. It layers the six error kinds of the wire format on top of
// github.com/eluv-io/errors-go, following the same errors.E/errors.Template
// idiom the format/sign, format/hash, format/id and format/keys packages of
// the teacher repository use.
package primeerr

import (
	"github.com/eluv-io/errors-go"
)

// Kind is one of the six top-level failure categories a caller can switch
// on. It is attached to every error via the "kind" field.
type Kind string

const (
	// Format covers malformed TLV, bad magic, truncated buffers.
	Format Kind = "format"
	// Crypto covers invalid signatures, invalid AEAD tags, key type mismatch.
	Crypto Kind = "crypto"
	// Policy covers round counts out of range, disallowed artifact combinations.
	Policy Kind = "policy"
	// Resource covers secure-memory allocation failure.
	Resource Kind = "resource"
	// Input covers null or wrong-length caller buffers.
	Input Kind = "input"
	// State covers operations attempted before Start().
	State Kind = "state"
)

// E constructs a new error tagged with the given PRIME kind, an errors-go
// umbrella kind, and the operation name. Extra key/value pairs are passed
// through to errors.E verbatim.
func E(op string, kind Kind, umbrella errors.Kind, args ...interface{}) error {
	full := make([]interface{}, 0, len(args)+3)
	full = append(full, umbrella, "kind", kind)
	full = append(full, args...)
	return errors.E(op, full...)
}

// Template returns a reusable error constructor bound to op and kind, the
// same way errors.Template is used in format/sign/sign.go and
// format/hash/hash.go for functions with several distinct failure points.
func Template(op string, kind Kind, umbrella errors.Kind) func(args ...interface{}) error {
	tmpl := errors.Template(op, umbrella, "kind", kind)
	return func(args ...interface{}) error {
		return tmpl(args...)
	}
}

// Is reports whether err carries the given PRIME kind.
func Is(err error, kind Kind) bool {
	k, ok := errors.GetField(err, "kind")
	if !ok {
		return false
	}
	return k == kind
}
