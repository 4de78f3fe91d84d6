// Package encscheme identifies the four recipient roles of an
// encrypted chunk's key-encryption-key (KEK) slots, and the 3-byte tag
// selector each slot stores alongside its wrapped chunk key (spec.md
// §4.4). Adapted from format/encryption/scheme.go of the teacher
// repository: its content-encryption Scheme byte-enum (None,
// ClientGen) keyed to a hash.Format is repurposed here as a KEK role
// byte-enum keyed to the HKDF info label used in KEK derivation; the
// shape - byte enum, name map, FromString - survives unchanged.
package encscheme

import (
	"github.com/eluv-io/errors-go"

	"github.com/maddog226uk/magma/primeerr"
)

// Role identifies one of the four fixed slot positions in an encrypted
// chunk (spec.md §4.4). Role values start at 1 (0 is UNKNOWN); Index
// maps a role to its 0-based slot position.
type Role byte

const ( // order fixes slot position; preserve, only append
	UNKNOWN Role = iota
	Author
	Origin
	Destination
	Recipient
)

// Roles lists every role in fixed slot order.
var Roles = [4]Role{Author, Origin, Destination, Recipient}

var roleToName = map[Role]string{
	UNKNOWN:     "",
	Author:      "author",
	Origin:      "origin",
	Destination: "destination",
	Recipient:   "recipient",
}
var nameToRole = map[string]Role{}

// roleToTag is the role_tag appended to "PRIME KEK " when deriving that
// role's KEK (spec.md §4.4), and is also serialized as the slot's
// 3-byte tag selector so a reader can identify which role a real slot
// was built for. Placeholder slots carry HKDF filler in this position,
// not a role tag.
var roleToTag = map[Role][3]byte{
	UNKNOWN:     {0, 0, 0},
	Author:      [3]byte{'A', 'U', 'T'},
	Origin:      [3]byte{'O', 'R', 'G'},
	Destination: [3]byte{'D', 'S', 'T'},
	Recipient:   [3]byte{'R', 'C', 'P'},
}
var tagToRole = map[[3]byte]Role{}

func init() {
	for role, name := range roleToName {
		nameToRole[name] = role
	}
	for role, tag := range roleToTag {
		tagToRole[tag] = role
	}
}

// FromString parses a role name, as used in configuration or logging.
func FromString(str string) (Role, error) {
	r, ok := nameToRole[str]
	if !ok {
		return UNKNOWN, primeerr.E("parse role", primeerr.Format, errors.K.Invalid,
			"reason", "invalid role", "role", str)
	}
	return r, nil
}

// FromTag parses the 3-byte tag selector stored in a chunk slot.
func FromTag(tag [3]byte) (Role, error) {
	r, ok := tagToRole[tag]
	if !ok {
		return UNKNOWN, primeerr.E("parse role tag", primeerr.Format, errors.K.Invalid,
			"reason", "invalid tag selector", "tag", tag)
	}
	return r, nil
}

func (r Role) String() string {
	return roleToName[r]
}

// Tag returns the 3-byte tag selector this role stores in its slot.
func (r Role) Tag() [3]byte {
	return roleToTag[r]
}

// Index returns the fixed slot position (0..3) of this role, or -1 if
// the role is unknown.
func (r Role) Index() int {
	for i, role := range Roles {
		if role == r {
			return i
		}
	}
	return -1
}

// KEKInfo returns the HKDF info parameter used to derive this role's
// key-encryption-key: "PRIME KEK " followed by the role tag.
func (r Role) KEKInfo() []byte {
	tag := r.Tag()
	return append([]byte("PRIME KEK "), tag[:]...)
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	var err error
	*r, err = FromString(string(text))
	return err
}
