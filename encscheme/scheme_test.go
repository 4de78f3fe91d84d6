package encscheme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleOrderMatchesSlotPosition(t *testing.T) {
	assert.Equal(t, 0, Author.Index())
	assert.Equal(t, 1, Origin.Index())
	assert.Equal(t, 2, Destination.Index())
	assert.Equal(t, 3, Recipient.Index())
	assert.Equal(t, -1, UNKNOWN.Index())
}

func TestTagRoundTrip(t *testing.T) {
	for _, r := range Roles {
		parsed, err := FromTag(r.Tag())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
}

func TestFromTagRejectsUnknown(t *testing.T) {
	_, err := FromTag([3]byte{'X', 'X', 'X'})
	assert.Error(t, err)
}

func TestKEKInfoIsDistinctPerRole(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Roles {
		info := string(r.KEKInfo())
		assert.False(t, seen[info], "duplicate KEK info for role %v", r)
		seen[info] = true
		tag := r.Tag()
		assert.Equal(t, "PRIME KEK "+string(tag[:]), info)
	}
}

func TestFromStringRoundTrip(t *testing.T) {
	r, err := FromString("recipient")
	require.NoError(t, err)
	assert.Equal(t, Recipient, r)
}

func TestFromStringRejectsInvalid(t *testing.T) {
	_, err := FromString("nonexistent-role")
	assert.Error(t, err)
}
