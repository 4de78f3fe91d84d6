package artifactid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tid = ID(append([]byte{byte(OrgSignet)}, []byte{0, 1, 2, 3, 4, 5, 6}...))

func TestGenerate(t *testing.T) {
	generated := Generate()
	require.NoError(t, generated.AssertCode(Message))

	idString := generated.String()
	assert.Equal(t, "imsg", idString[:4])

	idFromString, err := FromString(idString)
	require.NoError(t, err)
	assert.NoError(t, idFromString.AssertCode(Message))
	assert.True(t, generated.Equal(idFromString))

	var nilID ID
	assert.False(t, nilID.Equal(generated))
}

func TestStringRoundTrip(t *testing.T) {
	s := tid.String()
	assert.Equal(t, "iorg", s[:4])

	parsed, err := FromString(s)
	require.NoError(t, err)
	assert.True(t, tid.Equal(parsed))
	assert.NoError(t, parsed.AssertCode(OrgSignet))
}

func TestAssertCodeMismatch(t *testing.T) {
	assert.Error(t, tid.AssertCode(UserSignet))
}

func TestInvalidStringConversions(t *testing.T) {
	tests := []struct {
		id string
	}{
		{id: ""},
		{id: "blub"},
		{id: "iorg"},
		{id: "iorg "},
		{id: "nonexistent-prefix-string"},
	}
	for _, test := range tests {
		t.Run(test.id, func(t *testing.T) {
			id, err := FromString(test.id)
			assert.Error(t, err)
			assert.Nil(t, id)
		})
	}
}

func TestNilIDIsInvalid(t *testing.T) {
	var id ID
	assert.True(t, id.IsNil())
	assert.False(t, id.IsValid())
	assert.Equal(t, "", id.String())
}
