package keyring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func name(s string) func() (string, error) {
	return func() (string, error) { return s, nil }
}

func failing() (string, error) {
	return "", errors.New("lookup failed")
}

func TestResolveUsername(t *testing.T) {
	assert.Equal(t, "alice", resolveUsername(name("alice"), name("bob")))
	assert.Equal(t, "bob", resolveUsername(failing, name("bob")))
	assert.Equal(t, "carol", resolveUsername(name(""), failing, name("carol")))
}

func TestResolveUsernameFallsBack(t *testing.T) {
	assert.Equal(t, "unknown", resolveUsername(failing, name("")))
	assert.Equal(t, "unknown", resolveUsername())
}

func TestResolveUsernameStripsDomain(t *testing.T) {
	assert.Equal(t, "alice", resolveUsername(name(`CORP\alice`)))
	assert.Equal(t, "bob", resolveUsername(name(`CORP\`), name("bob")))
}

func TestStripDomain(t *testing.T) {
	assert.Equal(t, "alice", stripDomain("alice"))
	assert.Equal(t, "alice", stripDomain(`CORP\alice`))
	assert.Equal(t, "alice", stripDomain(`A\B\alice`))
	assert.Equal(t, "", stripDomain(`CORP\`))
}

func TestLookupUIDNegative(t *testing.T) {
	_, err := lookupUID(func() int { return -1 })()
	assert.ErrorIs(t, err, errNoUID)
}

func TestUsernameIsNeverEmpty(t *testing.T) {
	u := Username()
	assert.NotEmpty(t, u)
	assert.NotContains(t, u, `\`)
}
