// Package keyring stores named secrets in the platform's native secure store.
//
// Exactly one backend is compiled in per platform:
//   - darwin: the login Keychain, as generic password items
//   - linux and the BSDs: the freedesktop Secret Service default collection
//   - windows: the Credential Vault, with DPAPI-protected blobs
//
// Secrets written by lox are addressed by the composite identity
// (service, username, id), where username is the OS user running the
// process. Peek and List look beyond that convention and search every
// secret the store exposes to the current user.
//
// Plaintext leaves a backend only inside a *secret.Handle. Every other
// buffer that held secret bytes is wiped before the call returns.
package keyring

import (
	"github.com/benaskins/lox/internal/secret"
)

// ApplicationTag marks Secret Service items written by lox.
const ApplicationTag = "lox"

// Store is the interface for secret storage operations.
type Store interface {
	// Get returns the secret stored under id. When the native store holds
	// more than one match, the first one it reports wins.
	Get(id string) (*secret.Handle, error)

	// Set creates or overwrites the secret stored under id. The caller keeps
	// ownership of value and should wipe it once Set returns.
	Set(id string, value []byte) error

	// Delete removes the secret stored under id.
	Delete(id string) error

	// Peek searches all accessible secrets using a "key=value,..." criteria
	// string. An empty string matches everything.
	Peek(criteria string) ([]Match, error)

	// List returns the metadata of all accessible secrets, never values.
	List() ([]Record, error)

	// Backend names the native store, e.g. "keychain".
	Backend() string

	// Close releases any native session held by the store.
	Close() error
}

// Match is one peek result. The caller owns Secret and must destroy it.
type Match struct {
	Label  string
	Secret *secret.Handle
}

// DestroyMatches destroys the secrets of every match.
func DestroyMatches(ms []Match) {
	for _, m := range ms {
		m.Secret.Destroy()
	}
}

// Open returns the store for the running platform, scoped to service.
func Open(service string) (Store, error) {
	return newPlatformStore(service, Username())
}
