package keyring

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/benaskins/lox/internal/secret"
)

const credentialVaultBackend = "credential-vault"

// vaultCredential is one generic credential as enumerated from the vault.
type vaultCredential struct {
	Target string
	User   string
	Blob   []byte
}

func (c vaultCredential) record() Record {
	r := Record{"targetname": c.Target}
	if c.User != "" {
		r["username"] = c.User
	}
	return r
}

// vaultAPI is the native Credential Vault boundary.
//
// Read, Enumerate, Protect and Unprotect all return Go-owned copies; the
// adapter wipes every one of them except the plaintext it moves into a
// secret.Handle. Write does not retain blob. Protect and Unprotect use key
// as DPAPI description and entropy.
type vaultAPI interface {
	Read(target string) ([]byte, error)
	Write(target, user string, blob []byte) error
	Delete(target string) error
	Enumerate(filter string) ([]vaultCredential, error)
	Protect(plain []byte, key string) ([]byte, error)
	Unprotect(blob []byte, key string) ([]byte, error)
}

// CredentialVaultStore implements Store over the Windows Credential Vault.
// The composite identity collapses to one target name,
// "username:service:id", and values are stored DPAPI-protected.
type CredentialVaultStore struct {
	service  string
	username string
	native   vaultAPI
	wipe     func([]byte)
	logger   *slog.Logger
}

func newCredentialVaultStore(service, username string, native vaultAPI) *CredentialVaultStore {
	return &CredentialVaultStore{
		service:  service,
		username: username,
		native:   native,
		wipe:     secret.Wipe,
		logger:   slog.With("component", "keyring", "backend", credentialVaultBackend),
	}
}

func (s *CredentialVaultStore) targetName(id string) string {
	return strings.Join([]string{s.username, s.service, id}, ":")
}

func (s *CredentialVaultStore) Get(id string) (*secret.Handle, error) {
	target := s.targetName(id)
	blob, err := s.native.Read(target)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	defer s.wipe(blob)

	plain, err := s.native.Unprotect(blob, target)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	return secret.NewHandle(plain), nil
}

func (s *CredentialVaultStore) Set(id string, value []byte) error {
	target := s.targetName(id)

	plain := bytes.Clone(value)
	blob, err := s.native.Protect(plain, target)
	s.wipe(plain)
	if err != nil {
		return fmt.Errorf("set %q: %w", id, err)
	}
	defer s.wipe(blob)

	if err := s.native.Write(target, s.username, blob); err != nil {
		return fmt.Errorf("set %q: %w", id, err)
	}
	s.logger.Debug("secret stored", "target", target)
	return nil
}

func (s *CredentialVaultStore) Delete(id string) error {
	target := s.targetName(id)
	if err := s.native.Delete(target); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	s.logger.Debug("secret deleted", "target", target)
	return nil
}

// Peek enumerates vault entries. Criteria without '=' is taken as an exact
// target name. Otherwise it is parsed: "targetname" becomes the native
// filter and any other keys must match the entry's record.
func (s *CredentialVaultStore) Peek(criteria string) ([]Match, error) {
	filter, c, err := vaultFilter(criteria)
	if err != nil {
		return nil, err
	}
	creds, err := s.enumerate(filter)
	if err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}
	defer s.wipeBlobs(creds)

	var out []Match
	for _, cred := range creds {
		r := cred.record()
		if !r.Matches(c) {
			continue
		}
		out = append(out, Match{Label: r.String(), Secret: secret.NewHandle(s.reveal(cred))})
	}
	return out, nil
}

func (s *CredentialVaultStore) List() ([]Record, error) {
	creds, err := s.enumerate("")
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer s.wipeBlobs(creds)

	records := make([]Record, 0, len(creds))
	for _, cred := range creds {
		records = append(records, cred.record())
	}
	return records, nil
}

// enumerate treats "nothing matches the filter" as an empty result.
func (s *CredentialVaultStore) enumerate(filter string) ([]vaultCredential, error) {
	creds, err := s.native.Enumerate(filter)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return creds, err
}

func (s *CredentialVaultStore) wipeBlobs(creds []vaultCredential) {
	for _, c := range creds {
		s.wipe(c.Blob)
	}
}

// reveal returns the entry's plaintext. Entries written by lox unprotect
// with their own target name; anything else is shown as decoded text or
// hex.
func (s *CredentialVaultStore) reveal(cred vaultCredential) []byte {
	if plain, err := s.native.Unprotect(cred.Blob, cred.Target); err == nil {
		return plain
	}
	return decodeBlob(cred.Blob)
}

func (s *CredentialVaultStore) Backend() string { return credentialVaultBackend }

func (s *CredentialVaultStore) Close() error { return nil }

func vaultFilter(criteria string) (string, Criteria, error) {
	if !strings.Contains(criteria, "=") {
		return criteria, Criteria{}, nil
	}
	c, err := ParseCriteria(criteria)
	if err != nil {
		return "", nil, err
	}
	filter := c["targetname"]
	delete(c, "targetname")
	return filter, c, nil
}

// targetEntropy is the DPAPI entropy for a target name: its UTF-16LE
// encoding without terminator.
func targetEntropy(target string) []byte {
	units := utf16.Encode([]rune(target))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

// decodeBlob renders a raw vault blob written by an arbitrary tool: as
// UTF-16LE text when it has even length and no unpaired surrogates, else as
// UTF-8 text, else as lowercase hex. The result is a new buffer.
func decodeBlob(blob []byte) []byte {
	if len(blob) > 0 && len(blob)%2 == 0 {
		if text, ok := decodeUTF16LE(blob); ok {
			return text
		}
	}
	if utf8.Valid(blob) {
		return bytes.Clone(blob)
	}
	out := make([]byte, hex.EncodedLen(len(blob)))
	hex.Encode(out, blob)
	return out
}

func decodeUTF16LE(blob []byte) ([]byte, bool) {
	n := len(blob) / 2
	// Three UTF-8 bytes per UTF-16 unit is the worst case, so out never
	// reallocates and leaves no stray copy behind.
	out := make([]byte, 0, 3*n)
	for i := 0; i < n; i++ {
		u := rune(binary.LittleEndian.Uint16(blob[2*i:]))
		if utf16.IsSurrogate(u) {
			if u >= 0xdc00 || i+1 >= n {
				clear(out[:cap(out)])
				return nil, false
			}
			u2 := rune(binary.LittleEndian.Uint16(blob[2*(i+1):]))
			r := utf16.DecodeRune(u, u2)
			if r == utf8.RuneError {
				clear(out[:cap(out)])
				return nil, false
			}
			out = utf8.AppendRune(out, r)
			i++
			continue
		}
		out = utf8.AppendRune(out, u)
	}
	return out, true
}
