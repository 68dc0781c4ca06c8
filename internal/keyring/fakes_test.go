package keyring

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// handedOut records every buffer a fake returns, so tests can check that
// the adapter wiped it.
type handedOut struct {
	bufs [][]byte
}

func (h *handedOut) give(b []byte) []byte {
	c := bytes.Clone(b)
	h.bufs = append(h.bufs, c)
	return c
}

// allZero reports whether every handed-out buffer has been wiped.
func (h *handedOut) allZero() bool {
	for _, b := range h.bufs {
		for _, x := range b {
			if x != 0 {
				return false
			}
		}
	}
	return true
}

// fakeKeychain is an in-memory keychainAPI.
type fakeKeychain struct {
	handedOut
	items     []*fakeKeychainItem
	unlocks   int
	unlockErr error
	findErr   map[string]error // by account
	attrErr   map[string]error // by kind
	extraRaw  []map[string]any // appended to Attributes(kindGeneric)
}

type fakeKeychainItem struct {
	query keychainQuery
	label string
	data  []byte
}

func newFakeKeychain() *fakeKeychain {
	return &fakeKeychain{findErr: map[string]error{}, attrErr: map[string]error{}}
}

var errFakeNotFound = classify(ErrNotFound, &PlatformError{Backend: keychainBackend, Op: "find", Code: -25300})

func (f *fakeKeychain) Unlock() error {
	f.unlocks++
	return f.unlockErr
}

func (f *fakeKeychain) Find(q keychainQuery) ([]byte, error) {
	if err := f.findErr[q.Account]; err != nil {
		return nil, err
	}
	for _, it := range f.items {
		if queryMatches(it.query, q) {
			return f.give(it.data), nil
		}
	}
	return nil, errFakeNotFound
}

func queryMatches(item, q keychainQuery) bool {
	eq := func(want, got string) bool { return want == "" || want == got }
	return q.Kind == item.Kind &&
		eq(q.Service, item.Service) &&
		eq(q.Account, item.Account) &&
		eq(q.Server, item.Server) &&
		eq(q.Protocol, item.Protocol) &&
		eq(q.AuthType, item.AuthType) &&
		eq(q.SecurityDomain, item.SecurityDomain) &&
		eq(q.Path, item.Path) &&
		(q.Port == 0 || q.Port == item.Port)
}

func (f *fakeKeychain) SetGeneric(service, account, label string, data []byte) error {
	for _, it := range f.items {
		if it.query.Kind == kindGeneric && it.query.Service == service && it.query.Account == account {
			it.data = bytes.Clone(data)
			it.label = label
			return nil
		}
	}
	f.items = append(f.items, &fakeKeychainItem{
		query: keychainQuery{Kind: kindGeneric, Service: service, Account: account},
		label: label,
		data:  bytes.Clone(data),
	})
	return nil
}

func (f *fakeKeychain) DeleteGeneric(service, account string) error {
	for i, it := range f.items {
		if it.query.Kind == kindGeneric && it.query.Service == service && it.query.Account == account {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return errFakeNotFound
}

func (f *fakeKeychain) Attributes(kind string) ([]map[string]any, error) {
	if err := f.attrErr[kind]; err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, it := range f.items {
		if it.query.Kind != kind {
			continue
		}
		q := it.query
		raw := map[string]any{"acct": q.Account, "labl": it.label}
		if kind == kindGeneric {
			raw["class"] = "genp"
			raw["svce"] = q.Service
		} else {
			raw["class"] = "inet"
			raw["srvr"] = q.Server
			raw["ptcl"] = q.Protocol
			raw["atyp"] = q.AuthType
			raw["port"] = int64(q.Port)
			raw["path"] = q.Path
		}
		out = append(out, raw)
	}
	if kind == kindGeneric {
		out = append(out, f.extraRaw...)
	}
	return out, nil
}

func (f *fakeKeychain) addInternet(q keychainQuery, data string) {
	q.Kind = kindInternet
	f.items = append(f.items, &fakeKeychainItem{query: q, data: []byte(data)})
}

// fakeSecretService is an in-memory secretServiceAPI.
type fakeSecretService struct {
	handedOut
	paths     []string
	items     map[string]*fakeSSItem
	next      int
	locked    bool
	unlocks   int
	unlockErr error
	attrErr   map[string]error
	secretErr map[string]error
	closed    bool
}

type fakeSSItem struct {
	label string
	attrs map[string]string
	value []byte
}

func newFakeSecretService() *fakeSecretService {
	return &fakeSecretService{
		items:     map[string]*fakeSSItem{},
		attrErr:   map[string]error{},
		secretErr: map[string]error{},
	}
}

func (f *fakeSecretService) Locked() (bool, error) { return f.locked, nil }

func (f *fakeSecretService) Unlock() error {
	f.unlocks++
	if f.unlockErr != nil {
		return f.unlockErr
	}
	f.locked = false
	return nil
}

func (f *fakeSecretService) Search(attrs map[string]string) ([]string, error) {
	var out []string
	for _, p := range f.paths {
		if Record(f.items[p].attrs).Matches(Criteria(attrs)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeSecretService) Items() ([]string, error) {
	if f.locked {
		return nil, errors.New("collection is locked")
	}
	return append([]string(nil), f.paths...), nil
}

func (f *fakeSecretService) Attributes(item string) (map[string]string, error) {
	if err := f.attrErr[item]; err != nil {
		return nil, err
	}
	it, ok := f.items[item]
	if !ok {
		return nil, ErrNotFound
	}
	attrs := make(map[string]string, len(it.attrs))
	for k, v := range it.attrs {
		attrs[k] = v
	}
	return attrs, nil
}

func (f *fakeSecretService) Secret(item string) ([]byte, error) {
	if err := f.secretErr[item]; err != nil {
		return nil, err
	}
	it, ok := f.items[item]
	if !ok {
		return nil, ErrNotFound
	}
	return f.give(it.value), nil
}

// Create replaces an item with identical attributes, like CreateItem with
// replace set.
func (f *fakeSecretService) Create(label string, attrs map[string]string, value []byte) error {
	for _, p := range f.paths {
		it := f.items[p]
		if len(it.attrs) == len(attrs) && Record(it.attrs).Matches(Criteria(attrs)) {
			it.label = label
			it.value = bytes.Clone(value)
			return nil
		}
	}
	f.add(label, attrs, string(value))
	return nil
}

func (f *fakeSecretService) add(label string, attrs map[string]string, value string) string {
	f.next++
	p := fmt.Sprintf("/org/freedesktop/secrets/collection/login/%d", f.next)
	f.paths = append(f.paths, p)
	f.items[p] = &fakeSSItem{label: label, attrs: attrs, value: []byte(value)}
	return p
}

func (f *fakeSecretService) Delete(item string) error {
	if _, ok := f.items[item]; !ok {
		return ErrNotFound
	}
	delete(f.items, item)
	for i, p := range f.paths {
		if p == item {
			f.paths = append(f.paths[:i], f.paths[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeSecretService) Close() error {
	f.closed = true
	return nil
}

// fakeVault is an in-memory vaultAPI. Its "DPAPI" prefixes the plaintext
// with the key, so Unprotect fails for blobs it did not protect.
type fakeVault struct {
	handedOut
	targets []string
	creds   map[string]vaultCredential
}

func newFakeVault() *fakeVault {
	return &fakeVault{creds: map[string]vaultCredential{}}
}

var errFakeVaultNotFound = classify(ErrNotFound, &PlatformError{Backend: credentialVaultBackend, Op: "read", Code: 1168})

func (f *fakeVault) Read(target string) ([]byte, error) {
	c, ok := f.creds[target]
	if !ok {
		return nil, errFakeVaultNotFound
	}
	return f.give(c.Blob), nil
}

func (f *fakeVault) Write(target, user string, blob []byte) error {
	if _, ok := f.creds[target]; !ok {
		f.targets = append(f.targets, target)
	}
	f.creds[target] = vaultCredential{Target: target, User: user, Blob: bytes.Clone(blob)}
	return nil
}

func (f *fakeVault) Delete(target string) error {
	if _, ok := f.creds[target]; !ok {
		return errFakeVaultNotFound
	}
	delete(f.creds, target)
	for i, t := range f.targets {
		if t == target {
			f.targets = append(f.targets[:i], f.targets[i+1:]...)
			break
		}
	}
	return nil
}

// Enumerate supports exact filters and a trailing '*' wildcard.
func (f *fakeVault) Enumerate(filter string) ([]vaultCredential, error) {
	var out []vaultCredential
	for _, t := range f.targets {
		match := filter == "" || t == filter
		if prefix, ok := strings.CutSuffix(filter, "*"); ok && strings.HasPrefix(t, prefix) {
			match = true
		}
		if !match {
			continue
		}
		c := f.creds[t]
		c.Blob = f.give(c.Blob)
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, errFakeVaultNotFound
	}
	return out, nil
}

func (f *fakeVault) Protect(plain []byte, key string) ([]byte, error) {
	return f.give(append([]byte("dpapi("+key+")"), plain...)), nil
}

func (f *fakeVault) Unprotect(blob []byte, key string) ([]byte, error) {
	plain, ok := bytes.CutPrefix(blob, []byte("dpapi("+key+")"))
	if !ok {
		return nil, errors.New("the data is invalid")
	}
	return bytes.Clone(plain), nil
}

func (f *fakeVault) addRaw(target, user string, blob []byte) {
	f.targets = append(f.targets, target)
	f.creds[target] = vaultCredential{Target: target, User: user, Blob: blob}
}
