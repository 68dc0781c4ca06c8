package keyring

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/benaskins/lox/internal/secret"
)

const memoryBackend = "memory"

type memoryKey struct {
	service string
	id      string
}

// MemoryStore is an in-memory implementation of Store for testing. Stores
// derived with WithService share the same secrets.
type MemoryStore struct {
	mu      *sync.RWMutex
	secrets map[memoryKey][]byte
	service string
}

// NewMemoryStore creates a new in-memory secret store scoped to service.
func NewMemoryStore(service string) *MemoryStore {
	return &MemoryStore{
		mu:      &sync.RWMutex{},
		secrets: make(map[memoryKey][]byte),
		service: service,
	}
}

// WithService returns a store over the same secrets scoped to service.
func (s *MemoryStore) WithService(service string) *MemoryStore {
	return &MemoryStore{mu: s.mu, secrets: s.secrets, service: service}
}

func (s *MemoryStore) Get(id string) (*secret.Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.secrets[memoryKey{s.service, id}]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return secret.NewHandle(bytes.Clone(val)), nil
}

func (s *MemoryStore) Set(id string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{s.service, id}
	if old, ok := s.secrets[key]; ok {
		secret.Wipe(old)
	}
	s.secrets[key] = bytes.Clone(value)
	return nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{s.service, id}
	val, ok := s.secrets[key]
	if !ok {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	secret.Wipe(val)
	delete(s.secrets, key)
	return nil
}

func (s *MemoryStore) Peek(criteria string) ([]Match, error) {
	c, err := ParseCriteria(criteria)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Match
	for _, k := range s.sortedKeys() {
		r := memoryRecord(k)
		if r.Matches(c) {
			out = append(out, Match{Label: r.String(), Secret: secret.NewHandle(bytes.Clone(s.secrets[k]))})
		}
	}
	return out, nil
}

func (s *MemoryStore) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.sortedKeys()
	records := make([]Record, 0, len(keys))
	for _, k := range keys {
		records = append(records, memoryRecord(k))
	}
	return records, nil
}

func (s *MemoryStore) Backend() string { return memoryBackend }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) sortedKeys() []memoryKey {
	keys := make([]memoryKey, 0, len(s.secrets))
	for k := range s.secrets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].service != keys[j].service {
			return keys[i].service < keys[j].service
		}
		return keys[i].id < keys[j].id
	})
	return keys
}

func memoryRecord(k memoryKey) Record {
	return Record{"kind": memoryBackend, "service": k.service, "account": k.id}
}
