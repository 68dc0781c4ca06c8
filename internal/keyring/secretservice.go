package keyring

import (
	"fmt"
	"log/slog"

	"github.com/benaskins/lox/internal/secret"
)

const secretServiceBackend = "secret-service"

// secretServiceAPI is the native Secret Service boundary, bound to the
// default collection. Items are referenced by D-Bus object path.
//
// Secret returns a Go-owned slice decoded from the D-Bus reply; the adapter
// moves it into a secret.Handle. Create does not retain value.
type secretServiceAPI interface {
	Locked() (bool, error)
	Unlock() error
	Search(attrs map[string]string) ([]string, error)
	Items() ([]string, error)
	Attributes(item string) (map[string]string, error)
	Secret(item string) ([]byte, error)
	Create(label string, attrs map[string]string, value []byte) error
	Delete(item string) error
	Close() error
}

// SecretServiceStore implements Store over the freedesktop Secret Service
// default collection (gnome-keyring, KWallet, KeePassXC, ...).
type SecretServiceStore struct {
	service  string
	username string
	native   secretServiceAPI
	logger   *slog.Logger
}

func newSecretServiceStore(service, username string, native secretServiceAPI) *SecretServiceStore {
	return &SecretServiceStore{
		service:  service,
		username: username,
		native:   native,
		logger:   slog.With("component", "keyring", "backend", secretServiceBackend),
	}
}

// identity is the exact-match attribute set of an item written by lox.
func (s *SecretServiceStore) identity(id string) map[string]string {
	return map[string]string{
		"application": ApplicationTag,
		"service":     s.service,
		"username":    s.username,
		"id":          id,
	}
}

// unlock unlocks the default collection when it is locked. Unlocking may
// show an interactive prompt and blocks until it is answered.
func (s *SecretServiceStore) unlock() error {
	locked, err := s.native.Locked()
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}
	s.logger.Debug("unlocking default collection")
	return s.native.Unlock()
}

func (s *SecretServiceStore) find(id string) (string, error) {
	items, err := s.native.Search(s.identity(id))
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", ErrNotFound
	}
	if len(items) > 1 {
		s.logger.Debug("several items match, using the first", "id", id, "count", len(items))
	}
	return items[0], nil
}

func (s *SecretServiceStore) Get(id string) (*secret.Handle, error) {
	if err := s.unlock(); err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	item, err := s.find(id)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	value, err := s.native.Secret(item)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	return secret.NewHandle(value), nil
}

func (s *SecretServiceStore) Set(id string, value []byte) error {
	if err := s.unlock(); err != nil {
		return fmt.Errorf("set %q: %w", id, err)
	}
	if err := s.native.Create("Secret for "+id, s.identity(id), value); err != nil {
		return fmt.Errorf("set %q: %w", id, err)
	}
	s.logger.Debug("secret stored", "service", s.service, "id", id)
	return nil
}

func (s *SecretServiceStore) Delete(id string) error {
	if err := s.unlock(); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	item, err := s.find(id)
	if err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	if err := s.native.Delete(item); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	s.logger.Debug("secret deleted", "service", s.service, "id", id)
	return nil
}

// Peek returns every item in the default collection whose attributes carry
// all criteria keys with equal values.
func (s *SecretServiceStore) Peek(criteria string) ([]Match, error) {
	c, err := ParseCriteria(criteria)
	if err != nil {
		return nil, err
	}
	if err := s.unlock(); err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}
	items, err := s.native.Items()
	if err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}

	var out []Match
	for _, item := range items {
		attrs, err := s.native.Attributes(item)
		if err != nil {
			s.logger.Warn("peek stopped early", "item", item, "collected", len(out), "error", err)
			return partial(out, fmt.Errorf("peek %s: %w", item, err))
		}
		r := Record(attrs)
		if !r.Matches(c) {
			continue
		}
		value, err := s.native.Secret(item)
		if err != nil {
			s.logger.Warn("peek stopped early", "item", item, "collected", len(out), "error", err)
			return partial(out, fmt.Errorf("peek %s: %w", item, err))
		}
		out = append(out, Match{Label: r.String(), Secret: secret.NewHandle(value)})
	}
	return out, nil
}

func (s *SecretServiceStore) List() ([]Record, error) {
	if err := s.unlock(); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	items, err := s.native.Items()
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	var out []Record
	for _, item := range items {
		attrs, err := s.native.Attributes(item)
		if err != nil {
			s.logger.Warn("list stopped early", "item", item, "collected", len(out), "error", err)
			return partial(out, fmt.Errorf("list %s: %w", item, err))
		}
		out = append(out, Record(attrs))
	}
	return out, nil
}

func (s *SecretServiceStore) Backend() string { return secretServiceBackend }

func (s *SecretServiceStore) Close() error { return s.native.Close() }
