package keyring

import (
	"log/slog"

	"github.com/benaskins/lox/internal/audit"
	"github.com/benaskins/lox/internal/secret"
)

// AuditedStore wraps a Store and records every operation in an audit log.
// Failed operations are recorded too, with their error text.
type AuditedStore struct {
	inner   Store
	service string
	audit   *audit.Logger
	actor   string // "cli" or "test"
}

// NewAuditedStore wraps an existing store with audit logging.
func NewAuditedStore(inner Store, service string, auditLog *audit.Logger, actor string) *AuditedStore {
	return &AuditedStore{
		inner:   inner,
		service: service,
		audit:   auditLog,
		actor:   actor,
	}
}

func (s *AuditedStore) Get(id string) (*secret.Handle, error) {
	h, err := s.inner.Get(id)
	s.log(audit.Entry{Action: audit.ActionSecretRead, ID: id}, err)
	return h, err
}

func (s *AuditedStore) Set(id string, value []byte) error {
	err := s.inner.Set(id, value)
	s.log(audit.Entry{Action: audit.ActionSecretWrite, ID: id}, err)
	return err
}

func (s *AuditedStore) Delete(id string) error {
	err := s.inner.Delete(id)
	s.log(audit.Entry{Action: audit.ActionSecretDelete, ID: id}, err)
	return err
}

func (s *AuditedStore) Peek(criteria string) ([]Match, error) {
	matches, err := s.inner.Peek(criteria)
	s.log(audit.Entry{Action: audit.ActionSecretPeek, Criteria: criteria, Count: len(matches)}, err)
	return matches, err
}

func (s *AuditedStore) List() ([]Record, error) {
	records, err := s.inner.List()
	s.log(audit.Entry{Action: audit.ActionSecretList, Count: len(records)}, err)
	return records, err
}

func (s *AuditedStore) Backend() string { return s.inner.Backend() }

func (s *AuditedStore) Close() error { return s.inner.Close() }

// log is best-effort: a failure to audit never fails the operation.
func (s *AuditedStore) log(e audit.Entry, opErr error) {
	e.Service = s.service
	e.Backend = s.inner.Backend()
	e.Actor = s.actor
	if opErr != nil {
		e.Error = opErr.Error()
	}
	if err := s.audit.Log(e); err != nil {
		slog.Warn("audit log write failed", "action", e.Action, "error", err)
	}
}
