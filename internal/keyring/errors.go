package keyring

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an identity lookup has no match.
	ErrNotFound = errors.New("secret not found")

	// ErrLockedStore is returned when the collection or keychain could not
	// be unlocked.
	ErrLockedStore = errors.New("secure store is locked")

	// ErrInvalidCriteria is returned for malformed criteria, missing
	// mandatory attributes, or unknown protocol/authentication tokens.
	ErrInvalidCriteria = errors.New("invalid search criteria")

	// ErrAmbiguousMatch is returned when peek cannot tell which kind of
	// secret to search for.
	ErrAmbiguousMatch = errors.New("cannot determine which secret kind to search")

	// ErrUnsupportedPlatform is returned by Open when no backend exists for
	// the running platform.
	ErrUnsupportedPlatform = errors.New("no secure store is available on this platform")
)

// PlatformError carries a native store failure verbatim.
type PlatformError struct {
	Backend string // "keychain", "secret-service", "credential-vault"
	Op      string
	Code    int64 // native status code, 0 when the store has none
	Err     error
}

func (e *PlatformError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Backend, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Code)
	}
	return msg
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// classify tags a platform error with one of the sentinel kinds so that
// errors.Is works on the kind while errors.As still reaches the native
// detail.
func classify(kind error, pe *PlatformError) error {
	if kind == nil {
		return pe
	}
	return fmt.Errorf("%w: %w", kind, pe)
}

// partial applies the peek/list partial-failure rule: a failure after at
// least one record was collected truncates the result instead of failing.
func partial[T any](out []T, err error) ([]T, error) {
	if len(out) > 0 {
		return out, nil
	}
	return nil, err
}
