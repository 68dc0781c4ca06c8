// Package secret holds plaintext secret bytes for the shortest span the
// caller needs them.
//
// A Handle keeps its bytes in a memguard LockedBuffer: mlocked, bounded by
// guard pages and wiped on Destroy. Owners call Destroy on every exit path;
// nothing relies on finalizers.
package secret

import (
	"io"

	"github.com/awnumar/memguard"
)

// Wipe zero-fills b in place.
func Wipe(b []byte) {
	memguard.WipeBytes(b)
}

// Handle is a zero-on-destroy secret buffer.
type Handle struct {
	buf *memguard.LockedBuffer
}

// NewHandle moves b into protected memory. b is wiped before NewHandle
// returns, so the handle holds the only live copy.
func NewHandle(b []byte) *Handle {
	if len(b) == 0 {
		return &Handle{}
	}
	return &Handle{buf: memguard.NewBufferFromBytes(b)}
}

// ReadHandle reads r to EOF directly into protected memory, so the secret
// never sits in an ordinary growable buffer.
func ReadHandle(r io.Reader) (*Handle, error) {
	buf, err := memguard.NewBufferFromEntireReader(r)
	if err != nil {
		if buf != nil {
			buf.Destroy()
		}
		return nil, err
	}
	return &Handle{buf: buf}, nil
}

// Bytes returns read access to the secret. The slice is only valid until
// Destroy and must not be retained.
func (h *Handle) Bytes() []byte {
	if h == nil || h.buf == nil || !h.buf.IsAlive() {
		return nil
	}
	return h.buf.Bytes()
}

// Len returns the secret length, or 0 once destroyed.
func (h *Handle) Len() int {
	return len(h.Bytes())
}

// Destroy wipes and releases the secret. Safe to call more than once and on
// a nil handle.
func (h *Handle) Destroy() {
	if h == nil || h.buf == nil {
		return
	}
	h.buf.Destroy()
}

// DestroyAll destroys every handle in hs.
func DestroyAll(hs ...*Handle) {
	for _, h := range hs {
		h.Destroy()
	}
}
