//go:build windows

package keyring

import (
	"bytes"
	"errors"
	"syscall"
	"unsafe"

	"github.com/danieljoos/wincred"
	"golang.org/x/sys/windows"

	"github.com/benaskins/lox/internal/secret"
)

func newPlatformStore(service, username string) (Store, error) {
	return newCredentialVaultStore(service, username, windowsVault{}), nil
}

// windowsVault reaches the Credential Vault through wincred and DPAPI
// through x/sys/windows.
//
// Buffer ownership:
//   - CredReadW/CredEnumerateW allocate CREDENTIAL structs; wincred copies
//     TargetName, UserName and CredentialBlob into Go values and releases the
//     structs with CredFree. For lox entries the native blob is DPAPI
//     ciphertext. The Go copies are returned to the adapter, which wipes them.
//   - CredWriteW reads our CREDENTIAL and keeps nothing of ours.
//   - CryptProtectData and CryptUnprotectData LocalAlloc their output. We
//     copy it into Go memory and LocalFree it; the plaintext output of
//     CryptUnprotectData is zeroed before it is freed.
type windowsVault struct{}

func (windowsVault) Read(target string) ([]byte, error) {
	cred, err := wincred.GetGenericCredential(target)
	if err != nil {
		return nil, vaultError("read", err)
	}
	return cred.CredentialBlob, nil
}

func (windowsVault) Write(target, user string, blob []byte) error {
	cred := wincred.NewGenericCredential(target)
	cred.UserName = user
	cred.CredentialBlob = blob
	cred.Persist = wincred.PersistEnterprise
	if err := cred.Write(); err != nil {
		return vaultError("write", err)
	}
	return nil
}

func (windowsVault) Delete(target string) error {
	cred, err := wincred.GetGenericCredential(target)
	if err != nil {
		return vaultError("delete", err)
	}
	secret.Wipe(cred.CredentialBlob)
	if err := cred.Delete(); err != nil {
		return vaultError("delete", err)
	}
	return nil
}

func (windowsVault) Enumerate(filter string) ([]vaultCredential, error) {
	var (
		creds []*wincred.Credential
		err   error
	)
	if filter == "" {
		creds, err = wincred.List()
	} else {
		creds, err = wincred.FilteredList(filter)
	}
	if err != nil {
		return nil, vaultError("enumerate", err)
	}

	out := make([]vaultCredential, 0, len(creds))
	for _, c := range creds {
		out = append(out, vaultCredential{Target: c.TargetName, User: c.UserName, Blob: c.CredentialBlob})
	}
	return out, nil
}

func (windowsVault) Protect(plain []byte, key string) ([]byte, error) {
	name, err := windows.UTF16PtrFromString(key)
	if err != nil {
		return nil, vaultError("protect", err)
	}
	var out windows.DataBlob
	err = windows.CryptProtectData(dataBlob(plain), name, dataBlob(targetEntropy(key)), 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, vaultError("protect", err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))

	return bytes.Clone(unsafe.Slice(out.Data, out.Size)), nil
}

func (windowsVault) Unprotect(blob []byte, key string) ([]byte, error) {
	var out windows.DataBlob
	err := windows.CryptUnprotectData(dataBlob(blob), nil, dataBlob(targetEntropy(key)), 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, vaultError("unprotect", err)
	}

	native := unsafe.Slice(out.Data, out.Size)
	plain := make([]byte, len(native))
	copy(plain, native)
	secret.Wipe(native)
	windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	return plain, nil
}

func dataBlob(b []byte) *windows.DataBlob {
	if len(b) == 0 {
		return &windows.DataBlob{}
	}
	return &windows.DataBlob{Size: uint32(len(b)), Data: &b[0]}
}

// vaultError maps Win32 error codes onto the error kinds.
func vaultError(op string, err error) error {
	pe := &PlatformError{Backend: credentialVaultBackend, Op: op, Err: err}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		pe.Code = int64(errno)
	}
	switch {
	case errors.Is(err, wincred.ErrElementNotFound), errors.Is(err, windows.ERROR_NOT_FOUND):
		return classify(ErrNotFound, pe)
	case errors.Is(err, windows.ERROR_NO_SUCH_LOGON_SESSION):
		return classify(ErrLockedStore, pe)
	}
	return pe
}
