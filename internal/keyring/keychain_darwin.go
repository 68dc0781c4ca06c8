//go:build darwin

package keyring

/*
#cgo CFLAGS: -Wno-deprecated-declarations
#cgo LDFLAGS: -framework Security -framework CoreFoundation
#include <Security/Security.h>
*/
import "C"

import (
	"errors"

	gokeychain "github.com/keybase/go-keychain"
)

func newPlatformStore(service, username string) (Store, error) {
	return newKeychainStore(service, username, systemKeychain{}), nil
}

// systemKeychain reaches the user's default keychain through
// Security.framework.
//
// Buffer ownership: go-keychain builds the query CFDictionary (including a
// CFData copy of any data we pass in) and releases it after the call. On
// the way back it copies CFData item contents into Go slices before
// releasing the CF objects. Every []byte returned here is therefore
// Go-owned and wiped by the adapter; the CF copies belong to
// Security.framework.
type systemKeychain struct{}

// secAttrSecurityDomain is the string value of kSecAttrSecurityDomain,
// which go-keychain has no setter for.
const secAttrSecurityDomain = "sdmn"

// Unlock unlocks the default keychain. A locked keychain makes the system
// show its own unlock prompt; the call blocks until the user answers.
func (systemKeychain) Unlock() error {
	status := C.SecKeychainUnlock(nil, 0, nil, C.Boolean(0))
	if status != 0 {
		return keychainError("unlock", gokeychain.Error(status))
	}
	return nil
}

func (systemKeychain) Find(q keychainQuery) ([]byte, error) {
	item := queryItem(q)
	item.SetMatchLimit(gokeychain.MatchLimitOne)
	item.SetReturnData(true)

	results, err := gokeychain.QueryItem(item)
	if err != nil {
		return nil, keychainError("find", err)
	}
	if len(results) == 0 {
		return nil, keychainError("find", gokeychain.ErrorItemNotFound)
	}
	return results[0].Data, nil
}

// SetGeneric adds the item, or updates its data when it already exists.
func (systemKeychain) SetGeneric(service, account, label string, data []byte) error {
	item := gokeychain.NewGenericPassword(service, account, label, data, "")
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	err := gokeychain.AddItem(item)
	if errors.Is(err, gokeychain.ErrorDuplicateItem) {
		query := queryItem(keychainQuery{Kind: kindGeneric, Service: service, Account: account})
		update := gokeychain.NewItem()
		update.SetData(data)
		err = gokeychain.UpdateItem(query, update)
	}
	if err != nil {
		return keychainError("set", err)
	}
	return nil
}

func (systemKeychain) DeleteGeneric(service, account string) error {
	if err := gokeychain.DeleteGenericPasswordItem(service, account); err != nil {
		return keychainError("delete", err)
	}
	return nil
}

func (systemKeychain) Attributes(kind string) ([]map[string]any, error) {
	class, code := gokeychain.SecClassGenericPassword, "genp"
	if kind == kindInternet {
		class, code = gokeychain.SecClassInternetPassword, "inet"
	}

	item := gokeychain.NewItem()
	item.SetSecClass(class)
	item.SetMatchLimit(gokeychain.MatchLimitAll)
	item.SetReturnAttributes(true)

	results, err := gokeychain.QueryItem(item)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, nil
		}
		return nil, keychainError("list", err)
	}

	raws := make([]map[string]any, 0, len(results))
	for _, r := range results {
		raw := map[string]any{
			"class": code,
			"acct":  r.Account,
			"labl":  r.Label,
		}
		if kind == kindInternet {
			raw["srvr"] = r.Server
			raw["ptcl"] = r.Protocol
			raw["atyp"] = r.AuthenticationType
			raw["port"] = r.Port
			raw["path"] = r.Path
		} else {
			raw["svce"] = r.Service
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func queryItem(q keychainQuery) gokeychain.Item {
	item := gokeychain.NewItem()
	if q.Account != "" {
		item.SetAccount(q.Account)
	}
	if q.Kind == kindInternet {
		item.SetSecClass(gokeychain.SecClassInternetPassword)
		item.SetServer(q.Server)
		item.SetProtocol(q.Protocol)
		item.SetAuthenticationType(q.AuthType)
		item.SetPath(q.Path)
		if q.Port > 0 {
			item.SetPort(q.Port)
		}
		item.SetString(secAttrSecurityDomain, q.SecurityDomain)
		return item
	}
	item.SetSecClass(gokeychain.SecClassGenericPassword)
	item.SetService(q.Service)
	return item
}

// keychainError maps a Security.framework status onto the error kinds.
func keychainError(op string, err error) error {
	pe := &PlatformError{Backend: keychainBackend, Op: op, Err: err}
	var status gokeychain.Error
	if errors.As(err, &status) {
		pe.Code = int64(status)
	}
	switch {
	case errors.Is(err, gokeychain.ErrorItemNotFound):
		return classify(ErrNotFound, pe)
	case op == "unlock",
		errors.Is(err, gokeychain.ErrorInteractionNotAllowed),
		errors.Is(err, gokeychain.ErrorAuthFailed):
		return classify(ErrLockedStore, pe)
	}
	return pe
}
