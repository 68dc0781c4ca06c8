//go:build linux || freebsd || openbsd || netbsd || dragonfly

package keyring

import (
	"errors"
	"fmt"

	dbus "github.com/godbus/dbus/v5"
	ss "github.com/zalando/go-keyring/secret_service"
)

const (
	secretsDest           = "org.freedesktop.secrets"
	defaultCollectionPath = dbus.ObjectPath("/org/freedesktop/secrets/aliases/default")
	collectionInterface   = "org.freedesktop.Secret.Collection"
	itemInterface         = "org.freedesktop.Secret.Item"
)

func newPlatformStore(service, username string) (Store, error) {
	native, err := dialSecretService()
	if err != nil {
		return nil, err
	}
	return newSecretServiceStore(service, username, native), nil
}

// dbusSecretService talks to org.freedesktop.secrets on the session bus.
//
// Buffer ownership: godbus decodes replies into freshly allocated Go
// values, so GetSecret's Value slice is ours and is handed to the adapter
// as-is. On Create the value is marshalled into the outgoing message buffer
// owned by godbus, which we cannot wipe. Secrets travel over a "plain"
// session, as go-keyring negotiates it; the bus is local to the user
// session.
type dbusSecretService struct {
	svc        *ss.SecretService
	collection dbus.BusObject
	session    dbus.BusObject
}

func dialSecretService() (*dbusSecretService, error) {
	svc, err := ss.NewSecretService()
	if err != nil {
		return nil, secretServiceError("connect", err)
	}
	return &dbusSecretService{
		svc:        svc,
		collection: svc.Object(secretsDest, defaultCollectionPath),
	}, nil
}

func (d *dbusSecretService) openSession() (dbus.BusObject, error) {
	if d.session != nil {
		return d.session, nil
	}
	session, err := d.svc.OpenSession()
	if err != nil {
		return nil, secretServiceError("open session", err)
	}
	d.session = session
	return session, nil
}

func (d *dbusSecretService) Locked() (bool, error) {
	v, err := d.collection.GetProperty(collectionInterface + ".Locked")
	if err != nil {
		return false, secretServiceError("locked", err)
	}
	locked, ok := v.Value().(bool)
	if !ok {
		return false, secretServiceError("locked", fmt.Errorf("unexpected Locked value %s", v))
	}
	return locked, nil
}

func (d *dbusSecretService) Unlock() error {
	if err := d.svc.Unlock(d.collection.Path()); err != nil {
		return classify(ErrLockedStore, &PlatformError{Backend: secretServiceBackend, Op: "unlock", Err: err})
	}
	return nil
}

func (d *dbusSecretService) Search(attrs map[string]string) ([]string, error) {
	paths, err := d.svc.SearchItems(d.collection, attrs)
	if err != nil {
		return nil, secretServiceError("search", err)
	}
	return pathStrings(paths), nil
}

func (d *dbusSecretService) Items() ([]string, error) {
	v, err := d.collection.GetProperty(collectionInterface + ".Items")
	if err != nil {
		return nil, secretServiceError("items", err)
	}
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, secretServiceError("items", fmt.Errorf("unexpected Items value %s", v))
	}
	return pathStrings(paths), nil
}

func (d *dbusSecretService) Attributes(item string) (map[string]string, error) {
	v, err := d.svc.Object(secretsDest, dbus.ObjectPath(item)).GetProperty(itemInterface + ".Attributes")
	if err != nil {
		return nil, secretServiceError("attributes", err)
	}
	attrs, ok := v.Value().(map[string]string)
	if !ok {
		return nil, secretServiceError("attributes", fmt.Errorf("unexpected Attributes value %s", v))
	}
	return attrs, nil
}

func (d *dbusSecretService) Secret(item string) ([]byte, error) {
	session, err := d.openSession()
	if err != nil {
		return nil, err
	}
	s, err := d.svc.GetSecret(dbus.ObjectPath(item), session.Path())
	if err != nil {
		return nil, secretServiceError("get secret", err)
	}
	return s.Value, nil
}

// Create stores value under attrs, replacing an item with the same
// attributes.
func (d *dbusSecretService) Create(label string, attrs map[string]string, value []byte) error {
	session, err := d.openSession()
	if err != nil {
		return err
	}
	s := ss.Secret{
		Session:     session.Path(),
		Parameters:  []byte{},
		Value:       value,
		ContentType: "text/plain",
	}
	if err := d.svc.CreateItem(d.collection, label, attrs, s); err != nil {
		return secretServiceError("create", err)
	}
	return nil
}

func (d *dbusSecretService) Delete(item string) error {
	if err := d.svc.Delete(dbus.ObjectPath(item)); err != nil {
		return secretServiceError("delete", err)
	}
	return nil
}

func (d *dbusSecretService) Close() error {
	if d.session == nil {
		return nil
	}
	err := d.svc.Close(d.session)
	d.session = nil
	if err != nil {
		return secretServiceError("close session", err)
	}
	return nil
}

func pathStrings(paths []dbus.ObjectPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(p)
	}
	return out
}

// secretServiceError maps D-Bus error names onto the error kinds.
func secretServiceError(op string, err error) error {
	pe := &PlatformError{Backend: secretServiceBackend, Op: op, Err: err}
	switch dbusErrorName(err) {
	case "org.freedesktop.Secret.Error.IsLocked":
		return classify(ErrLockedStore, pe)
	case "org.freedesktop.Secret.Error.NoSuchObject":
		return classify(ErrNotFound, pe)
	}
	return pe
}

func dbusErrorName(err error) string {
	var byValue dbus.Error
	if errors.As(err, &byValue) {
		return byValue.Name
	}
	var byRef *dbus.Error
	if errors.As(err, &byRef) {
		return byRef.Name
	}
	return ""
}
