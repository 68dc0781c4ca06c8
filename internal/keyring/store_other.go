//go:build !darwin && !windows && !linux && !freebsd && !openbsd && !netbsd && !dragonfly

package keyring

func newPlatformStore(service, username string) (Store, error) {
	return nil, ErrUnsupportedPlatform
}
