package keyring

import (
	"errors"
	"os"
	"os/user"
	"strconv"
	"strings"
)

// unknownUser is used when no lookup yields a name.
const unknownUser = "unknown"

var errNoUID = errors.New("uid not available on this platform")

// Username returns the OS principal running the process: the effective
// user, then the real user, then a generic lookup (user.Current and the
// USER/USERNAME/LOGNAME environment). Nothing is cached; each call asks the
// OS again.
func Username() string {
	return resolveUsername(
		lookupUID(os.Geteuid),
		lookupUID(os.Getuid),
		genericUsername,
	)
}

func resolveUsername(lookups ...func() (string, error)) string {
	for _, lookup := range lookups {
		name, err := lookup()
		if err != nil {
			continue
		}
		if name = stripDomain(name); name != "" {
			return name
		}
	}
	return unknownUser
}

func lookupUID(uid func() int) func() (string, error) {
	return func() (string, error) {
		id := uid()
		if id < 0 {
			return "", errNoUID
		}
		u, err := user.LookupId(strconv.Itoa(id))
		if err != nil {
			return "", err
		}
		return u.Username, nil
	}
}

func genericUsername() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", errors.New("no username in environment")
}

// stripDomain drops a Windows "DOMAIN\" prefix.
func stripDomain(name string) string {
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		return name[i+1:]
	}
	return name
}
