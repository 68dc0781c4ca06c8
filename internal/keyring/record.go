package keyring

import (
	"sort"
	"strings"
)

// Record is the platform-neutral metadata of one stored secret: generic
// attribute names ("kind", "service", "account", "server", "port", ...)
// mapped to display strings. It never holds secret bytes.
type Record map[string]string

// String renders the record as sorted "key=value" pairs joined by ','. The
// result parses back with ParseCriteria when no value contains ',' or '='.
func (r Record) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r[k])
	}
	return b.String()
}

// Matches reports whether every criteria key is present in r with an equal
// value. Empty criteria match every record.
func (r Record) Matches(c Criteria) bool {
	for k, want := range c {
		got, ok := r[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}
