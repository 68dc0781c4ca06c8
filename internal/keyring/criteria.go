package keyring

import (
	"fmt"
	"strings"
)

// Criteria maps attribute names to the values a peek must match.
type Criteria map[string]string

// ParseCriteria parses "key=value,key=value". The empty string yields an
// empty Criteria. When a key repeats, the last value wins.
//
// There is no escaping: values cannot contain ',' or '='. Such input is
// rejected rather than guessed at.
func ParseCriteria(s string) (Criteria, error) {
	c := Criteria{}
	if s == "" {
		return c, nil
	}
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not key=value", ErrInvalidCriteria, pair)
		}
		if key == "" {
			return nil, fmt.Errorf("%w: empty key in %q", ErrInvalidCriteria, pair)
		}
		if strings.Contains(value, "=") {
			return nil, fmt.Errorf("%w: value in %q contains '='", ErrInvalidCriteria, pair)
		}
		c[key] = value
	}
	return c, nil
}

// Has reports whether every key is present.
func (c Criteria) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := c[k]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the keys that are not present, in argument order.
func (c Criteria) Missing(keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := c[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}
