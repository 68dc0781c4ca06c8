package keyring

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/benaskins/lox/internal/secret"
)

const keychainBackend = "keychain"

// Keychain item kinds, as used in the "kind" attribute.
const (
	kindGeneric  = "generic"
	kindInternet = "internet"
)

var (
	genericKeys  = []string{"account", "service"}
	internetKeys = []string{"server", "account", "protocol", "authentication_type"}
)

// keychainQuery addresses Keychain items. Empty fields are not part of the
// match; Protocol and AuthType hold native four-char codes.
type keychainQuery struct {
	Kind           string
	Service        string
	Account        string
	Server         string
	Protocol       string
	AuthType       string
	SecurityDomain string
	Path           string
	Port           int32
}

// keychainAPI is the native Keychain boundary.
//
// Find returns a Go-allocated copy of the item data; the adapter owns it and
// moves it into a secret.Handle, which wipes it. SetGeneric does not retain
// data. Attributes returns raw attribute dictionaries keyed by native codes
// ("class", "svce", "acct", "srvr", "ptcl", "atyp", "port", "path", "sdmn",
// "labl").
type keychainAPI interface {
	Unlock() error
	Find(q keychainQuery) ([]byte, error)
	SetGeneric(service, account, label string, data []byte) error
	DeleteGeneric(service, account string) error
	Attributes(kind string) ([]map[string]any, error)
}

// KeychainStore implements Store over macOS Keychain generic and internet
// password items.
type KeychainStore struct {
	service  string
	username string
	native   keychainAPI
	logger   *slog.Logger
}

func newKeychainStore(service, username string, native keychainAPI) *KeychainStore {
	return &KeychainStore{
		service:  service,
		username: username,
		native:   native,
		logger:   slog.With("component", "keyring", "backend", keychainBackend),
	}
}

// targetName is the account attribute of items written by lox.
func (s *KeychainStore) targetName(id string) string {
	return s.username + ":" + id
}

func (s *KeychainStore) generic(id string) keychainQuery {
	return keychainQuery{Kind: kindGeneric, Service: s.service, Account: s.targetName(id)}
}

func (s *KeychainStore) Get(id string) (*secret.Handle, error) {
	if err := s.native.Unlock(); err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	data, err := s.native.Find(s.generic(id))
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	return secret.NewHandle(data), nil
}

func (s *KeychainStore) Set(id string, value []byte) error {
	if err := s.native.Unlock(); err != nil {
		return fmt.Errorf("set %q: %w", id, err)
	}
	if err := s.native.SetGeneric(s.service, s.targetName(id), "lox: "+id, value); err != nil {
		return fmt.Errorf("set %q: %w", id, err)
	}
	s.logger.Debug("secret stored", "service", s.service, "id", id)
	return nil
}

func (s *KeychainStore) Delete(id string) error {
	if err := s.native.Unlock(); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	if err := s.native.DeleteGeneric(s.service, s.targetName(id)); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	s.logger.Debug("secret deleted", "service", s.service, "id", id)
	return nil
}

// Peek looks up a generic or internet password by attribute criteria. With
// empty criteria it returns every password the keychain lets us read.
func (s *KeychainStore) Peek(criteria string) ([]Match, error) {
	if criteria == "" {
		return s.peekAll()
	}
	c, err := ParseCriteria(criteria)
	if err != nil {
		return nil, err
	}
	q, err := classifyKeychainQuery(c)
	if err != nil {
		return nil, err
	}
	data, err := s.native.Find(q)
	if err != nil {
		return nil, fmt.Errorf("peek %q: %w", criteria, err)
	}
	return []Match{{Label: q.record().String(), Secret: secret.NewHandle(data)}}, nil
}

func (s *KeychainStore) peekAll() ([]Match, error) {
	if err := s.native.Unlock(); err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}
	entries, err := s.enumerate()
	if err != nil {
		return nil, err
	}

	var out []Match
	for _, e := range entries {
		if e.query.Kind == "" {
			continue
		}
		data, err := s.native.Find(e.query)
		if err != nil {
			s.logger.Warn("peek stopped early", "record", e.record.String(), "collected", len(out), "error", err)
			return partial(out, fmt.Errorf("peek %s: %w", e.record, err))
		}
		out = append(out, Match{Label: e.record.String(), Secret: secret.NewHandle(data)})
	}
	return out, nil
}

func (s *KeychainStore) List() ([]Record, error) {
	entries, err := s.enumerate()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.record)
	}
	return records, nil
}

type keychainEntry struct {
	record Record
	query  keychainQuery
}

// enumerate lists generic then internet items.
func (s *KeychainStore) enumerate() ([]keychainEntry, error) {
	var out []keychainEntry
	for _, kind := range []string{kindGeneric, kindInternet} {
		raws, err := s.native.Attributes(kind)
		if err != nil {
			s.logger.Warn("list stopped early", "kind", kind, "collected", len(out), "error", err)
			return partial(out, fmt.Errorf("list %s items: %w", kind, err))
		}
		for _, raw := range raws {
			out = append(out, decodeKeychainAttributes(raw))
		}
	}
	return out, nil
}

func (s *KeychainStore) Backend() string { return keychainBackend }

func (s *KeychainStore) Close() error { return nil }

// classifyKeychainQuery decides which kind of item the criteria describe.
func classifyKeychainQuery(c Criteria) (keychainQuery, error) {
	if kind, ok := c["kind"]; ok {
		switch kind {
		case kindGeneric:
			if missing := c.Missing(genericKeys...); len(missing) > 0 {
				return keychainQuery{}, fmt.Errorf("%w: generic secrets need %s", ErrInvalidCriteria, strings.Join(missing, ", "))
			}
			return genericQuery(c), nil
		case kindInternet:
			if missing := c.Missing(internetKeys...); len(missing) > 0 {
				return keychainQuery{}, fmt.Errorf("%w: internet secrets need %s", ErrInvalidCriteria, strings.Join(missing, ", "))
			}
			return internetQuery(c)
		default:
			return keychainQuery{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidCriteria, kind)
		}
	}

	// All four internet keys present means the caller meant an internet
	// password, so a bad token is reported instead of falling through.
	if c.Has(internetKeys...) {
		return internetQuery(c)
	}
	if c.Has(genericKeys...) {
		return genericQuery(c), nil
	}
	return keychainQuery{}, fmt.Errorf("%w: supply account and service, or server, account, protocol and authentication_type", ErrAmbiguousMatch)
}

func genericQuery(c Criteria) keychainQuery {
	return keychainQuery{Kind: kindGeneric, Service: c["service"], Account: c["account"]}
}

func internetQuery(c Criteria) (keychainQuery, error) {
	protocol, err := lookupAlias(protocolByAlias, "protocol", c["protocol"])
	if err != nil {
		return keychainQuery{}, err
	}
	auth, err := lookupAlias(authByAlias, "authentication_type", c["authentication_type"])
	if err != nil {
		return keychainQuery{}, err
	}
	return keychainQuery{
		Kind:           kindInternet,
		Server:         c["server"],
		Account:        c["account"],
		Protocol:       protocol,
		AuthType:       auth,
		SecurityDomain: c["security_domain"],
		Path:           c["path"],
		Port:           parsePort(c["port"]),
	}, nil
}

// record renders a query the way List renders the item it addresses.
func (q keychainQuery) record() Record {
	r := Record{"kind": q.Kind}
	put := func(k, v string) {
		if v != "" {
			r[k] = v
		}
	}
	put("account", q.Account)
	switch q.Kind {
	case kindInternet:
		put("server", q.Server)
		put("protocol", displayName(protocolDisplay, q.Protocol))
		put("authentication_type", displayName(authDisplay, q.AuthType))
		put("security_domain", q.SecurityDomain)
		put("path", q.Path)
		if q.Port > 0 {
			r["port"] = strconv.Itoa(int(q.Port))
		}
	default:
		put("service", q.Service)
	}
	return r
}

// decodeKeychainAttributes turns a raw attribute dictionary into a Record
// and a query that finds the same item again.
func decodeKeychainAttributes(raw map[string]any) keychainEntry {
	r := Record{}
	var q keychainQuery
	for code, v := range raw {
		switch code {
		case "class":
			switch attrString(v) {
			case "genp":
				q.Kind = kindGeneric
			case "inet":
				q.Kind = kindInternet
			}
			r["kind"] = q.Kind
		case "port":
			n := decodeNumber(v)
			r["port"] = strconv.FormatInt(n, 10)
			if n > 0 && n <= math.MaxUint16 {
				q.Port = int32(n)
			}
		default:
			s := attrString(v)
			if s == "" {
				continue
			}
			switch code {
			case "svce":
				r["service"], q.Service = s, s
			case "acct":
				r["account"], q.Account = s, s
			case "srvr":
				r["server"], q.Server = s, s
			case "ptcl":
				r["protocol"], q.Protocol = displayName(protocolDisplay, s), s
			case "atyp":
				r["authentication_type"], q.AuthType = displayName(authDisplay, s), s
			case "sdmn":
				r["security_domain"], q.SecurityDomain = s, s
			case "path":
				r["path"], q.Path = s, s
			case "labl":
				r["label"] = s
			}
		}
	}
	return keychainEntry{record: r, query: q}
}

func attrString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// decodeNumber reads a numeric attribute as an integer, truncating floats,
// and falls back to 0 when neither works.
func decodeNumber(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0
		}
		return int64(n)
	case float32:
		return truncate(float64(n))
	case float64:
		return truncate(n)
	case string:
		return parseNumber(n)
	case []byte:
		return parseNumber(string(n))
	}
	return 0
}

func parseNumber(s string) int64 {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return truncate(f)
	}
	return 0
}

func truncate(f float64) int64 {
	if math.IsNaN(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// parsePort accepts 1..65535; anything else means "any port".
func parsePort(s string) int32 {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil || p == 0 {
		return 0
	}
	return int32(p)
}

// fourCC maps a native protocol or authentication code to the tokens users
// may type for it. The last alias is used for display.
type fourCC struct {
	code    string
	aliases []string
}

var keychainProtocols = []fourCC{
	{"ftp ", []string{"ftp"}},
	{"ftpa", []string{"ftpa", "ftpaccount"}},
	{"http", []string{"http"}},
	{"irc ", []string{"irc"}},
	{"nntp", []string{"nntp"}},
	{"pop3", []string{"pop3"}},
	{"smtp", []string{"smtp"}},
	{"sox ", []string{"sox", "socks"}},
	{"imap", []string{"imap"}},
	{"ldap", []string{"ldap"}},
	{"atlk", []string{"atlk", "appletalk"}},
	{"afp ", []string{"afp"}},
	{"teln", []string{"teln", "telnet"}},
	{"ssh ", []string{"ssh"}},
	{"ftps", []string{"ftps"}},
	{"htps", []string{"htps", "https"}},
	{"htpx", []string{"htpx", "httpproxy"}},
	{"htsx", []string{"htsx", "httpsproxy"}},
	{"ftpx", []string{"ftpx", "ftpproxy"}},
	{"cifs", []string{"cifs"}},
	{"smb ", []string{"smb"}},
	{"rtsp", []string{"rtsp"}},
	{"rtsx", []string{"rtsx", "rtspproxy"}},
	{"daap", []string{"daap"}},
	{"eppc", []string{"eppc"}},
	{"ipp ", []string{"ipp"}},
	{"ntps", []string{"ntps", "nntps"}},
	{"ldps", []string{"ldps", "ldaps"}},
	{"tels", []string{"tels", "telnets"}},
	{"imps", []string{"imps", "imaps"}},
	{"ircs", []string{"ircs"}},
	{"pops", []string{"pops", "pop3s"}},
	{"cvsp", []string{"cvsp", "cvspserver"}},
	{"svn ", []string{"svn"}},
}

var keychainAuthTypes = []fourCC{
	{"ntlm", []string{"ntlm"}},
	{"msna", []string{"msna", "msn"}},
	{"dpaa", []string{"dpaa", "dpa"}},
	{"rpaa", []string{"rpaa", "rpa"}},
	{"http", []string{"http", "httpbasic"}},
	{"httd", []string{"httd", "httpdigest"}},
	{"form", []string{"form", "htmlform"}},
	{"dflt", []string{"dflt", "default"}},
}

var (
	protocolByAlias, protocolDisplay = aliasTables(keychainProtocols)
	authByAlias, authDisplay         = aliasTables(keychainAuthTypes)
)

func aliasTables(codes []fourCC) (byAlias, display map[string]string) {
	byAlias = make(map[string]string)
	display = make(map[string]string, len(codes))
	for _, c := range codes {
		for _, a := range c.aliases {
			byAlias[a] = c.code
		}
		display[c.code] = c.aliases[len(c.aliases)-1]
	}
	return byAlias, display
}

// lookupAlias resolves a user token to a native code. The empty token means
// "any" and resolves to the empty code.
func lookupAlias(table map[string]string, what, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	code, ok := table[strings.ToLower(token)]
	if !ok {
		return "", fmt.Errorf("%w: unknown %s %q", ErrInvalidCriteria, what, token)
	}
	return code, nil
}

// displayName renders a native code by its display alias, keeping unmapped
// codes verbatim.
func displayName(display map[string]string, code string) string {
	if code == "" {
		return ""
	}
	if name, ok := display[code]; ok {
		return name
	}
	return code
}
