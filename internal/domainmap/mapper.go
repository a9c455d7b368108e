// Package domainmap resolves free-text email addresses to canonical accounts
// via an operator-maintained domain dictionary.
package domainmap

import (
	"strings"

	"go.uber.org/zap"
)

// Mapping associates an email domain with a canonical account.
type Mapping struct {
	Domain      string `json:"domain" yaml:"domain"`
	AccountID   string `json:"account_id" yaml:"account_id"`
	AccountName string `json:"account_name" yaml:"account_name"`
}

// Mapper performs case-insensitive exact-match domain lookups. No fuzzy
// matching, no TLD normalization. The configured internal domain is excluded
// from candidates before lookup.
type Mapper struct {
	byDomain       map[string]Mapping
	internalDomain string
}

// NewMapper builds a Mapper from mappings. Later duplicates of a domain win.
func NewMapper(mappings []Mapping, internalDomain string) *Mapper {
	byDomain := make(map[string]Mapping, len(mappings))
	for _, m := range mappings {
		d := strings.ToLower(strings.TrimSpace(m.Domain))
		if d == "" {
			continue
		}
		m.Domain = d
		byDomain[d] = m
	}
	return &Mapper{
		byDomain:       byDomain,
		internalDomain: strings.ToLower(strings.TrimSpace(internalDomain)),
	}
}

// Len returns the number of mapped domains.
func (m *Mapper) Len() int {
	return len(m.byDomain)
}

// Resolve tries each address field in the given priority order and returns
// the first mapped account. First-match-wins, not best-match: callers pass
// fields in From -> To -> Cc (or actual -> invited) order and the first
// candidate with a mapped domain decides.
func (m *Mapper) Resolve(fields ...string) (Mapping, bool) {
	for _, field := range fields {
		for _, domain := range ExtractDomains(field) {
			if domain == m.internalDomain {
				continue
			}
			if mapping, ok := m.byDomain[domain]; ok {
				return mapping, true
			}
		}
	}
	return Mapping{}, false
}

// ResolveAccountID is Resolve reduced to the account id, with a debug log on
// misses. A miss is a normal non-fatal condition; the field stays empty.
func (m *Mapper) ResolveAccountID(kind, key string, fields ...string) string {
	mapping, ok := m.Resolve(fields...)
	if !ok {
		zap.L().Debug("domainmap: no account match",
			zap.String("kind", kind),
			zap.String("key", key),
		)
		return ""
	}
	return mapping.AccountID
}

// ExtractDomain returns the first email domain found in a free-text address
// field, lower-cased, or "" if the field contains no address.
func ExtractDomain(field string) string {
	domains := ExtractDomains(field)
	if len(domains) == 0 {
		return ""
	}
	return domains[0]
}

// ExtractDomains returns every email domain found in a free-text address
// field, in order of appearance. The field may contain display names,
// angle-bracket addresses, and comma-separated lists, e.g.
// `"Jane Doe" <jane@x.com>, other@y.com`. An @ inside a double-quoted
// display name or escaped with a backslash does not start a domain.
func ExtractDomains(field string) []string {
	var domains []string

	inQuotes := false
	for i := 0; i < len(field); i++ {
		c := field[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == '\\':
			i++ // skip escaped character
		case c == '@' && !inQuotes:
			start := i + 1
			end := start
			for end < len(field) && !isDomainTerminator(field[end]) {
				end++
			}
			if end > start {
				domains = append(domains, strings.ToLower(field[start:end]))
			}
			i = end - 1
		}
	}

	return domains
}

// isDomainTerminator reports whether c ends a domain substring: whitespace,
// quotes, angle brackets, or list separators.
func isDomainTerminator(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '"', '\'', '<', '>', ',', ';':
		return true
	}
	return false
}
