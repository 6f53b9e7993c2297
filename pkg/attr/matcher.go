package attr

import "strings"

type term struct {
	all  bool
	ns   string
	name string // empty for "ns:*"
}

// Matcher is a compiled attribute query such as "standard:*,unix:mode".
//
// A query is a comma-separated list of terms. Each term is "*" (everything),
// "ns:*" (every attribute in namespace ns) or "ns:name" (one attribute).
// Matching is case-sensitive and looks only at names, never at values.
// Malformed terms (no colon, empty namespace or name) are ignored.
//
// A nil *Matcher matches nothing.
type Matcher struct {
	terms []term
	query string
}

// NewMatcher compiles a query string.
func NewMatcher(query string) *Matcher {
	m := &Matcher{query: query}

	for _, raw := range strings.Split(query, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if raw == "*" {
			m.terms = append(m.terms, term{all: true})
			continue
		}

		ns, name, ok := strings.Cut(raw, ":")
		if !ok || ns == "" || name == "" {
			continue
		}
		if name == "*" {
			name = ""
		}
		m.terms = append(m.terms, term{ns: ns, name: name})
	}

	return m
}

// MatchAll returns a matcher equivalent to "*".
func MatchAll() *Matcher {
	return NewMatcher("*")
}

// String returns the query the matcher was compiled from.
func (m *Matcher) String() string {
	if m == nil {
		return ""
	}
	return m.query
}

// Matches reports whether the fully-qualified attribute name is requested.
func (m *Matcher) Matches(attribute string) bool {
	ns, name := SplitName(attribute)
	return m.MatchesName(ns, name)
}

// MatchesName reports whether ns:name is requested. The first satisfying term
// wins.
func (m *Matcher) MatchesName(ns, name string) bool {
	if m == nil || ns == "" || name == "" {
		return false
	}
	for _, t := range m.terms {
		if t.all {
			return true
		}
		if t.ns != ns {
			continue
		}
		if t.name == "" || t.name == name {
			return true
		}
	}
	return false
}

// MatchesNamespace reports whether any attribute in ns could match, either
// through a wildcard or at least one literal term.
func (m *Matcher) MatchesNamespace(ns string) bool {
	if m == nil {
		return false
	}
	for _, t := range m.terms {
		if t.all || t.ns == ns {
			return true
		}
	}
	return false
}

// EnumerateNamespace reports whether an exhaustive listing of ns is wanted
// ("*" or "ns:*"). When false, callers should query only the names returned
// by Literals.
func (m *Matcher) EnumerateNamespace(ns string) bool {
	if m == nil {
		return false
	}
	for _, t := range m.terms {
		if t.all || (t.ns == ns && t.name == "") {
			return true
		}
	}
	return false
}

// Literals returns the literally requested names in ns, in query order and
// without duplicates. Every returned name satisfies MatchesName(ns, name).
func (m *Matcher) Literals(ns string) []string {
	if m == nil {
		return nil
	}
	var names []string
	seen := make(map[string]struct{})
	for _, t := range m.terms {
		if t.all || t.ns != ns || t.name == "" {
			continue
		}
		if _, ok := seen[t.name]; ok {
			continue
		}
		seen[t.name] = struct{}{}
		names = append(names, t.name)
	}
	return names
}

// IsEmpty reports whether the matcher can never match.
func (m *Matcher) IsEmpty() bool {
	return m == nil || len(m.terms) == 0
}

// SplitName splits "ns:name" at the first colon. Names without a colon yield
// an empty namespace.
func SplitName(attribute string) (ns, name string) {
	ns, name, ok := strings.Cut(attribute, ":")
	if !ok {
		return "", attribute
	}
	return ns, name
}

// JoinName builds "ns:name".
func JoinName(ns, name string) string {
	return ns + ":" + name
}
