package attr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcherTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		attr  string
		want  bool
	}{
		{"catch-all", "*", "unix:mode", true},
		{"namespace wildcard", "unix:*", "unix:mode", true},
		{"namespace wildcard other ns", "unix:*", "time:modified", false},
		{"exact", "standard:name", "standard:name", true},
		{"exact other name", "standard:name", "standard:size", false},
		{"case sensitive", "Standard:name", "standard:name", false},
		{"list", "standard:name, unix:mode", "unix:mode", true},
		{"empty query", "", "standard:name", false},
		{"bare namespace ignored", "unix", "unix:mode", false},
		{"name with colon", "xattr:a:b", "xattr:a:b", true},
		{"missing namespace", "*", "mode", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewMatcher(tt.query).Matches(tt.attr))
		})
	}
}

func TestMatcherNil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Matches("standard:name"))
	assert.False(t, m.EnumerateNamespace("xattr"))
	assert.Nil(t, m.Literals("xattr"))
	assert.True(t, m.IsEmpty())
	assert.Equal(t, "", m.String())
}

func TestMatcherEnumerateNamespace(t *testing.T) {
	m := NewMatcher("xattr:user.a,xattr_sys:*")
	assert.False(t, m.EnumerateNamespace("xattr"))
	assert.True(t, m.EnumerateNamespace("xattr_sys"))
	assert.True(t, m.MatchesNamespace("xattr"))
	assert.False(t, m.MatchesNamespace("unix"))

	assert.True(t, NewMatcher("*").EnumerateNamespace("anything"))
}

func TestMatcherLiteralsAgreeWithMatches(t *testing.T) {
	queries := []string{
		"xattr:one,xattr:two,xattr:one",
		"*,xattr:three",
		"xattr:*,xattr:four",
		"unix:mode,xattr:five",
	}

	for _, q := range queries {
		m := NewMatcher(q)
		for _, name := range m.Literals(NamespaceXattr) {
			assert.True(t, m.MatchesName(NamespaceXattr, name), "query %q literal %q", q, name)
		}
	}

	assert.Equal(t, []string{"one", "two"}, NewMatcher(queries[0]).Literals(NamespaceXattr))
}

func TestSplitName(t *testing.T) {
	ns, name := SplitName("xattr:user.a:b")
	assert.Equal(t, "xattr", ns)
	assert.Equal(t, "user.a:b", name)

	ns, name = SplitName("plain")
	assert.Equal(t, "", ns)
	assert.Equal(t, "plain", name)

	assert.Equal(t, "unix:mode", JoinName("unix", "mode"))
}
