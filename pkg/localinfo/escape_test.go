package localinfo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain.name", "plain.name"},
		{"a\\b", `a\x5cb`},
		{"nul\x00", `nul\x00`},
		{"tab\there", `tab\x09here`},
		{"\xff\x7f", `\xff\x7f`},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeString(tt.in))
	}
}

func TestUnescapeLiteralFallback(t *testing.T) {
	assert.Equal(t, `\xZZ`, UnescapeString(`\xZZ`))
	assert.Equal(t, `trailing\x4`, UnescapeString(`trailing\x4`))
	assert.Equal(t, "A", UnescapeString(`\x41`))
	assert.Equal(t, "\xab", UnescapeString(`\xAB`))
}

func TestEscapeRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	inputs := []string{
		string(all),
		`\x41 already looks escaped`,
		"\\\\\\",
		"user.comment\x00\x01\x02",
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		b := make([]byte, rng.Intn(64))
		for j := range b {
			b[j] = byte(rng.Intn(256))
		}
		inputs = append(inputs, string(b))
	}

	for _, in := range inputs {
		escaped := EscapeString(in)
		for i := 0; i < len(escaped); i++ {
			c := escaped[i]
			assert.True(t, c >= 32 && c <= 126, "escaped output contains byte %#x", c)
		}
		assert.Equal(t, in, UnescapeString(escaped))
	}
}
