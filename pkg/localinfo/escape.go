package localinfo

import "strings"

const hexDigits = "0123456789abcdef"

func validChar(c byte) bool {
	return c >= 32 && c <= 126 && c != '\\'
}

// EscapeString makes an extended-attribute name or value printable: bytes
// outside 32..126 and the backslash itself become \xHH. UnescapeString is
// its exact inverse.
func EscapeString(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !validChar(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 3*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if validChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteString(`\x`)
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0xf])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// UnescapeString decodes \xHH sequences. Anything that is not a complete
// escape is copied through literally.
func UnescapeString(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			hi, ok1 := unhex(s[i+2])
			lo, ok2 := unhex(s[i+3])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
