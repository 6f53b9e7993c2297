package vfs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MountSpec addresses a mount: a type tag plus an implementation-defined
// parameter set. Backends canonicalize the spec while mounting; the
// canonical String() form is the routing key.
type MountSpec struct {
	Type   string
	Params map[string]string
}

// NewMountSpec creates a spec with an empty parameter set.
func NewMountSpec(typ string) *MountSpec {
	return &MountSpec{Type: typ, Params: make(map[string]string)}
}

// Get returns a parameter value.
func (m *MountSpec) Get(key string) string {
	if m == nil || m.Params == nil {
		return ""
	}
	return m.Params[key]
}

// Set stores a parameter value.
func (m *MountSpec) Set(key, value string) {
	if m.Params == nil {
		m.Params = make(map[string]string)
	}
	m.Params[key] = value
}

// Clone returns a deep copy.
func (m *MountSpec) Clone() *MountSpec {
	c := NewMountSpec(m.Type)
	for k, v := range m.Params {
		c.Params[k] = v
	}
	return c
}

// String renders "type:key=value,key=value" with keys sorted, so two specs
// with the same content always produce the same routing key.
func (m *MountSpec) String() string {
	keys := make([]string, 0, len(m.Params))
	for k := range m.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(m.Type)
	for i, k := range keys {
		if i == 0 {
			b.WriteByte(':')
		} else {
			b.WriteByte(',')
		}
		b.WriteString(escapeSpec(k))
		b.WriteByte('=')
		b.WriteString(escapeSpec(m.Params[k]))
	}
	return b.String()
}

// ParseMountSpec parses the String() form.
func ParseMountSpec(s string) (*MountSpec, error) {
	typ, rest, _ := strings.Cut(s, ":")
	if typ == "" {
		return nil, NewError(ErrInvalidArgument, "mount spec %q has no type", s)
	}

	spec := NewMountSpec(typ)
	if rest == "" {
		return spec, nil
	}

	for _, pair := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, NewError(ErrInvalidArgument, "malformed mount parameter %q", pair)
		}
		key, err := unescapeSpec(k)
		if err != nil {
			return nil, err
		}
		value, err := unescapeSpec(v)
		if err != nil {
			return nil, err
		}
		spec.Params[key] = value
	}
	return spec, nil
}

func escapeSpec(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case ',', '=', ':', '%':
			fmt.Fprintf(&b, "%%%02X", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unescapeSpec(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", NewError(ErrInvalidArgument, "truncated escape in %q", s)
		}
		c, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", NewError(ErrInvalidArgument, "bad escape in %q", s)
		}
		b.WriteByte(byte(c))
		i += 2
	}
	return b.String(), nil
}
