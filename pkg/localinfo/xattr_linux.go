//go:build linux

package localinfo

import (
	"bytes"
	"errors"
	"strings"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"golang.org/x/sys/unix"
)

const (
	userPrefix   = "user."
	selinuxXattr = "security.selinux"
)

// xattrSource reads extended attributes either by path or by descriptor
// (fd >= 0).
type xattrSource struct {
	path   string
	fd     int
	follow bool
}

// sized calls fn with a growing buffer until the result fits.
func sized(fn func([]byte) (int, error)) ([]byte, error) {
	size := 256
	for {
		buf := make([]byte, size)
		n, err := fn(buf)
		if err == nil {
			return buf[:n], nil
		}
		if !errors.Is(err, unix.ERANGE) || size >= 1<<20 {
			return nil, err
		}
		size *= 4
	}
}

func (s xattrSource) list() ([]string, error) {
	raw, err := sized(func(buf []byte) (int, error) {
		switch {
		case s.fd >= 0:
			return unix.Flistxattr(s.fd, buf)
		case s.follow:
			return unix.Listxattr(s.path, buf)
		default:
			return unix.Llistxattr(s.path, buf)
		}
	})
	if err != nil {
		return nil, err
	}

	var names []string
	for _, name := range bytes.Split(raw, []byte{0}) {
		if len(name) > 0 {
			names = append(names, string(name))
		}
	}
	return names, nil
}

func (s xattrSource) get(name string) ([]byte, error) {
	return sized(func(buf []byte) (int, error) {
		switch {
		case s.fd >= 0:
			return unix.Fgetxattr(s.fd, name, buf)
		case s.follow:
			return unix.Getxattr(s.path, name, buf)
		default:
			return unix.Lgetxattr(s.path, name, buf)
		}
	})
}

func (s xattrSource) set(name string, value []byte) error {
	switch {
	case s.fd >= 0:
		return unix.Fsetxattr(s.fd, name, value, 0)
	case s.follow:
		return unix.Setxattr(s.path, name, value, 0)
	default:
		return unix.Lsetxattr(s.path, name, value, 0)
	}
}

func (s xattrSource) selinuxLabel() (string, bool) {
	v, err := s.get(selinuxXattr)
	if err != nil {
		return "", false
	}
	return string(bytes.TrimRight(v, "\x00")), true
}

// attributeFor maps a raw xattr name onto its exposed attribute: user.*
// lives in the xattr namespace without the prefix, everything else in
// xattr_sys.
func attributeFor(raw string) (ns, name string) {
	if strings.HasPrefix(raw, userPrefix) {
		return attr.NamespaceXattr, EscapeString(strings.TrimPrefix(raw, userPrefix))
	}
	return attr.NamespaceXattrSys, EscapeString(raw)
}

// rawXattrName is the inverse of attributeFor.
func rawXattrName(ns, name string) string {
	raw := UnescapeString(name)
	if ns == attr.NamespaceXattr {
		return userPrefix + raw
	}
	return raw
}

func setXattrs(info *attr.FileInfo, src xattrSource, m *attr.Matcher) {
	wantUser := m.MatchesNamespace(attr.NamespaceXattr)
	wantSys := m.MatchesNamespace(attr.NamespaceXattrSys)
	if !wantUser && !wantSys {
		return
	}

	listUser := wantUser && m.EnumerateNamespace(attr.NamespaceXattr)
	listSys := wantSys && m.EnumerateNamespace(attr.NamespaceXattrSys)

	if listUser || listSys {
		names, err := src.list()
		if err == nil {
			for _, raw := range names {
				ns, name := attributeFor(raw)
				if (ns == attr.NamespaceXattr && !listUser) || (ns == attr.NamespaceXattrSys && !listSys) {
					continue
				}
				setXattrValue(info, src, raw, attr.JoinName(ns, name))
			}
		}
	}

	for _, ns := range []string{attr.NamespaceXattr, attr.NamespaceXattrSys} {
		if m.EnumerateNamespace(ns) {
			continue
		}
		for _, name := range m.Literals(ns) {
			setXattrValue(info, src, rawXattrName(ns, name), attr.JoinName(ns, name))
		}
	}
}

func setXattrValue(info *attr.FileInfo, src xattrSource, raw, attribute string) {
	v, err := src.get(raw)
	if err != nil {
		return
	}
	info.SetString(attribute, EscapeString(string(v)))
}

func setXattr(path string, follow bool, ns, name string, v attr.Value) error {
	s, ok := v.AsString()
	if !ok {
		return vfs.NewError(vfs.ErrInvalidArgument, "invalid attribute type (string expected)")
	}
	if name == "" {
		return vfs.NewError(vfs.ErrInvalidArgument, "empty extended attribute name")
	}

	src := xattrSource{path: path, fd: -1, follow: follow}
	if err := src.set(rawXattrName(ns, name), []byte(UnescapeString(s))); err != nil {
		return vfs.FromOS(err, path)
	}
	return nil
}
