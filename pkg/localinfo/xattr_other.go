//go:build !linux

package localinfo

import (
	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

type xattrSource struct {
	path   string
	fd     int
	follow bool
}

func (s xattrSource) selinuxLabel() (string, bool) {
	return "", false
}

func setXattrs(info *attr.FileInfo, src xattrSource, m *attr.Matcher) {}

func setXattr(path string, follow bool, ns, name string, v attr.Value) error {
	return vfs.NewError(vfs.ErrNotSupported, "extended attributes not supported on this platform")
}
