//go:build !linux

package local

import (
	"context"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

func (b *Backend) QueryFSInfo(ctx context.Context, p string, m *attr.Matcher) (*attr.FileInfo, error) {
	return nil, vfs.NewError(vfs.ErrNotSupported, "filesystem info not supported on this platform")
}
