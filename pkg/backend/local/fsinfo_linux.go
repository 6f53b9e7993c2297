//go:build linux

package local

import (
	"context"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"golang.org/x/sys/unix"
)

var fsTypes = map[int64]string{
	0xEF53:     "ext3/ext4",
	0x01021994: "tmpfs",
	0x9123683E: "btrfs",
	0x58465342: "xfs",
	0x6969:     "nfs",
	0x794C7630: "overlayfs",
	0x65735546: "fuse",
	0x2FC12FC1: "zfs",
	0x4D44:     "msdos",
	0x5346544E: "ntfs",
	0x9FA0:     "proc",
}

// QueryFSInfo reports size, free space, type and read-only state of the
// filesystem holding p.
func (b *Backend) QueryFSInfo(ctx context.Context, p string, m *attr.Matcher) (*attr.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var st unix.Statfs_t
	if err := unix.Statfs(b.resolve(p), &st); err != nil {
		return nil, vfs.FromOS(err, p)
	}

	info := attr.NewFileInfo()
	info.SetAttributeMask(m)
	defer info.UnsetAttributeMask()

	bsize := uint64(st.Bsize)
	info.SetUint64(attr.FilesystemSize, st.Blocks*bsize)
	info.SetUint64(attr.FilesystemFree, st.Bavail*bsize)
	info.SetBool(attr.FilesystemReadonly, st.Flags&unix.ST_RDONLY != 0)
	if name, ok := fsTypes[int64(st.Type)]; ok {
		info.SetString(attr.FilesystemType, name)
	}
	return info, nil
}
