// Package localinfo builds attribute sets from the local filesystem and
// applies attribute changes back to it.
//
// Every population step is gated by the caller's matcher, and the matcher
// is installed as the FileInfo mask while populating, so a result never
// contains attributes that were not requested.
package localinfo

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"golang.org/x/sys/unix"
)

const invalidEncodingSuffix = " (invalid encoding)"

// ParentInfo describes the directory holding a file. It is only needed for
// access:can-rename and access:can-delete.
type ParentInfo struct {
	Writable bool
	Sticky   bool
	OwnerUID uint32
}

// GetParentInfo inspects dir when the matcher asks for rename/delete rights,
// and returns nil otherwise. A directory that cannot be inspected is
// reported as not writable.
func GetParentInfo(dir string, m *attr.Matcher) *ParentInfo {
	if !m.Matches(attr.AccessCanRename) && !m.Matches(attr.AccessCanDelete) {
		return nil
	}

	p := &ParentInfo{}
	var st unix.Stat_t
	if err := unix.Stat(dir, &st); err == nil {
		p.Writable = eaccess(dir, unix.W_OK|unix.X_OK)
		p.Sticky = st.Mode&unix.S_ISVTX != 0
		p.OwnerUID = st.Uid
	}
	return p
}

// canRenameOrDelete applies the sticky-directory rule: the parent must be
// writable, and in a sticky parent only the file owner, the parent owner or
// root may unlink.
func canRenameOrDelete(parent *ParentInfo, fileUID, euid uint32) bool {
	if parent == nil || !parent.Writable {
		return false
	}
	return !parent.Sticky || euid == fileUID || euid == parent.OwnerUID || euid == 0
}

// GetInfo returns the attributes of path matched by m. basename is reported
// as standard:name. When following symlinks, a link whose target cannot be
// reached is still reported (as a symlink) rather than failing.
func GetInfo(basename, path string, m *attr.Matcher, flags vfs.QueryFlags, parent *ParentInfo) (*attr.FileInfo, error) {
	info := attr.NewFileInfo()
	info.SetAttributeMask(m)
	defer info.UnsetAttributeMask()

	info.SetName(basename)
	if m.IsEmpty() {
		return info, nil
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, vfs.FromOS(err, path)
	}

	isSymlink := st.Mode&unix.S_IFMT == unix.S_IFLNK
	brokenLink := false

	if isSymlink {
		info.SetIsSymlink(true)
		if flags.FollowSymlinks() {
			var target unix.Stat_t
			if err := unix.Stat(path, &target); err == nil {
				st = target
			} else {
				brokenLink = true
			}
		}
	}

	setInfoFromStat(info, &st, m)
	setNameInfo(info, basename, m)

	if isSymlink && m.Matches(attr.StandardSymlinkTarget) {
		if target, err := os.Readlink(path); err == nil {
			info.SetSymlinkTarget(target)
		}
	}

	if m.Matches(attr.StandardContentType) {
		symlinkOnly := isSymlink && (brokenLink || !flags.FollowSymlinks())
		info.SetString(attr.StandardContentType, contentType(path, &st, symlinkOnly))
	}

	if m.MatchesNamespace(attr.NamespaceAccess) {
		setAccessRights(info, path, &st, parent, m)
	}

	src := xattrSource{path: path, fd: -1, follow: flags.FollowSymlinks()}
	if m.Matches(attr.SELinuxContext) {
		if label, ok := src.selinuxLabel(); ok {
			info.SetString(attr.SELinuxContext, label)
		}
	}
	setXattrs(info, src, m)

	return info, nil
}

// GetInfoFromFD returns the attributes of an open descriptor. Name-derived
// and access attributes are not available this way.
func GetInfoFromFD(fd int, m *attr.Matcher) (*attr.FileInfo, error) {
	info := attr.NewFileInfo()
	info.SetAttributeMask(m)
	defer info.UnsetAttributeMask()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, vfs.FromOS(err, "")
	}

	setInfoFromStat(info, &st, m)

	src := xattrSource{fd: fd}
	if m.Matches(attr.SELinuxContext) {
		if label, ok := src.selinuxLabel(); ok {
			info.SetString(attr.SELinuxContext, label)
		}
	}
	setXattrs(info, src, m)

	return info, nil
}

func fileTypeFromMode(mode uint32) attr.FileType {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return attr.FileTypeRegular
	case unix.S_IFDIR:
		return attr.FileTypeDirectory
	case unix.S_IFLNK:
		return attr.FileTypeSymbolicLink
	case unix.S_IFCHR, unix.S_IFBLK, unix.S_IFIFO, unix.S_IFSOCK:
		return attr.FileTypeSpecial
	default:
		return attr.FileTypeUnknown
	}
}

func setInfoFromStat(info *attr.FileInfo, st *unix.Stat_t, m *attr.Matcher) {
	mode := uint32(st.Mode)

	info.SetFileType(fileTypeFromMode(mode))
	info.SetSize(st.Size)

	if m.MatchesNamespace(attr.NamespaceUnix) {
		info.SetUint64(attr.UnixDevice, uint64(st.Dev))
		info.SetUint64(attr.UnixInode, uint64(st.Ino))
		info.SetUint32(attr.UnixMode, mode)
		info.SetUint32(attr.UnixNlink, uint32(st.Nlink))
		info.SetUint32(attr.UnixUID, st.Uid)
		info.SetUint32(attr.UnixGID, st.Gid)
		info.SetUint32(attr.UnixRdev, uint32(st.Rdev))
		info.SetUint32(attr.UnixBlockSize, uint32(st.Blksize))
		info.SetUint64(attr.UnixBlocks, uint64(st.Blocks))
	}

	if m.MatchesNamespace(attr.NamespaceTime) {
		info.SetUint64(attr.TimeModified, uint64(st.Mtim.Sec))
		info.SetUint32(attr.TimeModifiedUsec, uint32(st.Mtim.Nsec/1000))
		info.SetUint64(attr.TimeAccess, uint64(st.Atim.Sec))
		info.SetUint32(attr.TimeAccessUsec, uint32(st.Atim.Nsec/1000))
		info.SetUint64(attr.TimeChanged, uint64(st.Ctim.Sec))
		info.SetUint32(attr.TimeChangedUsec, uint32(st.Ctim.Nsec/1000))
	}

	if m.Matches(attr.EtagValue) {
		info.SetString(attr.EtagValue, etag(st))
	}
}

// etag derives the entity tag from the modification time, so it changes
// whenever the content does.
func etag(st *unix.Stat_t) string {
	return fmt.Sprintf("%d:%d", st.Mtim.Sec, st.Mtim.Nsec/1000)
}

func setNameInfo(info *attr.FileInfo, basename string, m *attr.Matcher) {
	if m.Matches(attr.StandardIsHidden) {
		info.SetIsHidden(strings.HasPrefix(basename, "."))
	}
	if m.Matches(attr.StandardIsBackup) {
		info.SetIsBackup(strings.HasSuffix(basename, "~"))
	}

	if m.Matches(attr.StandardDisplayName) || m.Matches(attr.StandardEditName) {
		display, edit := displayNames(basename)
		info.SetDisplayName(display)
		info.SetString(attr.StandardEditName, edit)
	}
}

// displayNames returns the display and edit names for a basename that may
// not be valid UTF-8.
func displayNames(basename string) (display, edit string) {
	if utf8.ValidString(basename) {
		return basename, basename
	}
	edit = strings.ToValidUTF8(basename, "\uFFFD")
	return edit + invalidEncodingSuffix, edit
}

func contentType(path string, st *unix.Stat_t, symlinkOnly bool) string {
	if symlinkOnly {
		return "inode/symlink"
	}

	switch uint32(st.Mode) & unix.S_IFMT {
	case unix.S_IFDIR:
		return "inode/directory"
	case unix.S_IFCHR:
		return "inode/chardevice"
	case unix.S_IFBLK:
		return "inode/blockdevice"
	case unix.S_IFIFO:
		return "inode/fifo"
	case unix.S_IFSOCK:
		return "inode/socket"
	}

	if st.Size == 0 {
		return "application/x-zerosize"
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	ct, _, _ := strings.Cut(mt.String(), ";")
	return ct
}

func eaccess(path string, mode uint32) bool {
	return unix.Faccessat(unix.AT_FDCWD, path, mode, unix.AT_EACCESS) == nil
}

func setAccessRights(info *attr.FileInfo, path string, st *unix.Stat_t, parent *ParentInfo, m *attr.Matcher) {
	if m.Matches(attr.AccessCanRead) {
		info.SetBool(attr.AccessCanRead, eaccess(path, unix.R_OK))
	}
	if m.Matches(attr.AccessCanWrite) {
		info.SetBool(attr.AccessCanWrite, eaccess(path, unix.W_OK))
	}
	if m.Matches(attr.AccessCanExecute) {
		info.SetBool(attr.AccessCanExecute, eaccess(path, unix.X_OK))
	}

	if parent != nil {
		allowed := canRenameOrDelete(parent, st.Uid, uint32(os.Geteuid()))
		if m.Matches(attr.AccessCanRename) {
			info.SetBool(attr.AccessCanRename, allowed)
		}
		if m.Matches(attr.AccessCanDelete) {
			info.SetBool(attr.AccessCanDelete, allowed)
		}
	}
}
