package localinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestGetInfoRegularFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "notes.txt", "hello world\n")

	info, err := GetInfo("notes.txt", p, attr.MatchAll(), 0, nil)
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", info.Name())
	assert.Equal(t, "notes.txt", info.DisplayName())
	assert.Equal(t, attr.FileTypeRegular, info.FileType())
	assert.Equal(t, int64(12), info.Size())
	assert.False(t, info.IsSymlink())
	assert.False(t, info.IsHidden())
	assert.False(t, info.IsBackup())
	assert.Equal(t, uint32(0o644), info.GetUint32(attr.UnixMode)&0o777)
	assert.Equal(t, "text/plain", info.GetString(attr.StandardContentType))
	assert.True(t, info.GetBool(attr.AccessCanRead))

	var st unix.Stat_t
	require.NoError(t, unix.Stat(p, &st))
	assert.Equal(t, fmt.Sprintf("%d:%d", st.Mtim.Sec, st.Mtim.Nsec/1000), info.GetString(attr.EtagValue))
	assert.Equal(t, uint64(st.Mtim.Sec), info.GetUint64(attr.TimeModified))
	assert.Equal(t, uint64(st.Ino), info.GetUint64(attr.UnixInode))
}

func TestGetInfoMissing(t *testing.T) {
	_, err := GetInfo("nope", filepath.Join(t.TempDir(), "nope"), attr.MatchAll(), 0, nil)
	require.Error(t, err)
	assert.Equal(t, vfs.ErrNotFound, vfs.CodeOf(err))

	var verr *vfs.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, unix.ENOENT, verr.Errno)
}

func TestGetInfoWithoutMatcher(t *testing.T) {
	info, err := GetInfo("ghost", "/definitely/not/here", nil, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{attr.StandardName}, info.Attributes())

	info, err = GetInfo("ghost", "/definitely/not/here", attr.NewMatcher(""), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, info.Attributes())
}

func TestGetInfoOnlyMatchedAttributes(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".hidden~", "x")

	queries := []string{
		"unix:mode",
		"standard:*",
		"time:modified,etag:value",
		"access:*",
		"xattr:*,selinux:context",
		"standard:name,unix:*",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			m := attr.NewMatcher(q)
			info, err := GetInfo(".hidden~", p, m, 0, GetParentInfo(dir, m))
			require.NoError(t, err)
			for _, name := range info.Attributes() {
				assert.True(t, m.Matches(name), "%s not requested by %q", name, q)
			}
		})
	}
}

func TestGetInfoHiddenBackup(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".draft~", "x")

	info, err := GetInfo(".draft~", p, attr.NewMatcher("standard:*"), 0, nil)
	require.NoError(t, err)
	assert.True(t, info.IsHidden())
	assert.True(t, info.IsBackup())
}

func TestGetInfoBrokenSymlinkFollowed(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing-target"), link))

	info, err := GetInfo("dangling", link, attr.MatchAll(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, attr.FileTypeSymbolicLink, info.FileType())
	assert.True(t, info.IsSymlink())
	assert.Equal(t, filepath.Join(dir, "missing-target"), info.SymlinkTarget())
	assert.Equal(t, "inode/symlink", info.GetString(attr.StandardContentType))
}

func TestGetInfoSymlinkFollowAndNoFollow(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, dir, "target", "payload")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	followed, err := GetInfo("link", link, attr.NewMatcher("standard:*"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, attr.FileTypeRegular, followed.FileType())
	assert.True(t, followed.IsSymlink())
	assert.Equal(t, int64(7), followed.Size())

	notFollowed, err := GetInfo("link", link, attr.NewMatcher("standard:*"), vfs.QueryNoFollowSymlinks, nil)
	require.NoError(t, err)
	assert.Equal(t, attr.FileTypeSymbolicLink, notFollowed.FileType())
	assert.Equal(t, "inode/symlink", notFollowed.GetString(attr.StandardContentType))
}

func TestGetInfoDirectoryAndEmptyFile(t *testing.T) {
	dir := t.TempDir()
	empty := writeFile(t, dir, "empty", "")

	info, err := GetInfo("d", dir, attr.NewMatcher("standard:content-type"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "inode/directory", info.GetString(attr.StandardContentType))

	info, err = GetInfo("empty", empty, attr.NewMatcher("standard:content-type"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/x-zerosize", info.GetString(attr.StandardContentType))
}

func TestGIDComesFromStGid(t *testing.T) {
	st := unix.Stat_t{Mode: unix.S_IFREG | 0o640, Uid: 1001, Gid: 2002}

	info := attr.NewFileInfo()
	setInfoFromStat(info, &st, attr.NewMatcher("unix:*"))

	assert.Equal(t, uint32(1001), info.GetUint32(attr.UnixUID))
	assert.Equal(t, uint32(2002), info.GetUint32(attr.UnixGID))
}

func TestCanRenameOrDelete(t *testing.T) {
	sticky := &ParentInfo{Writable: true, Sticky: true, OwnerUID: 100}

	assert.True(t, canRenameOrDelete(sticky, 42, 42))
	assert.False(t, canRenameOrDelete(sticky, 42, 7))
	assert.True(t, canRenameOrDelete(sticky, 42, 100), "parent owner")
	assert.True(t, canRenameOrDelete(sticky, 42, 0), "root")

	plain := &ParentInfo{Writable: true, OwnerUID: 100}
	assert.True(t, canRenameOrDelete(plain, 42, 7))

	readonly := &ParentInfo{Writable: false, OwnerUID: 7}
	assert.False(t, canRenameOrDelete(readonly, 7, 7))
	assert.False(t, canRenameOrDelete(nil, 7, 7))
}

func TestGetParentInfo(t *testing.T) {
	dir := t.TempDir()

	assert.Nil(t, GetParentInfo(dir, attr.NewMatcher("standard:*")))

	p := GetParentInfo(dir, attr.NewMatcher("access:can-delete"))
	require.NotNil(t, p)
	assert.True(t, p.Writable)
	assert.False(t, p.Sticky)
	assert.Equal(t, uint32(os.Geteuid()), p.OwnerUID)

	missing := GetParentInfo(filepath.Join(dir, "nope"), attr.NewMatcher("access:*"))
	require.NotNil(t, missing)
	assert.False(t, missing.Writable)
}

func TestDisplayNames(t *testing.T) {
	display, edit := displayNames("ok.txt")
	assert.Equal(t, "ok.txt", display)
	assert.Equal(t, "ok.txt", edit)

	display, edit = displayNames("bad\xffname")
	assert.Equal(t, "bad�name", edit)
	assert.Equal(t, "bad�name (invalid encoding)", display)
}

func TestEtagChangesWithMtime(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "f", "x")
	m := attr.NewMatcher("etag:value")

	before, err := GetInfo("f", p, m, 0, nil)
	require.NoError(t, err)
	again, err := GetInfo("f", p, m, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, before.GetString(attr.EtagValue), again.GetString(attr.EtagValue))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(p, past, past))

	after, err := GetInfo("f", p, m, 0, nil)
	require.NoError(t, err)
	assert.NotEqual(t, before.GetString(attr.EtagValue), after.GetString(attr.EtagValue))
}

func TestGetInfoFromFD(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "f", "abc")

	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()

	m := attr.NewMatcher("etag:value,standard:size,unix:gid")
	byFD, err := GetInfoFromFD(int(f.Fd()), m)
	require.NoError(t, err)
	byPath, err := GetInfo("f", p, m, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, byPath.GetString(attr.EtagValue), byFD.GetString(attr.EtagValue))
	assert.Equal(t, int64(3), byFD.Size())
	assert.Equal(t, byPath.GetUint32(attr.UnixGID), byFD.GetUint32(attr.UnixGID))
	assert.False(t, byFD.HasAttribute(attr.StandardName))
}
