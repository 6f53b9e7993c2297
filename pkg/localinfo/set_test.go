package localinfo

import (
	"errors"
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

func TestSetAttributesPartialFailure(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "f", "data")

	batch := attr.NewFileInfo()
	batch.SetUint32(attr.UnixMode, 0o600)
	batch.SetString(attr.UnixUID, "bad")

	err := SetAttributes(p, batch, 0)
	require.Error(t, err)
	assert.Equal(t, vfs.ErrInvalidArgument, vfs.CodeOf(err))

	assert.Equal(t, attr.StatusSet, batch.AttributeStatus(attr.UnixMode))
	assert.Equal(t, attr.StatusErrorSetting, batch.AttributeStatus(attr.UnixUID))
	assert.Error(t, batch.AttributeError(attr.UnixUID))

	fi, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestSetAttributesUnknownAttribute(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "f", "data")

	batch := attr.NewFileInfo()
	batch.SetString("bogus:thing", "x")
	batch.SetUint32(attr.UnixMode, 0o640)

	err := SetAttributes(p, batch, 0)
	require.Error(t, err)

	assert.Equal(t, attr.StatusErrorSetting, batch.AttributeStatus("bogus:thing"))
	assert.True(t, vfs.IsCode(batch.AttributeError("bogus:thing"), vfs.ErrNotSupported))
	assert.Equal(t, attr.StatusSet, batch.AttributeStatus(attr.UnixMode))

	fi, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}

func TestSetAttributesTimes(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "f", "data")

	batch := attr.NewFileInfo()
	batch.SetUint64(attr.TimeModified, 1_000_000)
	batch.SetUint32(attr.TimeModifiedUsec, 250)

	require.NoError(t, SetAttributes(p, batch, 0))
	assert.Equal(t, attr.StatusSet, batch.AttributeStatus(attr.TimeModified))
	assert.Equal(t, attr.StatusSet, batch.AttributeStatus(attr.TimeModifiedUsec))

	var st unix.Stat_t
	require.NoError(t, unix.Stat(p, &st))
	assert.Equal(t, int64(1_000_000), int64(st.Mtim.Sec))
	assert.Equal(t, int64(250_000), int64(st.Mtim.Nsec))

	info, err := GetInfo("f", p, attr.NewMatcher("etag:value"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "1000000:250", info.GetString(attr.EtagValue))
}

func TestSetAccessTimeKeepsModified(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "f", "data")
	mtime := time.Unix(2_000_000, 0)
	require.NoError(t, os.Chtimes(p, mtime, mtime))

	require.NoError(t, SetAttribute(p, attr.TimeAccess, attr.Uint64Value(3_000_000), 0))

	var st unix.Stat_t
	require.NoError(t, unix.Stat(p, &st))
	assert.Equal(t, int64(3_000_000), int64(st.Atim.Sec))
	assert.Equal(t, int64(2_000_000), int64(st.Mtim.Sec))
}

func TestSetAttributeTypeErrors(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "f", "data")

	tests := []struct {
		name string
		v    attr.Value
	}{
		{attr.UnixMode, attr.StringValue("rw")},
		{attr.UnixGID, attr.Int64Value(1)},
		{attr.TimeModified, attr.Uint32Value(1)},
		{attr.StandardSymlinkTarget, attr.Uint32Value(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SetAttribute(p, tt.name, tt.v, 0)
			assert.True(t, vfs.IsCode(err, vfs.ErrInvalidArgument), "got %v", err)
		})
	}

	err := SetAttribute(p, attr.StandardSize, attr.Int64Value(1), 0)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotSupported))
}

func TestSetSymlinkTarget(t *testing.T) {
	dir := t.TempDir()
	regular := writeFile(t, dir, "regular", "x")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink("old-target", link))

	require.NoError(t, SetAttribute(link, attr.StandardSymlinkTarget, attr.ByteStringValue("new-target"), 0))
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "new-target", target)

	err = SetAttribute(regular, attr.StandardSymlinkTarget, attr.ByteStringValue("x"), 0)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotSymbolicLink))

	err = SetAttribute(link, attr.StandardSymlinkTarget, attr.ByteStringValue(""), 0)
	assert.True(t, vfs.IsCode(err, vfs.ErrInvalidArgument))
}

func TestSetModeNoFollowOnSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink("target", link))

	err := SetAttribute(link, attr.UnixMode, attr.Uint32Value(0o600), vfs.QueryNoFollowSymlinks)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotSupported))
}

func TestXattrRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "f", "data")

	name := `odd\x0aname`
	value := `line1\x0aline2\x5c`
	err := SetAttribute(p, "xattr:"+name, attr.StringValue(value), 0)
	if errors.Is(err, &vfs.Error{Code: vfs.ErrNotSupported}) {
		t.Skip("user extended attributes not supported here")
	}
	require.NoError(t, err)

	raw := make([]byte, 64)
	n, err := unix.Getxattr(p, "user.odd\nname", raw)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\\", string(raw[:n]))

	listed, err := GetInfo("f", p, attr.NewMatcher("xattr:*"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, value, listed.GetString("xattr:"+name))

	queried, err := GetInfo("f", p, attr.NewMatcher("xattr:"+name+",xattr:absent"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, value, queried.GetString("xattr:"+name))
	assert.False(t, queried.HasAttribute("xattr:absent"))
}
