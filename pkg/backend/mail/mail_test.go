package mail

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	infos []*attr.FileInfo
}

func (s *collectSink) Add(infos ...*attr.FileInfo) {
	s.infos = append(s.infos, infos...)
}

func newMaildir(t *testing.T, messages map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cur"), 0o755))
	for name, body := range messages {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cur", name), []byte(body), 0o644))
	}
	return dir
}

func mounted(t *testing.T, messages map[string]string) *Backend {
	t.Helper()
	b := New(Config{Maildir: newMaildir(t, messages)})
	canonical, err := b.Mount(context.Background(), vfs.NewMountSpec(Type))
	require.NoError(t, err)
	assert.Equal(t, Type, canonical.String())
	return b
}

const (
	plainMessage   = "From: Alice <alice@example.com>\r\nSubject: Quarterly report\r\n\r\nBody.\r\n"
	encodedMessage = "From: bob@example.com\r\nSubject: =?UTF-8?Q?caf=C3=A9?=\r\n\r\nBody.\r\n"
	invalidMessage = "From: eve@example.com\r\nSubject: bad \xff\xfe bytes\r\n\r\nBody.\r\n"
	noSubject      = "From: carol@example.com\r\n\r\nBody.\r\n"
)

func TestMountMetadata(t *testing.T) {
	b := mounted(t, nil)
	info := b.Info()
	assert.Equal(t, "Mail", info.DisplayName)
	assert.Equal(t, "user-mail", info.Icon)
	assert.False(t, info.UserVisible)

	_, err := New(Config{}).Mount(context.Background(), vfs.NewMountSpec(Type))
	assert.True(t, vfs.IsCode(err, vfs.ErrInvalidArgument))

	spec := vfs.NewMountSpec(Type)
	spec.Set("maildir", filepath.Join(t.TempDir(), "missing"))
	_, err = New(Config{}).Mount(context.Background(), spec)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound))
}

func TestRootInfo(t *testing.T) {
	b := mounted(t, nil)

	viaTry, err := b.TryQueryInfo("/", attr.MatchAll(), 0)
	require.NoError(t, err)
	viaRun, err := b.QueryInfo(context.Background(), "/", attr.MatchAll(), 0)
	require.NoError(t, err)
	assert.Equal(t, attr.ToWire(viaTry, nil), attr.ToWire(viaRun, nil))

	assert.Equal(t, "/", viaTry.Name())
	assert.Equal(t, "Mail", viaTry.DisplayName())
	assert.Equal(t, attr.FileTypeDirectory, viaTry.FileType())
	assert.Equal(t, "inode/directory", viaTry.GetString(attr.StandardContentType))

	_, err = b.TryQueryInfo("/x", attr.MatchAll(), 0)
	assert.ErrorIs(t, err, backend.ErrWouldBlock)

	nameOnly, err := b.QueryInfo(context.Background(), "/", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{attr.StandardName}, nameOnly.Attributes())
}

func TestMessageInfo(t *testing.T) {
	b := mounted(t, map[string]string{
		"1:2,S": plainMessage,
		"2:2,S": encodedMessage,
		"3:2,S": invalidMessage,
		"4:2,S": noSubject,
	})
	ctx := context.Background()

	tests := []struct {
		name    string
		display string
		sender  string
	}{
		{"1:2,S", "Quarterly report", "alice@example.com"},
		{"2:2,S", "café", "bob@example.com"},
		{"3:2,S", displayInvalidUTF8, "eve@example.com"},
		{"4:2,S", "4:2,S", "carol@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := b.QueryInfo(ctx, "/"+tt.name, attr.MatchAll(), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.name, info.Name())
			assert.Equal(t, tt.display, info.DisplayName())
			assert.Equal(t, tt.sender, info.GetString(attr.MailSender))
			assert.Equal(t, attr.FileTypeRegular, info.FileType())
			assert.Equal(t, contentType, info.GetString(attr.StandardContentType))
		})
	}

	info, err := b.QueryInfo(ctx, "/1:2,S", attr.NewMatcher("standard:name"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{attr.StandardName}, info.Attributes())

	_, err = b.QueryInfo(ctx, "/missing", attr.MatchAll(), 0)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound))
	_, err = b.QueryInfo(ctx, "/a/b", attr.MatchAll(), 0)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound))
}

func TestEnumerate(t *testing.T) {
	b := mounted(t, map[string]string{
		"1:2,S": plainMessage,
		"2:2,S": encodedMessage,
	})

	var sink collectSink
	require.NoError(t, b.Enumerate(context.Background(), "/", attr.MatchAll(), 0, &sink))

	var names []string
	for _, i := range sink.infos {
		names = append(names, i.DisplayName())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"Quarterly report", "café"}, names)

	err := b.Enumerate(context.Background(), "/1:2,S", attr.MatchAll(), 0, &sink)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotDirectory))
}

func TestEnumerateWithoutCur(t *testing.T) {
	b := New(Config{Maildir: t.TempDir()})
	_, err := b.Mount(context.Background(), vfs.NewMountSpec(Type))
	require.NoError(t, err)

	var sink collectSink
	require.NoError(t, b.Enumerate(context.Background(), "/", attr.MatchAll(), 0, &sink))
	assert.Empty(t, sink.infos)
}

func TestReadMessage(t *testing.T) {
	b := mounted(t, map[string]string{"1:2,S": plainMessage})
	ctx := context.Background()

	_, err := b.OpenForRead(ctx, "/")
	assert.True(t, vfs.IsCode(err, vfs.ErrIsDirectory))

	res, err := b.OpenForRead(ctx, "/1:2,S")
	require.NoError(t, err)
	assert.False(t, res.CanSeek)

	buf := make([]byte, 1024)
	n, err := b.Read(ctx, res.Handle, buf)
	require.NoError(t, err)
	assert.Equal(t, plainMessage, string(buf[:n]))

	n, err = b.Read(ctx, res.Handle, buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, b.CloseRead(ctx, res.Handle))
}

func TestDeleteIsDenied(t *testing.T) {
	b := mounted(t, map[string]string{"1:2,S": plainMessage})

	assert.True(t, vfs.IsCode(b.TryDelete("/1:2,S"), vfs.ErrPermissionDenied))
	assert.True(t, vfs.IsCode(b.Delete(context.Background(), "/1:2,S"), vfs.ErrPermissionDenied))
	assert.FileExists(t, filepath.Join(b.Maildir(), "cur", "1:2,S"))
}
