package local

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/localinfo"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// ============================================================================
// Read
// ============================================================================

// OpenForRead opens a regular file. Directories fail with ErrIsDirectory.
func (b *Backend) OpenForRead(ctx context.Context, p string) (*backend.OpenResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := b.resolve(p)
	f, err := os.Open(full)
	if err != nil {
		return nil, vfs.FromOS(err, p)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, vfs.FromOS(err, p)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, &vfs.Error{Code: vfs.ErrIsDirectory, Message: "can't open directory", Path: p}
	}

	return &backend.OpenResult{Handle: f, CanSeek: true}, nil
}

// Read fills buf from the current position. End of file is a zero count.
func (b *Backend) Read(ctx context.Context, h any, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := fileOf(h)
	if err != nil {
		return 0, err
	}

	n, err := f.Read(buf)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	if err != nil {
		return n, vfs.FromOS(err, "")
	}
	return n, nil
}

func (b *Backend) SeekOnRead(ctx context.Context, h any, offset int64, whence uint32) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return seek(h, offset, whence)
}

// TrySeekOnRead repositions without blocking: lseek never waits on I/O.
func (b *Backend) TrySeekOnRead(h any, offset int64, whence uint32) (int64, error) {
	return seek(h, offset, whence)
}

func (b *Backend) CloseRead(ctx context.Context, h any) error {
	f, err := fileOf(h)
	if err != nil {
		return err
	}
	return vfs.FromOS(f.Close(), "")
}

// ============================================================================
// Write
// ============================================================================

// OpenForWrite opens p for writing. WriteCreate fails with ErrExists when p
// exists, WriteAppend starts at the end of the file, WriteReplace truncates.
// Appending streams cannot seek.
func (b *Backend) OpenForWrite(ctx context.Context, p string, mode vfs.WriteMode) (*backend.OpenResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vfs.IsRoot(p) {
		return nil, &vfs.Error{Code: vfs.ErrIsDirectory, Message: "can't write to the mount root", Path: p}
	}

	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case vfs.WriteCreate:
		flags |= os.O_EXCL
	case vfs.WriteAppend:
		flags |= os.O_APPEND
	case vfs.WriteReplace:
		flags |= os.O_TRUNC
	default:
		return nil, vfs.NewError(vfs.ErrInvalidArgument, "unknown write mode %d", mode)
	}

	f, err := os.OpenFile(b.resolve(p), flags, 0o666)
	if err != nil {
		return nil, vfs.FromOS(err, p)
	}

	res := &backend.OpenResult{Handle: f, CanSeek: mode != vfs.WriteAppend}
	if mode == vfs.WriteAppend {
		off, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			_ = f.Close()
			return nil, vfs.FromOS(err, p)
		}
		res.Offset = off
	}
	return res, nil
}

func (b *Backend) Write(ctx context.Context, h any, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := fileOf(h)
	if err != nil {
		return 0, err
	}

	n, err := f.Write(data)
	return n, vfs.FromOS(err, "")
}

func (b *Backend) SeekOnWrite(ctx context.Context, h any, offset int64, whence uint32) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return seek(h, offset, whence)
}

func (b *Backend) TrySeekOnWrite(h any, offset int64, whence uint32) (int64, error) {
	return seek(h, offset, whence)
}

// CloseWrite flushes and closes the file and returns its new etag.
func (b *Backend) CloseWrite(ctx context.Context, h any) (string, error) {
	f, err := fileOf(h)
	if err != nil {
		return "", err
	}

	var etag string
	if info, err := localinfo.GetInfoFromFD(int(f.Fd()), attr.NewMatcher(attr.EtagValue)); err == nil {
		etag = info.GetString(attr.EtagValue)
	}

	if err := f.Close(); err != nil {
		return "", vfs.FromOS(err, "")
	}
	return etag, nil
}

// ============================================================================
// Helpers
// ============================================================================

func fileOf(h any) (*os.File, error) {
	f, ok := h.(*os.File)
	if !ok || f == nil {
		return nil, vfs.NewError(vfs.ErrInvalidHandle, "not a local file handle")
	}
	return f, nil
}

func seek(h any, offset int64, whence uint32) (int64, error) {
	f, err := fileOf(h)
	if err != nil {
		return 0, err
	}

	var w int
	switch whence {
	case vfs.SeekSet:
		w = unix.SEEK_SET
	case vfs.SeekCur:
		w = unix.SEEK_CUR
	case vfs.SeekEnd:
		w = unix.SEEK_END
	default:
		return 0, vfs.NewError(vfs.ErrInvalidArgument, "invalid seek whence %d", whence)
	}

	pos, err := f.Seek(offset, w)
	if err != nil {
		return 0, vfs.FromOS(err, f.Name())
	}
	return pos, nil
}
