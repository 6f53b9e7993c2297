package job

import (
	"context"
	"io"
	"os"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/channel"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// Opened is the result of a successful open: the handle id, whether seeks
// are allowed and the running data channel. The client end of the channel
// must be taken with Remote, passed to the client and closed.
type Opened struct {
	Handle  vfs.HandleID
	CanSeek bool
	Offset  int64
	Channel *channel.Channel
}

// Remote hands over the client end of the data channel. It succeeds once.
func (o *Opened) Remote() (*os.File, error) {
	if o.Channel == nil {
		return nil, vfs.NewError(vfs.ErrInvalidReply, "no data channel")
	}
	return o.Channel.TakeRemote()
}

// OpenForRead opens a file for reading.
type OpenForRead struct {
	Path string

	Opened
	result *backend.OpenResult
}

func (o *OpenForRead) Kind() Kind { return KindOpenForRead }

func (o *OpenForRead) Try(b backend.Backend) error {
	t, ok := b.(backend.ReadOpenTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	res, err := t.TryOpenForRead(o.Path)
	return o.setResult(res, err)
}

func (o *OpenForRead) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.ReadOpener)
	if !ok {
		return notSupported(o.Kind())
	}
	res, err := r.OpenForRead(ctx, o.Path)
	return o.setResult(res, err)
}

func (o *OpenForRead) setResult(res *backend.OpenResult, err error) error {
	if err != nil {
		return err
	}
	if res == nil || res.Handle == nil {
		return invalidReply(o.Kind(), "backend returned no handle for %q", o.Path)
	}
	o.result = res
	return nil
}

func (o *OpenForRead) complete(d *Dispatcher, j *Job, b backend.Backend) error {
	opened, err := d.attachStream(j.Mount(), b, o.result, channel.DirectionRead)
	if err != nil {
		closeUnregistered(b, o.result.Handle, channel.DirectionRead)
		return err
	}
	o.Opened = *opened
	return nil
}

// OpenForWrite opens a file for writing in the given mode.
type OpenForWrite struct {
	Path string
	Mode vfs.WriteMode

	Opened
	result *backend.OpenResult
}

func (o *OpenForWrite) Kind() Kind { return KindOpenForWrite }

func (o *OpenForWrite) Try(b backend.Backend) error {
	t, ok := b.(backend.WriteOpenTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	res, err := t.TryOpenForWrite(o.Path, o.Mode)
	return o.setResult(res, err)
}

func (o *OpenForWrite) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.WriteOpener)
	if !ok {
		return notSupported(o.Kind())
	}
	res, err := r.OpenForWrite(ctx, o.Path, o.Mode)
	return o.setResult(res, err)
}

func (o *OpenForWrite) setResult(res *backend.OpenResult, err error) error {
	if err != nil {
		return err
	}
	if res == nil || res.Handle == nil {
		return invalidReply(o.Kind(), "backend returned no handle for %q", o.Path)
	}
	o.result = res
	return nil
}

func (o *OpenForWrite) complete(d *Dispatcher, j *Job, b backend.Backend) error {
	opened, err := d.attachStream(j.Mount(), b, o.result, channel.DirectionWrite)
	if err != nil {
		closeUnregistered(b, o.result.Handle, channel.DirectionWrite)
		return err
	}
	o.Opened = *opened
	return nil
}

// closeUnregistered releases a backend handle that never made it into the
// handle table.
func closeUnregistered(b backend.Backend, handle any, dir channel.Direction) {
	var err error
	switch dir {
	case channel.DirectionRead:
		if c, ok := b.(backend.ReadCloser); ok {
			err = c.CloseRead(context.Background(), handle)
		} else if c, ok := b.(backend.ReadCloseTrier); ok {
			err = c.TryCloseRead(handle)
		}
	case channel.DirectionWrite:
		if c, ok := b.(backend.WriteCloser); ok {
			_, err = c.CloseWrite(context.Background(), handle)
		} else if c, ok := b.(backend.WriteCloseTrier); ok {
			_, err = c.TryCloseWrite(handle)
		}
	}
	if err != nil {
		logger.Debug("Closing unregistered %s handle: %v", dir, err)
	}
}

// Read reads up to Count bytes from an open handle. An empty Data means
// end of file.
type Read struct {
	Handle vfs.HandleID
	Count  int

	Data []byte
}

func (o *Read) Kind() Kind { return KindRead }

func (o *Read) Try(b backend.Backend) error {
	t, ok := b.(backend.ReadTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	h, err := handleValue(b, o.Handle)
	if err != nil {
		return err
	}
	buf := make([]byte, o.Count)
	n, err := t.TryRead(h, buf)
	return o.result(buf, n, err)
}

func (o *Read) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.Reader)
	if !ok {
		return notSupported(o.Kind())
	}
	h, err := handleValue(b, o.Handle)
	if err != nil {
		return err
	}
	buf := make([]byte, o.Count)
	n, err := r.Read(ctx, h, buf)
	return o.result(buf, n, err)
}

func (o *Read) result(buf []byte, n int, err error) error {
	if err != nil {
		return err
	}
	if n < 0 || n > len(buf) {
		return invalidReply(o.Kind(), "backend read %d bytes into a %d byte buffer", n, len(buf))
	}
	o.Data = buf[:n]
	return nil
}

// Write writes Data to an open handle.
type Write struct {
	Handle vfs.HandleID
	Data   []byte

	Written int
}

func (o *Write) Kind() Kind { return KindWrite }

func (o *Write) Try(b backend.Backend) error {
	t, ok := b.(backend.WriteTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	h, err := handleValue(b, o.Handle)
	if err != nil {
		return err
	}
	n, err := t.TryWrite(h, o.Data)
	return o.result(n, err)
}

func (o *Write) Run(ctx context.Context, b backend.Backend) error {
	w, ok := b.(backend.Writer)
	if !ok {
		return notSupported(o.Kind())
	}
	h, err := handleValue(b, o.Handle)
	if err != nil {
		return err
	}
	n, err := w.Write(ctx, h, o.Data)
	return o.result(n, err)
}

func (o *Write) result(n int, err error) error {
	if err != nil {
		return err
	}
	if n < 0 || n > len(o.Data) {
		return invalidReply(o.Kind(), "backend wrote %d bytes of %d", n, len(o.Data))
	}
	o.Written = n
	return nil
}

// Seek repositions an open handle. Write selects the write-side capability.
type Seek struct {
	Handle vfs.HandleID
	Offset int64
	Whence uint32
	Write  bool

	Position int64
}

func (o *Seek) Kind() Kind {
	if o.Write {
		return KindSeekOnWrite
	}
	return KindSeekOnRead
}

func (o *Seek) Try(b backend.Backend) error {
	if o.Whence > vfs.SeekEnd {
		return vfs.NewError(vfs.ErrInvalidArgument, "invalid seek whence %d", o.Whence)
	}

	var (
		pos int64
		err error
	)
	if o.Write {
		t, ok := b.(backend.WriteSeekTrier)
		if !ok {
			return backend.ErrWouldBlock
		}
		h, herr := handleValue(b, o.Handle)
		if herr != nil {
			return herr
		}
		pos, err = t.TrySeekOnWrite(h, o.Offset, o.Whence)
	} else {
		t, ok := b.(backend.ReadSeekTrier)
		if !ok {
			return backend.ErrWouldBlock
		}
		h, herr := handleValue(b, o.Handle)
		if herr != nil {
			return herr
		}
		pos, err = t.TrySeekOnRead(h, o.Offset, o.Whence)
	}
	return o.result(pos, err)
}

func (o *Seek) Run(ctx context.Context, b backend.Backend) error {
	var (
		pos int64
		err error
	)
	if o.Write {
		s, ok := b.(backend.WriteSeeker)
		if !ok {
			return notSupported(o.Kind())
		}
		h, herr := handleValue(b, o.Handle)
		if herr != nil {
			return herr
		}
		pos, err = s.SeekOnWrite(ctx, h, o.Offset, o.Whence)
	} else {
		s, ok := b.(backend.ReadSeeker)
		if !ok {
			return notSupported(o.Kind())
		}
		h, herr := handleValue(b, o.Handle)
		if herr != nil {
			return herr
		}
		pos, err = s.SeekOnRead(ctx, h, o.Offset, o.Whence)
	}
	return o.result(pos, err)
}

func (o *Seek) result(pos int64, err error) error {
	if err != nil {
		return err
	}
	if pos < 0 {
		return invalidReply(o.Kind(), "backend returned negative offset %d", pos)
	}
	o.Position = pos
	return nil
}

// Close finishes an open handle and removes it from the handle table. For
// write handles ETag holds the new entity tag when the backend knows it.
type Close struct {
	Handle vfs.HandleID
	Write  bool

	ETag string
}

func (o *Close) Kind() Kind {
	if o.Write {
		return KindCloseWrite
	}
	return KindCloseRead
}

func (o *Close) Try(b backend.Backend) error {
	h, err := handleValue(b, o.Handle)
	if err != nil {
		return err
	}

	if o.Write {
		t, ok := b.(backend.WriteCloseTrier)
		if !ok {
			return backend.ErrWouldBlock
		}
		etag, err := t.TryCloseWrite(h)
		return o.result(b, etag, err)
	}

	t, ok := b.(backend.ReadCloseTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	return o.result(b, "", t.TryCloseRead(h))
}

func (o *Close) Run(ctx context.Context, b backend.Backend) error {
	h, err := handleValue(b, o.Handle)
	if err != nil {
		return err
	}

	if o.Write {
		c, ok := b.(backend.WriteCloser)
		if !ok {
			return o.result(b, "", closeValue(h))
		}
		etag, err := c.CloseWrite(ctx, h)
		return o.result(b, etag, err)
	}

	c, ok := b.(backend.ReadCloser)
	if !ok {
		return o.result(b, "", closeValue(h))
	}
	return o.result(b, "", c.CloseRead(ctx, h))
}

// closeValue closes a handle value for backends without a close form.
func closeValue(h any) error {
	if c, ok := h.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// result unregisters the handle once the backend has been asked to close
// it, whatever the outcome.
func (o *Close) result(b backend.Backend, etag string, err error) error {
	if wouldBlock(err) {
		return err
	}
	_, _ = b.Core().Handles().Remove(o.Handle)
	if err != nil {
		return err
	}
	o.ETag = etag
	return nil
}
