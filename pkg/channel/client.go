package channel

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/marmos91/dittovfs/internal/wire"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// Client speaks the channel protocol from the receiving end of a handed-off
// descriptor. It issues one request at a time.
type Client struct {
	conn net.Conn
	r    *bufio.Reader

	mu     sync.Mutex
	seq    uint32
	closed bool
}

// NewClient takes ownership of f.
func NewClient(f *os.File) (*Client, error) {
	conn, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Conn exposes the underlying connection, for deadlines.
func (c *Client) Conn() net.Conn {
	return c.conn
}

func (c *Client) nextSeq() uint32 {
	c.seq++
	return c.seq
}

// Send writes a request without waiting for its reply. The assigned
// sequence number is returned.
func (c *Client) Send(req *Request) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.Command != CmdCancel {
		req.Seq = c.nextSeq()
	}
	if err := wire.WriteRecord(c.conn, req); err != nil {
		return 0, vfs.FromOS(err, "")
	}
	return req.Seq, nil
}

// Receive reads the next frame. A channel that ends without a final status
// frame is reported as ErrIO.
func (c *Client) Receive() (*Reply, error) {
	var r Reply
	if err := wire.ReadRecord(c.r, wire.DefaultMaxRecord, &r); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, vfs.NewError(vfs.ErrIO, "channel closed without status")
		}
		return nil, vfs.FromOS(err, "")
	}
	return &r, nil
}

func (c *Client) roundTrip(req *Request) (*Reply, error) {
	seq, err := c.Send(req)
	if err != nil {
		return nil, err
	}
	for {
		r, err := c.Receive()
		if err != nil {
			return nil, err
		}
		if r.Type == ReplyEvent {
			continue
		}
		if r.Final && r.Seq != seq {
			if err := r.Err(); err != nil {
				return nil, err
			}
			return nil, vfs.NewError(vfs.ErrClosed, "channel closed")
		}
		if r.Seq != seq {
			continue
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		return r, nil
	}
}

// Read requests up to n bytes. An empty result means end of file.
func (c *Client) Read(n int) ([]byte, error) {
	r, err := c.roundTrip(&Request{Command: CmdRead, Count: uint32(n)})
	if err != nil {
		return nil, err
	}
	return r.Data, nil
}

// Write sends p and returns the number of bytes the backend accepted.
func (c *Client) Write(p []byte) (int, error) {
	r, err := c.roundTrip(&Request{Command: CmdWrite, Data: p})
	if err != nil {
		return 0, err
	}
	return int(r.Value), nil
}

// Seek moves the stream position. whence takes the io.Seek* values.
func (c *Client) Seek(offset int64, whence int) (int64, error) {
	r, err := c.roundTrip(&Request{Command: CmdSeek, Offset: offset, Whence: uint32(whence)})
	if err != nil {
		return 0, err
	}
	return r.Value, nil
}

// Cancel asks the daemon to cancel the request with the given sequence.
func (c *Client) Cancel(seq uint32) error {
	_, err := c.Send(&Request{Command: CmdCancel, Seq: seq})
	return err
}

// NextEvent waits for a monitor event, or the final frame.
func (c *Client) NextEvent(ctx context.Context) (*Reply, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}
	r, err := c.Receive()
	if err != nil {
		return nil, err
	}
	if r.Final {
		return nil, r.Err()
	}
	return r, nil
}

// Close sends the close request and waits for the final status frame. For
// write channels the returned string is the new etag.
func (c *Client) Close() (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", vfs.NewError(vfs.ErrClosed, "channel already closed")
	}
	c.closed = true
	c.mu.Unlock()

	defer c.conn.Close()

	r, err := c.roundTrip(&Request{Command: CmdClose})
	if err != nil {
		return "", err
	}
	return r.Text, nil
}
