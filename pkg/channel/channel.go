// Package channel implements the per-handle data channel: a socketpair whose
// client end is handed to the caller once, over which read, write and seek
// traffic for a single open handle flows as XDR records.
//
// Requests on a channel are executed strictly one at a time in arrival
// order. The channel always ends with a final status frame: ReplyClosed
// after a successful close request, otherwise an error frame carrying the
// last failure.
package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/internal/wire"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// Direction is the kind of traffic a channel carries.
type Direction int

const (
	DirectionRead Direction = iota
	DirectionWrite
	DirectionMonitor
)

func (d Direction) String() string {
	switch d {
	case DirectionRead:
		return "read"
	case DirectionWrite:
		return "write"
	case DirectionMonitor:
		return "monitor"
	default:
		return "unknown"
	}
}

// Handler executes channel requests.
type Handler interface {
	// Serve executes one request and returns its reply. It is never called
	// concurrently for the same channel. ctx is cancelled when the client
	// cancels req.Seq or the channel is closed.
	Serve(ctx context.Context, req *Request) *Reply

	// Release is called once when the channel ends without a close request
	// having been served, so the owner can free the handle.
	Release(ctx context.Context)
}

// Config tunes a channel.
type Config struct {
	// CanSeek allows seek requests.
	CanSeek bool

	// MaxRecord bounds a single request record (default wire.DefaultMaxRecord).
	MaxRecord uint32

	// QueueDepth is the number of requests read ahead of the one executing
	// (default 16).
	QueueDepth int
}

// Channel is the daemon end of a data channel.
type Channel struct {
	handle  vfs.HandleID
	dir     Direction
	cfg     Config
	handler Handler

	conn net.Conn

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan *Request

	writeMu sync.Mutex

	mu          sync.Mutex
	remote      *os.File
	started     bool
	inflightSeq uint32
	inflight    context.CancelFunc
	lastErr     error
	finalSent   bool

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a channel for handle. The client end is available once
// through TakeRemote; Start begins serving.
func New(handle vfs.HandleID, dir Direction, handler Handler, cfg Config) (*Channel, error) {
	if cfg.MaxRecord == 0 {
		cfg.MaxRecord = wire.DefaultMaxRecord
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 16
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, vfs.FromOS(err, "")
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	local := os.NewFile(uintptr(fds[0]), fmt.Sprintf("vfs-channel-%d", handle))
	conn, err := net.FileConn(local)
	_ = local.Close()
	if err != nil {
		_ = unix.Close(fds[1])
		return nil, vfs.FromOS(err, "")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		handle:  handle,
		dir:     dir,
		cfg:     cfg,
		handler: handler,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan *Request, cfg.QueueDepth),
		remote:  os.NewFile(uintptr(fds[1]), fmt.Sprintf("vfs-channel-%d-remote", handle)),
		done:    make(chan struct{}),
	}, nil
}

func (c *Channel) Handle() vfs.HandleID { return c.handle }
func (c *Channel) Direction() Direction { return c.dir }
func (c *Channel) CanSeek() bool        { return c.cfg.CanSeek }

// Done is closed once the channel has shut down.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// TakeRemote hands over the client end. Ownership moves to the caller, who
// must close it after passing it on; a second call fails.
func (c *Channel) TakeRemote() (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remote == nil {
		return nil, vfs.NewError(vfs.ErrInvalidArgument, "channel descriptor for handle %d already handed off", c.handle)
	}
	f := c.remote
	c.remote = nil
	return f, nil
}

// Start begins serving requests.
func (c *Channel) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.readLoop()
	go c.processLoop()
}

// Send writes an unsolicited frame (monitor events).
func (c *Channel) Send(r *Reply) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteRecord(c.conn, r)
}

// Close shuts the channel down from the daemon side: the executing request
// is cancelled, pending requests fail, and a final error frame is sent if
// the client had not closed the handle. Close waits for the executing
// request to return.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.SetReadDeadline(time.Now())

		c.mu.Lock()
		started := c.started
		if c.remote != nil {
			_ = c.remote.Close()
			c.remote = nil
		}
		c.mu.Unlock()

		if !started {
			_ = c.conn.Close()
			close(c.done)
		}
	})
	<-c.done
	return nil
}

func (c *Channel) readLoop() {
	defer close(c.queue)

	r := bufio.NewReader(c.conn)
	for {
		var req Request
		if err := wire.ReadRecord(r, c.cfg.MaxRecord, &req); err != nil {
			if c.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				logger.Debug("Channel %d: read request: %v", c.handle, err)
				c.setLastErr(vfs.FromOS(err, ""))
			}
			return
		}

		if req.Command == CmdCancel {
			c.cancelInflight(req.Seq)
			continue
		}

		select {
		case c.queue <- &req:
		case <-c.ctx.Done():
			return
		}

		if req.Command == CmdClose {
			return
		}
	}
}

func (c *Channel) processLoop() {
	defer c.finish()

	for req := range c.queue {
		reply := c.serve(req)
		if err := c.Send(reply); err != nil {
			logger.Debug("Channel %d: send reply: %v", c.handle, err)
			return
		}
		if reply.Final {
			c.mu.Lock()
			c.finalSent = true
			c.mu.Unlock()
			return
		}
	}
}

func (c *Channel) validate(req *Request) error {
	switch req.Command {
	case CmdClose:
		return nil
	case CmdSeek:
		if c.dir == DirectionMonitor {
			break
		}
		if !c.cfg.CanSeek {
			return vfs.NewError(vfs.ErrNotSupported, "seek not supported on this stream")
		}
		if req.Whence > vfs.SeekEnd {
			return vfs.NewError(vfs.ErrInvalidArgument, "invalid seek whence %d", req.Whence)
		}
		return nil
	case CmdRead:
		if c.dir == DirectionRead {
			return nil
		}
	case CmdWrite:
		if c.dir == DirectionWrite {
			return nil
		}
	}
	return vfs.NewError(vfs.ErrInvalidArgument, "command %d not valid on %s channel", req.Command, c.dir)
}

func (c *Channel) serve(req *Request) (reply *Reply) {
	final := req.Command == CmdClose
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Channel %d: panic serving command %d: %v", c.handle, req.Command, r)
			reply = ErrorReply(req.Seq, vfs.NewError(vfs.ErrIO, "internal error"))
		}
		reply.Seq = req.Seq
		if reply.Type == ReplyError {
			c.setLastErr(reply.Err())
		}
		if final {
			reply.Final = true
		}
	}()

	if err := c.validate(req); err != nil {
		return ErrorReply(req.Seq, err)
	}
	if err := c.ctx.Err(); err != nil && !final {
		return ErrorReply(req.Seq, vfs.NewError(vfs.ErrCancelled, "channel closing"))
	}

	ctx, cancel := context.WithCancel(c.ctx)
	if final {
		// A close must still release the handle while the channel is
		// shutting down.
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.mu.Lock()
	c.inflightSeq = req.Seq
	c.inflight = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inflight = nil
		c.mu.Unlock()
		cancel()
	}()

	reply = c.handler.Serve(ctx, req)
	if reply == nil {
		return ErrorReply(req.Seq, vfs.NewError(vfs.ErrInvalidReply, "no reply for command %d", req.Command))
	}
	if final && reply.Type != ReplyError {
		reply.Type = ReplyClosed
	}
	return reply
}

func (c *Channel) cancelInflight(seq uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil && c.inflightSeq == seq {
		c.inflight()
	}
}

func (c *Channel) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// finish runs once when processing stops. Without a served close request the
// handle is released and a final error frame is sent.
func (c *Channel) finish() {
	c.cancel()
	_ = c.conn.SetReadDeadline(time.Now())
	for range c.queue {
		// Drain so readLoop can exit.
	}

	c.mu.Lock()
	finalSent := c.finalSent
	lastErr := c.lastErr
	c.mu.Unlock()

	if !finalSent {
		c.handler.Release(context.Background())

		if lastErr == nil {
			lastErr = vfs.NewError(vfs.ErrClosed, "channel closed")
		}
		r := ErrorReply(0, lastErr)
		r.Final = true
		if err := c.Send(r); err != nil {
			logger.Debug("Channel %d: send final status: %v", c.handle, err)
		}
	}

	_ = c.conn.Close()

	c.mu.Lock()
	if c.remote != nil {
		_ = c.remote.Close()
		c.remote = nil
	}
	c.mu.Unlock()

	close(c.done)
}
