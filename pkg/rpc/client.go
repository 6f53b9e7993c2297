package rpc

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/internal/wire"
	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/channel"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// Stream is an open handle on the client side: the handle id, whether it
// can seek, and the data channel received with the open reply.
type Stream struct {
	*channel.Client

	Handle  vfs.HandleID
	CanSeek bool
	Offset  int64
}

type received struct {
	msg *replyMessage
	fd  *os.File
}

type pendingCall struct {
	replies chan received
	done    chan struct{}
}

// Client is a control connection to the daemon. It is safe for concurrent
// use; calls are matched to replies by XID.
type Client struct {
	conn       *net.UnixConn
	maxMessage uint32

	writeMu sync.Mutex

	mu      sync.Mutex
	xid     uint32
	calls   map[uint32]*pendingCall
	closed  bool
	readErr error

	readerDone chan struct{}
}

// Dial connects to the control socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unixpacket", path)
	if err != nil {
		return nil, vfs.FromOS(err, path)
	}

	return newClient(conn.(*net.UnixConn)), nil
}

func newClient(conn *net.UnixConn) *Client {
	c := &Client{
		conn:       conn,
		maxMessage: DefaultMaxMessageSize,
		calls:      make(map[uint32]*pendingCall),
		readerDone: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close drops the connection. In-flight calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	<-c.readerDone
	return err
}

func (c *Client) readLoop() {
	defer close(c.readerDone)

	buf := make([]byte, c.maxMessage)
	for {
		n, fd, err := channel.ReceiveWithFD(c.conn, buf)
		if err == nil && n == 0 {
			err = vfs.NewError(vfs.ErrClosed, "control connection closed")
		}
		if err != nil {
			if fd != nil {
				_ = fd.Close()
			}
			c.fail(err)
			return
		}

		var msg replyMessage
		if err := wire.Unmarshal(buf[:n], &msg); err != nil {
			logger.Debug("Control client: malformed reply: %v", err)
			if fd != nil {
				_ = fd.Close()
			}
			continue
		}

		c.mu.Lock()
		pc, ok := c.calls[msg.XID]
		if ok && msg.Status != statusPartial {
			delete(c.calls, msg.XID)
		}
		c.mu.Unlock()

		if !ok {
			if fd != nil {
				_ = fd.Close()
			}
			continue
		}

		select {
		case pc.replies <- received{msg: &msg, fd: fd}:
		case <-pc.done:
			if fd != nil {
				_ = fd.Close()
			}
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		err = vfs.NewError(vfs.ErrClosed, "client closed")
	}
	c.readErr = vfs.FromOS(err, "")
	for xid, pc := range c.calls {
		close(pc.done)
		delete(c.calls, xid)
	}
}

// start sends a call and registers it for replies.
func (c *Client) start(proc uint32, mount, path string, args any) (uint32, *pendingCall, error) {
	body, err := encode(args)
	if err != nil {
		return 0, nil, err
	}

	pc := &pendingCall{replies: make(chan received, 8), done: make(chan struct{})}

	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return 0, nil, err
	}
	c.xid++
	xid := c.xid
	c.calls[xid] = pc
	c.mu.Unlock()

	data, err := wire.Marshal(&callMessage{XID: xid, Procedure: proc, Mount: mount, Path: path, Args: body})
	if err == nil {
		c.writeMu.Lock()
		err = channel.SendWithFD(c.conn, data, nil)
		c.writeMu.Unlock()
	}
	if err != nil {
		c.forget(xid, pc)
		return 0, nil, vfs.FromOS(err, "")
	}
	return xid, pc, nil
}

func (c *Client) forget(xid uint32, pc *pendingCall) {
	c.mu.Lock()
	if c.calls[xid] == pc {
		delete(c.calls, xid)
		close(pc.done)
	}
	c.mu.Unlock()
}

// next waits for the next reply of a call. When ctx ends first the daemon
// is asked to cancel the call.
func (c *Client) next(ctx context.Context, xid uint32, pc *pendingCall) (received, error) {
	select {
	case r := <-pc.replies:
		return r, nil
	case <-pc.done:
		select {
		case r := <-pc.replies:
			return r, nil
		default:
		}
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = vfs.NewError(vfs.ErrClosed, "call abandoned")
		}
		return received{}, err
	case <-ctx.Done():
		c.forget(xid, pc)
		if _, _, err := c.start(ProcCancel, "", "", cancelArgs{XID: xid}); err != nil {
			logger.Debug("Control client: cancel xid 0x%x: %v", xid, err)
		}
		return received{}, vfs.FromOS(ctx.Err(), "")
	}
}

// roundTrip performs a call with a single reply. Error replies are
// returned as errors together with the reply message, whose body may carry
// details; the reply's descriptor, if any, belongs to the caller.
func (c *Client) roundTrip(ctx context.Context, proc uint32, mount, path string, args any) (received, error) {
	xid, pc, err := c.start(proc, mount, path, args)
	if err != nil {
		return received{}, err
	}
	r, err := c.next(ctx, xid, pc)
	if err != nil {
		return received{}, err
	}
	if err := r.msg.err(); err != nil {
		if r.fd != nil {
			_ = r.fd.Close()
		}
		return received{msg: r.msg}, err
	}
	return r, nil
}

// callNoFD performs a call and decodes the reply body into result.
func (c *Client) callNoFD(ctx context.Context, proc uint32, mount, path string, args, result any) error {
	r, err := c.roundTrip(ctx, proc, mount, path, args)
	if err != nil {
		return err
	}
	if r.fd != nil {
		_ = r.fd.Close()
	}
	if result == nil {
		return nil
	}
	if err := wire.Unmarshal(r.msg.Body, result); err != nil {
		return vfs.NewError(vfs.ErrInvalidReply, "invalid return value: %v", err)
	}
	return nil
}

// ============================================================================
// Procedures
// ============================================================================

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.callNoFD(ctx, ProcNull, "", "", nil, nil)
}

// Mount mounts spec and returns the canonical mount descriptor.
func (c *Client) Mount(ctx context.Context, spec *vfs.MountSpec) (*MountInfo, error) {
	var info MountInfo
	if err := c.callNoFD(ctx, ProcMount, "", "", mountArgs{Spec: spec.String()}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Unmount(ctx context.Context, mount string) error {
	return c.callNoFD(ctx, ProcUnmount, mount, "", nil, nil)
}

// Mounts lists the mounted backends.
func (c *Client) Mounts(ctx context.Context) ([]MountInfo, error) {
	var res listMountsResult
	if err := c.callNoFD(ctx, ProcListMounts, "", "", nil, &res); err != nil {
		return nil, err
	}
	return res.Mounts, nil
}

func (c *Client) open(ctx context.Context, proc uint32, mount, path string, args any) (*Stream, error) {
	r, err := c.roundTrip(ctx, proc, mount, path, args)
	if err != nil {
		return nil, err
	}

	var res openResult
	if err := wire.Unmarshal(r.msg.Body, &res); err != nil {
		if r.fd != nil {
			_ = r.fd.Close()
		}
		return nil, vfs.NewError(vfs.ErrInvalidReply, "invalid return value from open")
	}
	if r.fd == nil {
		return nil, vfs.NewError(vfs.ErrIO, "didn't get stream file descriptor")
	}

	cl, err := channel.NewClient(r.fd)
	if err != nil {
		return nil, vfs.FromOS(err, path)
	}
	return &Stream{Client: cl, Handle: vfs.HandleID(res.Handle), CanSeek: res.CanSeek, Offset: res.Offset}, nil
}

func (c *Client) OpenForRead(ctx context.Context, mount, path string) (*Stream, error) {
	return c.open(ctx, ProcOpenForRead, mount, path, nil)
}

func (c *Client) OpenForWrite(ctx context.Context, mount, path string, mode vfs.WriteMode) (*Stream, error) {
	return c.open(ctx, ProcOpenForWrite, mount, path, openWriteArgs{Mode: uint32(mode)})
}

// CreateMonitor watches path. Events arrive on the returned stream through
// NextEvent.
func (c *Client) CreateMonitor(ctx context.Context, mount, path string, kind vfs.MonitorKind) (*Stream, error) {
	return c.open(ctx, ProcCreateMonitor, mount, path, createMonitorArgs{Kind: uint32(kind)})
}

// Enumerate lists a directory. Entries received before a failure are
// returned along with the error.
func (c *Client) Enumerate(ctx context.Context, mount, path, attributes string, flags vfs.QueryFlags) ([]*attr.FileInfo, error) {
	xid, pc, err := c.start(ProcEnumerate, mount, path, queryArgs{Attributes: attributes, Flags: uint32(flags)})
	if err != nil {
		return nil, err
	}

	var infos []*attr.FileInfo
	for {
		r, err := c.next(ctx, xid, pc)
		if err != nil {
			return infos, err
		}
		if r.fd != nil {
			_ = r.fd.Close()
		}
		if err := r.msg.err(); err != nil {
			return infos, err
		}

		var batch enumerateBatch
		if err := wire.Unmarshal(r.msg.Body, &batch); err != nil {
			c.forget(xid, pc)
			return infos, vfs.NewError(vfs.ErrInvalidReply, "invalid enumerate batch: %v", err)
		}
		for _, w := range batch.Infos {
			infos = append(infos, fromWireInfo(w))
		}
		if r.msg.Status == statusOK {
			return infos, nil
		}
	}
}

func (c *Client) QueryInfo(ctx context.Context, mount, path, attributes string, flags vfs.QueryFlags) (*attr.FileInfo, error) {
	var res wireInfo
	if err := c.callNoFD(ctx, ProcQueryInfo, mount, path, queryArgs{Attributes: attributes, Flags: uint32(flags)}, &res); err != nil {
		return nil, err
	}
	return fromWireInfo(res), nil
}

func (c *Client) QueryFSInfo(ctx context.Context, mount, path, attributes string) (*attr.FileInfo, error) {
	var res wireInfo
	if err := c.callNoFD(ctx, ProcQueryFSInfo, mount, path, queryArgs{Attributes: attributes}, &res); err != nil {
		return nil, err
	}
	return fromWireInfo(res), nil
}

// SetDisplayName renames path and returns its new path.
func (c *Client) SetDisplayName(ctx context.Context, mount, path, name string) (string, error) {
	var res setDisplayNameResult
	if err := c.callNoFD(ctx, ProcSetDisplayName, mount, path, setDisplayNameArgs{Name: name}, &res); err != nil {
		return "", err
	}
	return res.Path, nil
}

// SetAttributes applies info to path and returns the set with per-attribute
// statuses filled in. When some attributes fail, the set is returned along
// with the first error.
func (c *Client) SetAttributes(ctx context.Context, mount, path string, info *attr.FileInfo, flags vfs.QueryFlags) (*attr.FileInfo, error) {
	args := setAttributesArgs{Attrs: attr.ToWire(info, attrErrCode), Flags: uint32(flags)}
	r, callErr := c.roundTrip(ctx, ProcSetAttributes, mount, path, args)
	if r.fd != nil {
		_ = r.fd.Close()
	}
	if r.msg == nil || (callErr != nil && len(r.msg.Body) == 0) {
		return nil, callErr
	}

	var res wireInfo
	if err := wire.Unmarshal(r.msg.Body, &res); err != nil {
		if callErr != nil {
			return nil, callErr
		}
		return nil, vfs.NewError(vfs.ErrInvalidReply, "invalid return value: %v", err)
	}
	return fromWireInfo(res), callErr
}

func (c *Client) Delete(ctx context.Context, mount, path string) error {
	return c.callNoFD(ctx, ProcDelete, mount, path, nil, nil)
}
