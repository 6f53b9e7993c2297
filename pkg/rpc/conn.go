package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/internal/wire"
	"github.com/marmos91/dittovfs/pkg/channel"
)

// outbound is one queued reply packet. fd, if set, is attached to the
// packet and closed once sent.
type outbound struct {
	msg *replyMessage
	fd  *os.File
}

// connection serves one control client. Calls are read in order and
// executed concurrently; replies are queued and written by a single writer
// goroutine so job completions never block on the socket.
type connection struct {
	id     uint64
	server *Server
	conn   *net.UnixConn

	ctx    context.Context
	cancel context.CancelFunc

	outMu     sync.Mutex
	outCond   *sync.Cond
	out       []outbound
	outClosed bool

	callsMu sync.Mutex
	calls   map[uint32]*trackedCall
	pending sync.WaitGroup
}

func newConnection(s *Server, id uint64, uc *net.UnixConn) *connection {
	c := &connection{
		id:     id,
		server: s,
		conn:   uc,
		calls:  make(map[uint32]*trackedCall),
	}
	c.outCond = sync.NewCond(&c.outMu)
	return c
}

func (c *connection) serve(parent context.Context) {
	c.ctx, c.cancel = context.WithCancel(parent)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	stopWatch := context.AfterFunc(c.ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in control connection %d: %v", c.id, r)
		}
		stopWatch()
		c.cancel()
		c.pending.Wait()
		c.closeOut()
		<-writerDone
		_ = c.conn.Close()
	}()

	buf := make([]byte, c.server.config.MaxMessageSize)
	for {
		n, fd, err := channel.ReceiveWithFD(c.conn, buf)
		if fd != nil {
			_ = fd.Close()
		}
		if err == nil && n == 0 {
			err = io.EOF
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				logger.Debug("Control connection %d closed by client", c.id)
			case c.ctx.Err() != nil:
				logger.Debug("Control connection %d closed: %v", c.id, c.ctx.Err())
			default:
				logger.Debug("Control connection %d read error: %v", c.id, err)
			}
			return
		}

		var call callMessage
		if err := wire.Unmarshal(buf[:n], &call); err != nil {
			logger.Debug("Control connection %d: malformed call: %v", c.id, err)
			continue
		}

		if call.Procedure != ProcCancel {
			if d := c.server.limiter.Delay(); d > 0 {
				logger.Debug("Control connection %d: xid 0x%x throttled for %v", c.id, call.XID, d)
			}
			if err := c.server.limiter.Wait(c.ctx); err != nil {
				return
			}
		}

		c.dispatch(&call)
	}
}

// ============================================================================
// Outbound queue
// ============================================================================

func (c *connection) send(msg *replyMessage, fd *os.File) {
	c.outMu.Lock()
	if c.outClosed {
		c.outMu.Unlock()
		if fd != nil {
			_ = fd.Close()
		}
		return
	}
	c.out = append(c.out, outbound{msg: msg, fd: fd})
	c.outMu.Unlock()
	c.outCond.Signal()
}

func (c *connection) closeOut() {
	c.outMu.Lock()
	c.outClosed = true
	c.outMu.Unlock()
	c.outCond.Signal()
}

func (c *connection) writeLoop() {
	broken := false
	for {
		c.outMu.Lock()
		for len(c.out) == 0 && !c.outClosed {
			c.outCond.Wait()
		}
		if len(c.out) == 0 {
			c.outMu.Unlock()
			return
		}
		batch := c.out
		c.out = nil
		c.outMu.Unlock()

		for _, o := range batch {
			if !broken {
				if err := c.write(o); err != nil {
					logger.Debug("Control connection %d: send reply xid=0x%x: %v", c.id, o.msg.XID, err)
					broken = true
				}
			}
			if o.fd != nil {
				_ = o.fd.Close()
			}
		}
	}
}

func (c *connection) write(o outbound) error {
	data, err := wire.Marshal(o.msg)
	if err != nil {
		return err
	}
	if uint32(len(data)) > c.server.config.MaxMessageSize {
		logger.Warn("Control connection %d: reply xid=0x%x of %d bytes exceeds the message limit",
			c.id, o.msg.XID, len(data))
		data, err = wire.Marshal(errorReply(o.msg.XID, errTooLarge))
		if err != nil {
			return err
		}
		if o.fd != nil {
			_ = o.fd.Close()
			o.fd = nil
		}
	}
	return channel.SendWithFD(c.conn, data, o.fd)
}

// ============================================================================
// Call tracking
// ============================================================================

// trackedCall is an in-flight call that ProcCancel can reach.
type trackedCall struct {
	cancel context.CancelFunc
}

// begin registers a call. The returned context is cancelled by ProcCancel,
// by connection shutdown, or by the returned end func, which must be called
// exactly once when the call has replied.
func (c *connection) begin(xid uint32) (context.Context, func()) {
	ctx, cancel := context.WithCancel(c.ctx)
	tc := &trackedCall{cancel: cancel}
	c.pending.Add(1)

	c.callsMu.Lock()
	c.calls[xid] = tc
	c.callsMu.Unlock()

	return ctx, func() {
		c.callsMu.Lock()
		if c.calls[xid] == tc {
			delete(c.calls, xid)
		}
		c.callsMu.Unlock()
		cancel()
		c.pending.Done()
	}
}

func (c *connection) cancelCall(xid uint32) bool {
	c.callsMu.Lock()
	defer c.callsMu.Unlock()

	tc, ok := c.calls[xid]
	if ok {
		tc.cancel()
	}
	return ok
}
