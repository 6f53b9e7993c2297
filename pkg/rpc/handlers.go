package rpc

import (
	"context"
	"os"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/internal/wire"
	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/job"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// enumerateChunk is the number of entries per partial enumerate reply.
const enumerateChunk = 64

var errTooLarge = vfs.NewError(vfs.ErrInvalidReply, "reply exceeds the maximum message size")

type procedure struct {
	Name    string
	Handler func(c *connection, call *callMessage)
}

// procedures is the dispatch table, indexed by procedure number.
var procedures = map[uint32]procedure{
	ProcNull:           {"NULL", handleNull},
	ProcMount:          {"MOUNT", handleMount},
	ProcUnmount:        {"UNMOUNT", handleUnmount},
	ProcListMounts:     {"LIST_MOUNTS", handleListMounts},
	ProcOpenForRead:    {"OPEN_FOR_READ", handleOpenForRead},
	ProcOpenForWrite:   {"OPEN_FOR_WRITE", handleOpenForWrite},
	ProcEnumerate:      {"ENUMERATE", handleEnumerate},
	ProcQueryInfo:      {"QUERY_INFO", handleQueryInfo},
	ProcQueryFSInfo:    {"QUERY_FS_INFO", handleQueryFSInfo},
	ProcSetDisplayName: {"SET_DISPLAY_NAME", handleSetDisplayName},
	ProcSetAttributes:  {"SET_ATTRIBUTES", handleSetAttributes},
	ProcDelete:         {"DELETE", handleDelete},
	ProcCreateMonitor:  {"CREATE_MONITOR", handleCreateMonitor},
	ProcCancel:         {"CANCEL", handleCancel},
}

func (c *connection) dispatch(call *callMessage) {
	proc, ok := procedures[call.Procedure]
	if !ok {
		logger.Debug("Control connection %d: unknown procedure %d", c.id, call.Procedure)
		c.send(errorReply(call.XID, vfs.NewError(vfs.ErrNotSupported, "unknown procedure %d", call.Procedure)), nil)
		return
	}

	logger.Debug("RPC %s: xid=0x%x mount=%q path=%q", proc.Name, call.XID, call.Mount, call.Path)
	proc.Handler(c, call)
}

// ============================================================================
// Helpers
// ============================================================================

func (c *connection) decodeArgs(call *callMessage, v any) bool {
	if err := wire.Unmarshal(call.Args, v); err != nil {
		c.send(errorReply(call.XID, vfs.NewError(vfs.ErrInvalidArgument, "malformed arguments: %v", err)), nil)
		return false
	}
	return true
}

func (c *connection) reply(xid uint32, body any, fd *os.File) {
	data, err := encode(body)
	if err != nil {
		if fd != nil {
			_ = fd.Close()
		}
		c.send(errorReply(xid, vfs.NewError(vfs.ErrInvalidReply, "%v", err)), nil)
		return
	}
	c.send(&replyMessage{XID: xid, Status: statusOK, Body: data}, fd)
}

// resultFunc builds the reply body, and optionally the descriptor to hand
// off, once a job has succeeded.
type resultFunc func() (body any, fd *os.File, err error)

// submit runs op as a job and replies when it finishes.
func (c *connection) submit(call *callMessage, op job.Operation, result resultFunc) {
	ctx, end := c.begin(call.XID)
	c.server.dispatcher.SubmitContext(ctx, call.Mount, op, func(j *job.Job) {
		defer end()

		if err := j.Err(); err != nil {
			c.send(errorReply(call.XID, err), nil)
			return
		}
		if result == nil {
			c.reply(call.XID, nil, nil)
			return
		}
		body, fd, err := result()
		if err != nil {
			c.send(errorReply(call.XID, err), nil)
			return
		}
		c.reply(call.XID, body, fd)
	})
}

// submitWithStatus runs op as a job whose reply body is built by body
// whether or not the job failed. On failure the body rides on the error
// reply, so callers can inspect partial results.
func (c *connection) submitWithStatus(call *callMessage, op job.Operation, body func() any) {
	ctx, end := c.begin(call.XID)
	c.server.dispatcher.SubmitContext(ctx, call.Mount, op, func(j *job.Job) {
		defer end()

		err := j.Err()
		if err == nil {
			c.reply(call.XID, body(), nil)
			return
		}

		r := errorReply(call.XID, err)
		if data, encErr := encode(body()); encErr == nil {
			r.Body = data
		} else {
			logger.Debug("Control connection %d: dropping %s error detail: %v", c.id, j.Operation().Kind(), encErr)
		}
		c.send(r, nil)
	})
}

// async runs fn off the read loop for calls that are not jobs.
func (c *connection) async(call *callMessage, fn func(ctx context.Context) (any, error)) {
	ctx, end := c.begin(call.XID)
	go func() {
		defer end()

		body, err := fn(ctx)
		if err != nil {
			c.send(errorReply(call.XID, err), nil)
			return
		}
		c.reply(call.XID, body, nil)
	}()
}

func openedResult(o *job.Opened) resultFunc {
	return func() (any, *os.File, error) {
		f, err := o.Remote()
		if err != nil {
			return nil, nil, err
		}
		return openResult{Handle: uint32(o.Handle), CanSeek: o.CanSeek, Offset: o.Offset}, f, nil
	}
}

// ============================================================================
// Mount procedures
// ============================================================================

func handleNull(c *connection, call *callMessage) {
	c.reply(call.XID, nil, nil)
}

func handleMount(c *connection, call *callMessage) {
	var args mountArgs
	if !c.decodeArgs(call, &args) {
		return
	}
	c.async(call, func(ctx context.Context) (any, error) {
		return c.server.mountSpec(ctx, args.Spec)
	})
}

func handleUnmount(c *connection, call *callMessage) {
	c.async(call, func(ctx context.Context) (any, error) {
		return nil, c.server.dispatcher.Unmount(call.Mount)
	})
}

func handleListMounts(c *connection, call *callMessage) {
	c.async(call, func(ctx context.Context) (any, error) {
		var res listMountsResult
		for _, m := range c.server.dispatcher.Mounts() {
			if b, ok := c.server.dispatcher.Lookup(m); ok {
				res.Mounts = append(res.Mounts, mountInfo(m, b.Core().Info()))
			}
		}
		return res, nil
	})
}

// ============================================================================
// Job procedures
// ============================================================================

func handleOpenForRead(c *connection, call *callMessage) {
	op := &job.OpenForRead{Path: call.Path}
	c.submit(call, op, openedResult(&op.Opened))
}

func handleOpenForWrite(c *connection, call *callMessage) {
	var args openWriteArgs
	if !c.decodeArgs(call, &args) {
		return
	}
	op := &job.OpenForWrite{Path: call.Path, Mode: vfs.WriteMode(args.Mode)}
	c.submit(call, op, openedResult(&op.Opened))
}

func handleCreateMonitor(c *connection, call *callMessage) {
	var args createMonitorArgs
	if !c.decodeArgs(call, &args) {
		return
	}
	op := &job.CreateMonitor{Path: call.Path, MonitorKind: vfs.MonitorKind(args.Kind)}
	c.submit(call, op, openedResult(&op.Opened))
}

// enumerateSink streams entries to the client as partial replies.
type enumerateSink struct {
	c   *connection
	xid uint32
}

func (s *enumerateSink) Add(infos ...*attr.FileInfo) {
	for len(infos) > 0 {
		n := min(len(infos), enumerateChunk)
		batch := enumerateBatch{Infos: make([]wireInfo, 0, n)}
		for _, fi := range infos[:n] {
			batch.Infos = append(batch.Infos, toWireInfo(fi))
		}
		infos = infos[n:]

		data, err := encode(batch)
		if err != nil {
			logger.Warn("Control connection %d: encode enumerate batch: %v", s.c.id, err)
			continue
		}
		s.c.send(&replyMessage{XID: s.xid, Status: statusPartial, Body: data}, nil)
	}
}

func handleEnumerate(c *connection, call *callMessage) {
	var args queryArgs
	if !c.decodeArgs(call, &args) {
		return
	}
	op := &job.Enumerate{
		Path:    call.Path,
		Matcher: attr.NewMatcher(args.Attributes),
		Flags:   vfs.QueryFlags(args.Flags),
		Sink:    &enumerateSink{c: c, xid: call.XID},
	}
	c.submit(call, op, func() (any, *os.File, error) {
		return enumerateBatch{}, nil, nil
	})
}

func handleQueryInfo(c *connection, call *callMessage) {
	var args queryArgs
	if !c.decodeArgs(call, &args) {
		return
	}
	op := &job.QueryInfo{Path: call.Path, Matcher: attr.NewMatcher(args.Attributes), Flags: vfs.QueryFlags(args.Flags)}
	c.submit(call, op, func() (any, *os.File, error) {
		return toWireInfo(op.Info), nil, nil
	})
}

func handleQueryFSInfo(c *connection, call *callMessage) {
	var args queryArgs
	if !c.decodeArgs(call, &args) {
		return
	}
	op := &job.QueryFSInfo{Path: call.Path, Matcher: attr.NewMatcher(args.Attributes)}
	c.submit(call, op, func() (any, *os.File, error) {
		return toWireInfo(op.Info), nil, nil
	})
}

func handleSetDisplayName(c *connection, call *callMessage) {
	var args setDisplayNameArgs
	if !c.decodeArgs(call, &args) {
		return
	}
	op := &job.SetDisplayName{Path: call.Path, Name: args.Name}
	c.submit(call, op, func() (any, *os.File, error) {
		return setDisplayNameResult{Path: op.NewPath}, nil, nil
	})
}

func handleSetAttributes(c *connection, call *callMessage) {
	var args setAttributesArgs
	if !c.decodeArgs(call, &args) {
		return
	}
	info := fromWireInfo(wireInfo{Attrs: args.Attrs})
	info.ResetStatuses()
	op := &job.SetAttributes{Path: call.Path, Info: info, Flags: vfs.QueryFlags(args.Flags)}
	c.submitWithStatus(call, op, func() any {
		return toWireInfo(op.Info)
	})
}

func handleDelete(c *connection, call *callMessage) {
	c.submit(call, &job.Delete{Path: call.Path}, nil)
}

func handleCancel(c *connection, call *callMessage) {
	var args cancelArgs
	if !c.decodeArgs(call, &args) {
		return
	}
	if !c.cancelCall(args.XID) {
		logger.Debug("Control connection %d: cancel for unknown xid 0x%x", c.id, args.XID)
	}
	c.reply(call.XID, nil, nil)
}
