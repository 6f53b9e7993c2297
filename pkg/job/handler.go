package job

import (
	"context"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/channel"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// streamHandler serves a read or write data channel by turning each request
// into a job on the owning mount. The channel runs one request at a time,
// so jobs for one handle complete in the order the client sent them.
type streamHandler struct {
	d      *Dispatcher
	mount  string
	handle vfs.HandleID
	dir    channel.Direction
}

func (h *streamHandler) Serve(ctx context.Context, req *channel.Request) *channel.Reply {
	write := h.dir == channel.DirectionWrite

	switch req.Command {
	case channel.CmdRead:
		count := int(req.Count)
		if count > h.d.cfg.MaxReadSize {
			count = h.d.cfg.MaxReadSize
		}
		op := &Read{Handle: h.handle, Count: count}
		if err := h.d.execute(ctx, h.mount, op); err != nil {
			return channel.ErrorReply(req.Seq, err)
		}
		h.d.metrics.RecordBytesTransferred("read", uint64(len(op.Data)))
		return &channel.Reply{Type: channel.ReplyData, Data: op.Data}

	case channel.CmdWrite:
		op := &Write{Handle: h.handle, Data: req.Data}
		if err := h.d.execute(ctx, h.mount, op); err != nil {
			return channel.ErrorReply(req.Seq, err)
		}
		h.d.metrics.RecordBytesTransferred("write", uint64(op.Written))
		return &channel.Reply{Type: channel.ReplyWritten, Value: int64(op.Written)}

	case channel.CmdSeek:
		op := &Seek{Handle: h.handle, Offset: req.Offset, Whence: req.Whence, Write: write}
		if err := h.d.execute(ctx, h.mount, op); err != nil {
			return channel.ErrorReply(req.Seq, err)
		}
		return &channel.Reply{Type: channel.ReplySeekPos, Value: op.Position}

	case channel.CmdClose:
		op := &Close{Handle: h.handle, Write: write}
		if err := h.d.execute(ctx, h.mount, op); err != nil {
			return channel.ErrorReply(req.Seq, err)
		}
		return &channel.Reply{Type: channel.ReplyClosed, Text: op.ETag}
	}

	return channel.ErrorReply(req.Seq, vfs.NewError(vfs.ErrInvalidArgument, "unknown command %d", req.Command))
}

// Release closes the handle when the channel ended without a close request.
func (h *streamHandler) Release(ctx context.Context) {
	op := &Close{Handle: h.handle, Write: h.dir == channel.DirectionWrite}
	if err := h.d.execute(ctx, h.mount, op); err != nil && !vfs.IsCode(err, vfs.ErrInvalidHandle) {
		logger.Debug("Releasing handle %d on %s: %v", h.handle, h.mount, err)
	}
}
