package channel

import (
	"errors"
	"syscall"

	"github.com/marmos91/dittovfs/pkg/vfs"
)

// Request commands sent by the client.
const (
	CmdRead uint32 = iota
	CmdWrite
	CmdSeek
	CmdClose
	CmdCancel
)

// Reply types sent by the daemon.
const (
	// ReplyData carries bytes read. An empty Data means end of file.
	ReplyData uint32 = iota
	// ReplyWritten carries the number of bytes written in Value.
	ReplyWritten
	// ReplySeekPos carries the new offset in Value.
	ReplySeekPos
	// ReplyClosed is the final success frame. Text holds the etag after a
	// write channel closes.
	ReplyClosed
	// ReplyError carries a failure. It is final when Final is set.
	ReplyError
	// ReplyEvent carries a monitor event: Value is the event type, Text the
	// path and Data the other path of a move.
	ReplyEvent
)

// Request is one client command.
type Request struct {
	Command uint32
	Seq     uint32
	Count   uint32
	Whence  uint32
	Offset  int64
	Data    []byte
}

// Reply answers a Request (same Seq) or, for events, is unsolicited.
type Reply struct {
	Type    uint32
	Seq     uint32
	Value   int64
	Data    []byte
	Text    string
	Code    uint32
	Errno   uint32
	Message string
	Final   bool
}

// ErrorReply builds an error frame for err.
func ErrorReply(seq uint32, err error) *Reply {
	r := &Reply{Type: ReplyError, Seq: seq, Code: uint32(vfs.CodeOf(err)), Message: err.Error()}
	var verr *vfs.Error
	if errors.As(err, &verr) {
		r.Errno = uint32(verr.Errno)
		if verr.Message != "" {
			r.Message = verr.Message
		}
	}
	return r
}

// Err converts an error frame back to a *vfs.Error. It returns nil for
// other frame types.
func (r *Reply) Err() error {
	if r.Type != ReplyError {
		return nil
	}
	return &vfs.Error{Code: vfs.ErrorCode(r.Code), Message: r.Message, Errno: syscall.Errno(r.Errno)}
}
