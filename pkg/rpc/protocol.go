// Package rpc implements the control transport of the daemon: a Unix
// SOCK_SEQPACKET socket carrying one XDR message per packet.
//
// Each call names a procedure, a mount and a backend path and carries
// procedure specific XDR arguments. Replies echo the call's XID. Calls that
// open a handle receive the client end of the handle's data channel as
// SCM_RIGHTS ancillary data on the reply packet. Enumerate replies stream:
// zero or more partial replies carrying entry batches precede the final
// reply.
package rpc

import (
	"errors"
	"syscall"

	"github.com/marmos91/dittovfs/internal/wire"
	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// Procedure numbers.
const (
	ProcNull uint32 = iota
	ProcMount
	ProcUnmount
	ProcListMounts
	ProcOpenForRead
	ProcOpenForWrite
	ProcEnumerate
	ProcQueryInfo
	ProcQueryFSInfo
	ProcSetDisplayName
	ProcSetAttributes
	ProcDelete
	ProcCreateMonitor
	ProcCancel
)

// Reply status values.
const (
	statusOK uint32 = iota
	statusError
	// statusPartial marks a non-final enumerate batch.
	statusPartial
)

// DefaultMaxMessageSize bounds a single control packet.
const DefaultMaxMessageSize = 1 << 20

// callMessage is the header of every request packet.
type callMessage struct {
	XID       uint32
	Procedure uint32
	Mount     string
	Path      string
	Args      []byte
}

// replyMessage answers a call.
type replyMessage struct {
	XID     uint32
	Status  uint32
	Code    uint32
	Errno   uint32
	Message string
	Body    []byte
}

func (r *replyMessage) err() error {
	if r.Status != statusError {
		return nil
	}
	return &vfs.Error{Code: vfs.ErrorCode(r.Code), Message: r.Message, Errno: syscall.Errno(r.Errno)}
}

func errorReply(xid uint32, err error) *replyMessage {
	r := &replyMessage{XID: xid, Status: statusError, Code: uint32(vfs.CodeOf(err)), Message: err.Error()}
	var verr *vfs.Error
	if errors.As(err, &verr) {
		r.Errno = uint32(verr.Errno)
		if verr.Message != "" {
			r.Message = verr.Message
		}
	}
	return r
}

// Procedure arguments and results.

type mountArgs struct {
	Spec string
}

// MountInfo describes a mounted backend.
type MountInfo struct {
	Mount       string
	DisplayName string
	Icon        string
	UserVisible bool
}

type listMountsResult struct {
	Mounts []MountInfo
}

type openWriteArgs struct {
	Mode uint32
}

type openResult struct {
	Handle  uint32
	CanSeek bool
	Offset  int64
}

type queryArgs struct {
	Attributes string
	Flags      uint32
}

type wireInfo struct {
	Attrs []attr.WireAttribute
}

type enumerateBatch struct {
	Infos []wireInfo
}

type setDisplayNameArgs struct {
	Name string
}

type setDisplayNameResult struct {
	Path string
}

type setAttributesArgs struct {
	Attrs []attr.WireAttribute
	Flags uint32
}

type createMonitorArgs struct {
	Kind uint32
}

type cancelArgs struct {
	XID uint32
}

func attrErrCode(err error) uint32 {
	return uint32(vfs.CodeOf(err))
}

func attrErrFromCode(code uint32) error {
	return &vfs.Error{Code: vfs.ErrorCode(code)}
}

func toWireInfo(fi *attr.FileInfo) wireInfo {
	return wireInfo{Attrs: attr.ToWire(fi, attrErrCode)}
}

func fromWireInfo(w wireInfo) *attr.FileInfo {
	return attr.FromWire(w.Attrs, attrErrFromCode)
}

func encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return wire.Marshal(v)
}
