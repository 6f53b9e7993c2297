// Package backend defines the capability contract every mount type
// implements.
//
// A backend embeds *Base (identity, user-visible metadata and the handle
// table) and implements any subset of the capability interfaces below. Each
// capability comes in two optional forms: a blocking "run" method that
// receives a context and may perform I/O, and a non-blocking "Try" method
// that either completes immediately or returns ErrWouldBlock. The job layer
// uses the Try form first when present and falls back to the run form on a
// worker. A backend that implements neither form of a capability does not
// support the operation.
//
// Handle values returned by the open methods are opaque to the job layer;
// they are stored in the backend's HandleTable and passed back unchanged to
// the read/write/seek/close methods.
package backend

import (
	"context"
	"errors"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// ErrWouldBlock is returned by Try methods that cannot complete without
// blocking. The operation is then run on a worker.
var ErrWouldBlock = errors.New("operation would block")

// Backend is the minimal contract: mounting and access to shared state.
type Backend interface {
	// Mount validates spec and returns the canonical mount descriptor. It
	// runs once, before the backend becomes routable.
	Mount(ctx context.Context, spec *vfs.MountSpec) (*vfs.MountSpec, error)

	// Core returns the shared identity and handle table. Backends get it
	// by embedding *Base.
	Core() *Base
}

// OpenResult is returned by the open methods.
type OpenResult struct {
	// Handle is the backend-private stream state.
	Handle any

	// CanSeek enables seek requests on the data channel.
	CanSeek bool

	// Offset is the initial stream position (non-zero for appends).
	Offset int64
}

// EnumerateSink receives enumeration results as they are produced.
type EnumerateSink interface {
	Add(infos ...*attr.FileInfo)
}

type ReadOpener interface {
	OpenForRead(ctx context.Context, path string) (*OpenResult, error)
}

type ReadOpenTrier interface {
	TryOpenForRead(path string) (*OpenResult, error)
}

// Reader reads into buf. Zero bytes with a nil error means end of file.
type Reader interface {
	Read(ctx context.Context, handle any, buf []byte) (int, error)
}

type ReadTrier interface {
	TryRead(handle any, buf []byte) (int, error)
}

type ReadSeeker interface {
	SeekOnRead(ctx context.Context, handle any, offset int64, whence uint32) (int64, error)
}

type ReadSeekTrier interface {
	TrySeekOnRead(handle any, offset int64, whence uint32) (int64, error)
}

type ReadCloser interface {
	CloseRead(ctx context.Context, handle any) error
}

type ReadCloseTrier interface {
	TryCloseRead(handle any) error
}

type WriteOpener interface {
	OpenForWrite(ctx context.Context, path string, mode vfs.WriteMode) (*OpenResult, error)
}

type WriteOpenTrier interface {
	TryOpenForWrite(path string, mode vfs.WriteMode) (*OpenResult, error)
}

type Writer interface {
	Write(ctx context.Context, handle any, data []byte) (int, error)
}

type WriteTrier interface {
	TryWrite(handle any, data []byte) (int, error)
}

type WriteSeeker interface {
	SeekOnWrite(ctx context.Context, handle any, offset int64, whence uint32) (int64, error)
}

type WriteSeekTrier interface {
	TrySeekOnWrite(handle any, offset int64, whence uint32) (int64, error)
}

// WriteCloser finishes a write stream and returns the new etag, if known.
type WriteCloser interface {
	CloseWrite(ctx context.Context, handle any) (string, error)
}

type WriteCloseTrier interface {
	TryCloseWrite(handle any) (string, error)
}

// Enumerator lists a directory into sink. Entries already added stay valid
// when an error is returned later.
type Enumerator interface {
	Enumerate(ctx context.Context, path string, m *attr.Matcher, flags vfs.QueryFlags, sink EnumerateSink) error
}

type EnumerateTrier interface {
	TryEnumerate(path string, m *attr.Matcher, flags vfs.QueryFlags, sink EnumerateSink) error
}

type InfoQuerier interface {
	QueryInfo(ctx context.Context, path string, m *attr.Matcher, flags vfs.QueryFlags) (*attr.FileInfo, error)
}

type InfoQueryTrier interface {
	TryQueryInfo(path string, m *attr.Matcher, flags vfs.QueryFlags) (*attr.FileInfo, error)
}

type FSInfoQuerier interface {
	QueryFSInfo(ctx context.Context, path string, m *attr.Matcher) (*attr.FileInfo, error)
}

type FSInfoQueryTrier interface {
	TryQueryFSInfo(path string, m *attr.Matcher) (*attr.FileInfo, error)
}

// DisplayNameSetter renames an entry within its directory and returns the
// new path.
type DisplayNameSetter interface {
	SetDisplayName(ctx context.Context, path, name string) (string, error)
}

type DisplayNameSetTrier interface {
	TrySetDisplayName(path, name string) (string, error)
}

// AttributeSetter applies every attribute in info and records a status per
// attribute in it. The first failure is returned.
type AttributeSetter interface {
	SetAttributes(ctx context.Context, path string, info *attr.FileInfo, flags vfs.QueryFlags) error
}

type AttributeSetTrier interface {
	TrySetAttributes(path string, info *attr.FileInfo, flags vfs.QueryFlags) error
}

type Deleter interface {
	Delete(ctx context.Context, path string) error
}

type DeleteTrier interface {
	TryDelete(path string) error
}

type MonitorCreator interface {
	CreateMonitor(ctx context.Context, path string, kind vfs.MonitorKind) (Monitor, error)
}

type MonitorCreateTrier interface {
	TryCreateMonitor(path string, kind vfs.MonitorKind) (Monitor, error)
}
