package job

import (
	"context"
	"errors"

	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// Kind names an operation.
type Kind string

const (
	KindOpenForRead    Kind = "open-for-read"
	KindRead           Kind = "read"
	KindSeekOnRead     Kind = "seek-on-read"
	KindCloseRead      Kind = "close-read"
	KindOpenForWrite   Kind = "open-for-write"
	KindWrite          Kind = "write"
	KindSeekOnWrite    Kind = "seek-on-write"
	KindCloseWrite     Kind = "close-write"
	KindEnumerate      Kind = "enumerate"
	KindQueryInfo      Kind = "query-info"
	KindQueryFSInfo    Kind = "query-fs-info"
	KindSetDisplayName Kind = "set-display-name"
	KindSetAttributes  Kind = "set-attributes"
	KindDelete         Kind = "delete"
	KindCreateMonitor  Kind = "create-monitor"
)

// Operation is the work carried by a Job. Arguments are set by the caller
// before submission; results are stored on the operation by whichever form
// completes.
type Operation interface {
	Kind() Kind

	// Try attempts the operation without blocking. It returns
	// backend.ErrWouldBlock, with no side effect, when the backend has no
	// non-blocking form or that form cannot complete.
	Try(b backend.Backend) error

	// Run performs the operation and may block. It must observe ctx.
	Run(ctx context.Context, b backend.Backend) error
}

// completer is implemented by operations with a dispatcher-side step after
// the backend call succeeded, such as registering a handle and its channel.
type completer interface {
	complete(d *Dispatcher, j *Job, b backend.Backend) error
}

func notSupported(k Kind) error {
	return vfs.NewError(vfs.ErrNotSupported, "operation %s not supported by backend", k)
}

func invalidReply(k Kind, format string, args ...any) error {
	err := vfs.NewError(vfs.ErrInvalidReply, format, args...)
	err.Message = string(k) + ": " + err.Message
	return err
}

func wouldBlock(err error) bool {
	return errors.Is(err, backend.ErrWouldBlock)
}

// handleValue looks up the backend value of an open handle.
func handleValue(b backend.Backend, id vfs.HandleID) (any, error) {
	return b.Core().Handles().Get(id)
}
