package vfs

import (
	"context"
	"errors"
	"fmt"
	"syscall"
)

// Error is the domain error returned by backends, jobs and channels.
//
// Every failure that reaches a client is reduced to an Error so the
// transport can encode it as (code, errno, message) without knowing which
// layer produced it.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable description
	Message string

	// Path is the backend path related to the error (if applicable)
	Path string

	// Errno is the underlying OS error number for ErrIO and mapped errno
	// failures. Zero when the error did not originate in a system call.
	Errno syscall.Errno
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Errno != 0 {
		msg += " (" + e.Errno.Error() + ")"
	}
	return msg
}

// Is matches a bare sentinel of the same Code (no message or path), so
// errors.Is(err, &vfs.Error{Code: vfs.ErrNotFound}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Path == ""
}

// ErrorCode represents the category of a VFS error.
type ErrorCode int

const (
	// ErrNotMounted indicates the target mount is not (or no longer) routable
	ErrNotMounted ErrorCode = iota

	// ErrIsDirectory indicates the operation expected a file but got a directory
	ErrIsDirectory

	// ErrNotDirectory indicates the operation expected a directory
	ErrNotDirectory

	// ErrPermissionDenied indicates the caller may not perform the operation
	ErrPermissionDenied

	// ErrNotSupported indicates the backend does not implement the operation
	// or attribute
	ErrNotSupported

	// ErrInvalidArgument indicates malformed parameters
	ErrInvalidArgument

	// ErrNotSymbolicLink indicates a symlink-only operation hit another type
	ErrNotSymbolicLink

	// ErrIO wraps an OS failure, see Error.Errno
	ErrIO

	// ErrInvalidReply indicates a backend or transport violated its output
	// contract
	ErrInvalidReply

	// ErrNotFound indicates the path does not exist
	ErrNotFound

	// ErrExists indicates the target already exists
	ErrExists

	// ErrCancelled indicates the job was cancelled before completion
	ErrCancelled

	// ErrInvalidHandle indicates an unknown or already closed handle id
	ErrInvalidHandle

	// ErrClosed indicates the channel or mount was shut down
	ErrClosed
)

var codeNames = map[ErrorCode]string{
	ErrNotMounted:       "not mounted",
	ErrIsDirectory:      "is a directory",
	ErrNotDirectory:     "not a directory",
	ErrPermissionDenied: "permission denied",
	ErrNotSupported:     "operation not supported",
	ErrInvalidArgument:  "invalid argument",
	ErrNotSymbolicLink:  "not a symbolic link",
	ErrIO:               "i/o error",
	ErrInvalidReply:     "invalid protocol reply",
	ErrNotFound:         "no such file or directory",
	ErrExists:           "file exists",
	ErrCancelled:        "operation was cancelled",
	ErrInvalidHandle:    "invalid handle",
	ErrClosed:           "closed",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", int(c))
}

// NewError builds an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FromErrno maps an errno to the matching category, keeping the errno so the
// client can still see the OS-level cause.
func FromErrno(errno syscall.Errno, path string) *Error {
	e := &Error{Code: ErrIO, Path: path, Errno: errno}

	switch errno {
	case syscall.ENOENT:
		e.Code = ErrNotFound
	case syscall.EACCES, syscall.EPERM, syscall.EROFS:
		e.Code = ErrPermissionDenied
	case syscall.EISDIR:
		e.Code = ErrIsDirectory
	case syscall.ENOTDIR:
		e.Code = ErrNotDirectory
	case syscall.EEXIST:
		e.Code = ErrExists
	case syscall.EINVAL:
		e.Code = ErrInvalidArgument
	case syscall.ENOTSUP, syscall.ENOSYS:
		e.Code = ErrNotSupported
	case syscall.EBADF:
		e.Code = ErrInvalidHandle
	}

	e.Message = errno.Error()
	return e
}

// FromOS converts an error returned by the os or unix packages. Errors that
// already are *Error pass through unchanged.
func FromOS(err error, path string) error {
	if err == nil {
		return nil
	}

	var verr *Error
	if errors.As(err, &verr) {
		return verr
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return FromErrno(errno, path)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: ErrCancelled, Message: err.Error(), Path: path}
	}

	return &Error{Code: ErrIO, Message: err.Error(), Path: path}
}

// CodeOf returns the category of err. Context cancellation is reported as
// ErrCancelled and anything unrecognized as ErrIO.
func CodeOf(err error) ErrorCode {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCancelled
	}
	return ErrIO
}

// IsCode reports whether err carries the given category.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
