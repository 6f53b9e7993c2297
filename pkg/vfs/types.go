package vfs

import (
	"path"
	"strings"
)

// HandleID is the caller-opaque identifier of an open stream or monitor.
// Ids are never reused within a backend instance.
type HandleID uint32

// QueryFlags modify info queries.
type QueryFlags uint32

const (
	// QueryNoFollowSymlinks reports a symlink itself instead of its target
	QueryNoFollowSymlinks QueryFlags = 1 << iota
)

// FollowSymlinks reports whether the query follows symlinks.
func (f QueryFlags) FollowSymlinks() bool {
	return f&QueryNoFollowSymlinks == 0
}

// WriteMode selects how open_for_write treats an existing file.
type WriteMode uint32

const (
	// WriteCreate fails with ErrExists if the file exists
	WriteCreate WriteMode = iota
	// WriteAppend positions at the end of an existing file
	WriteAppend
	// WriteReplace truncates an existing file
	WriteReplace
)

func (m WriteMode) String() string {
	switch m {
	case WriteCreate:
		return "create"
	case WriteAppend:
		return "append"
	case WriteReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Whence values for seek operations, matching io.Seek*.
const (
	SeekSet uint32 = 0
	SeekCur uint32 = 1
	SeekEnd uint32 = 2
)

// MonitorKind selects what create_monitor watches.
type MonitorKind uint32

const (
	MonitorDirectory MonitorKind = iota
	MonitorFile
)

// CleanPath normalizes a backend path to an absolute, slash-separated form.
// The empty path becomes "/".
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// IsRoot reports whether p addresses the mount root.
func IsRoot(p string) bool {
	return CleanPath(p) == "/"
}
