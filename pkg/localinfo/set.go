package localinfo

import (
	"os"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// SetAttribute applies a single attribute to path.
func SetAttribute(path, name string, v attr.Value, flags vfs.QueryFlags) error {
	follow := flags.FollowSymlinks()

	switch name {
	case attr.StandardSymlinkTarget:
		return setSymlink(path, v)
	case attr.UnixMode:
		return setMode(path, v, follow)
	case attr.UnixUID:
		return setOwner(path, &v, nil, follow)
	case attr.UnixGID:
		return setOwner(path, nil, &v, follow)
	case attr.TimeModified, attr.TimeModifiedUsec, attr.TimeAccess, attr.TimeAccessUsec:
		return setTimes(path, map[string]attr.Value{name: v}, follow)
	}

	ns, rest := attr.SplitName(name)
	if ns == attr.NamespaceXattr || ns == attr.NamespaceXattrSys {
		return setXattr(path, follow, ns, rest, v)
	}

	return vfs.NewError(vfs.ErrNotSupported, "setting attribute %s not supported", name)
}

// SetAttributes applies every attribute in info to path and records a
// per-attribute status in info. Attributes are applied in dependency order:
// the symlink target (which recreates the file), then owner and group, then
// the mode, then timestamps, then everything else. A failure does not stop
// the remaining attributes; the first error is returned.
func SetAttributes(path string, info *attr.FileInfo, flags vfs.QueryFlags) error {
	follow := flags.FollowSymlinks()
	handled := make(map[string]bool)
	var firstErr error

	record := func(err error, names ...string) {
		for _, name := range names {
			handled[name] = true
			if err != nil {
				info.SetAttributeError(name, err)
			} else {
				info.SetAttributeStatus(name, attr.StatusSet)
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if v, ok := info.GetAttribute(attr.StandardSymlinkTarget); ok {
		record(setSymlink(path, v), attr.StandardSymlinkTarget)
	}

	uidV, hasUID := info.GetAttribute(attr.UnixUID)
	gidV, hasGID := info.GetAttribute(attr.UnixGID)
	if hasUID || hasGID {
		var uid, gid *attr.Value
		if hasUID {
			if _, ok := uidV.AsUint32(); ok {
				uid = &uidV
			} else {
				record(errUint32Expected(), attr.UnixUID)
			}
		}
		if hasGID {
			if _, ok := gidV.AsUint32(); ok {
				gid = &gidV
			} else {
				record(errUint32Expected(), attr.UnixGID)
			}
		}

		var names []string
		if uid != nil {
			names = append(names, attr.UnixUID)
		}
		if gid != nil {
			names = append(names, attr.UnixGID)
		}
		if len(names) > 0 {
			record(setOwner(path, uid, gid, follow), names...)
		}
	}

	if v, ok := info.GetAttribute(attr.UnixMode); ok {
		record(setMode(path, v, follow), attr.UnixMode)
	}

	times := make(map[string]attr.Value)
	var timeNames []string
	for _, name := range []string{attr.TimeModified, attr.TimeModifiedUsec, attr.TimeAccess, attr.TimeAccessUsec} {
		if v, ok := info.GetAttribute(name); ok {
			times[name] = v
			timeNames = append(timeNames, name)
		}
	}
	if len(timeNames) > 0 {
		record(setTimes(path, times, follow), timeNames...)
	}

	for _, name := range info.Attributes() {
		if handled[name] {
			continue
		}
		v, _ := info.GetAttribute(name)
		if !v.IsValid() {
			record(vfs.NewError(vfs.ErrNotSupported, "attribute %s has an unsupported type", name), name)
			continue
		}
		record(SetAttribute(path, name, v, flags), name)
	}

	return firstErr
}

func errUint32Expected() error {
	return vfs.NewError(vfs.ErrInvalidArgument, "invalid attribute type (uint32 expected)")
}

func setSymlink(path string, v attr.Value) error {
	target, ok := v.AsString()
	if !ok {
		return vfs.NewError(vfs.ErrInvalidArgument, "invalid attribute type (byte string expected)")
	}
	if target == "" {
		return vfs.NewError(vfs.ErrInvalidArgument, "symlink target must be non-empty")
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return vfs.FromOS(err, path)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFLNK {
		return &vfs.Error{Code: vfs.ErrNotSymbolicLink, Message: "error setting symlink: file is not a symlink", Path: path}
	}

	if err := unix.Unlink(path); err != nil {
		return vfs.FromOS(err, path)
	}
	if err := unix.Symlink(target, path); err != nil {
		return vfs.FromOS(err, path)
	}
	return nil
}

func setMode(path string, v attr.Value, follow bool) error {
	mode, ok := v.AsUint32()
	if !ok {
		return errUint32Expected()
	}

	if !follow {
		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return vfs.FromOS(err, path)
		}
		if st.Mode&unix.S_IFMT == unix.S_IFLNK {
			return vfs.NewError(vfs.ErrNotSupported, "cannot set permissions on symlinks")
		}
	}

	return vfs.FromOS(unix.Chmod(path, mode&0o7777), path)
}

// setOwner changes uid and/or gid in one call. Nil leaves the id unchanged.
func setOwner(path string, uidV, gidV *attr.Value, follow bool) error {
	uid, gid := -1, -1
	if uidV != nil {
		u, ok := uidV.AsUint32()
		if !ok {
			return errUint32Expected()
		}
		uid = int(u)
	}
	if gidV != nil {
		g, ok := gidV.AsUint32()
		if !ok {
			return errUint32Expected()
		}
		gid = int(g)
	}

	var err error
	if follow {
		err = os.Chown(path, uid, gid)
	} else {
		err = os.Lchown(path, uid, gid)
	}
	return vfs.FromOS(err, path)
}

// setTimes applies any of time:modified[-usec] and time:access[-usec]
// together. A missing seconds value keeps the current timestamp; a missing
// usec value means zero.
func setTimes(path string, values map[string]attr.Value, follow bool) error {
	var st unix.Stat_t
	var err error
	if follow {
		err = unix.Stat(path, &st)
	} else {
		err = unix.Lstat(path, &st)
	}
	if err != nil {
		return vfs.FromOS(err, path)
	}

	mtime, err := timespecFrom(values, attr.TimeModified, attr.TimeModifiedUsec, st.Mtim)
	if err != nil {
		return err
	}
	atime, err := timespecFrom(values, attr.TimeAccess, attr.TimeAccessUsec, st.Atim)
	if err != nil {
		return err
	}

	flags := 0
	if !follow {
		flags = unix.AT_SYMLINK_NOFOLLOW
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, []unix.Timespec{atime, mtime}, flags); err != nil {
		return vfs.FromOS(err, path)
	}
	return nil
}

func timespecFrom(values map[string]attr.Value, secName, usecName string, current unix.Timespec) (unix.Timespec, error) {
	secV, hasSec := values[secName]
	usecV, hasUsec := values[usecName]

	if !hasSec && !hasUsec {
		return current, nil
	}

	sec := int64(current.Sec)
	if hasSec {
		s, ok := secV.AsUint64()
		if !ok {
			return unix.Timespec{}, vfs.NewError(vfs.ErrInvalidArgument, "invalid attribute type (uint64 expected)")
		}
		sec = int64(s)
	}

	var usec uint32
	if hasUsec {
		u, ok := usecV.AsUint32()
		if !ok {
			return unix.Timespec{}, errUint32Expected()
		}
		usec = u
	}

	return unix.NsecToTimespec(sec*1e9 + int64(usec)*1000), nil
}
