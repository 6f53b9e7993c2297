package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/localinfo"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// enumerateBatch is the number of directory entries read and reported at a
// time. The context is checked between batches.
const enumerateBatch = 128

// QueryInfo returns the attributes of p. The mount root is reported with
// the mount's display name.
func (b *Backend) QueryInfo(ctx context.Context, p string, m *attr.Matcher, flags vfs.QueryFlags) (*attr.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := b.resolve(p)
	parent := localinfo.GetParentInfo(filepath.Dir(full), m)
	info, err := localinfo.GetInfo(b.basename(p), full, m, flags, parent)
	if err != nil {
		return nil, vfs.FromOS(err, p)
	}

	if vfs.IsRoot(p) && m.Matches(attr.StandardDisplayName) {
		info.SetDisplayName(b.Info().DisplayName)
	}
	return info, nil
}

// Enumerate reports the entries of directory p in batches. An entry that
// disappears while listing is skipped.
func (b *Backend) Enumerate(ctx context.Context, p string, m *attr.Matcher, flags vfs.QueryFlags, sink backend.EnumerateSink) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full := b.resolve(p)
	dir, err := os.Open(full)
	if err != nil {
		return vfs.FromOS(err, p)
	}
	defer dir.Close()

	fi, err := dir.Stat()
	if err != nil {
		return vfs.FromOS(err, p)
	}
	if !fi.IsDir() {
		return &vfs.Error{Code: vfs.ErrNotDirectory, Message: "not a directory", Path: p}
	}

	parent := localinfo.GetParentInfo(full, m)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		names, err := dir.Readdirnames(enumerateBatch)
		if len(names) > 0 {
			batch := make([]*attr.FileInfo, 0, len(names))
			for _, name := range names {
				info, ierr := localinfo.GetInfo(name, filepath.Join(full, name), m, flags, parent)
				if ierr != nil {
					if vfs.IsCode(ierr, vfs.ErrNotFound) {
						continue
					}
					logger.Debug("Enumerate %s: %s: %v", p, name, ierr)
					continue
				}
				batch = append(batch, info)
			}
			if len(batch) > 0 {
				sink.Add(batch...)
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return vfs.FromOS(err, p)
		}
	}
}

// SetDisplayName renames p within its directory. The target must not exist.
func (b *Backend) SetDisplayName(ctx context.Context, p, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if vfs.IsRoot(p) {
		return "", &vfs.Error{Code: vfs.ErrPermissionDenied, Message: "can't rename the mount root", Path: p}
	}
	if !validName(name) {
		return "", vfs.NewError(vfs.ErrInvalidArgument, "invalid filename %q", name)
	}

	from := b.resolve(p)
	to := filepath.Join(filepath.Dir(from), name)
	if from == to {
		return vfs.CleanPath(p), nil
	}
	if _, err := os.Lstat(to); err == nil {
		return "", &vfs.Error{Code: vfs.ErrExists, Message: "target file already exists", Path: name}
	}

	if err := os.Rename(from, to); err != nil {
		return "", vfs.FromOS(err, p)
	}
	return path.Join(path.Dir(vfs.CleanPath(p)), name), nil
}

// SetAttributes applies info to p, recording a status per attribute.
func (b *Backend) SetAttributes(ctx context.Context, p string, info *attr.FileInfo, flags vfs.QueryFlags) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return localinfo.SetAttributes(b.resolve(p), info, flags)
}

// Delete removes a file or an empty directory.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if vfs.IsRoot(p) {
		return &vfs.Error{Code: vfs.ErrPermissionDenied, Message: "can't delete the mount root", Path: p}
	}
	return vfs.FromOS(os.Remove(b.resolve(p)), p)
}
