package job

import (
	"context"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// QueryInfo returns the attributes of one entry. The root of a mount always
// answers, with a synthetic directory entry when the backend cannot.
type QueryInfo struct {
	Path    string
	Matcher *attr.Matcher
	Flags   vfs.QueryFlags

	Info *attr.FileInfo
}

func (o *QueryInfo) Kind() Kind { return KindQueryInfo }

func (o *QueryInfo) Try(b backend.Backend) error {
	t, ok := b.(backend.InfoQueryTrier)
	if !ok {
		if _, ok := b.(backend.InfoQuerier); !ok && vfs.IsRoot(o.Path) {
			o.Info = rootInfo(b, o.Matcher)
			return nil
		}
		return backend.ErrWouldBlock
	}
	info, err := t.TryQueryInfo(o.Path, o.Matcher, o.Flags)
	return o.result(b, info, err)
}

func (o *QueryInfo) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.InfoQuerier)
	if !ok {
		if vfs.IsRoot(o.Path) {
			o.Info = rootInfo(b, o.Matcher)
			return nil
		}
		return notSupported(o.Kind())
	}
	info, err := r.QueryInfo(ctx, o.Path, o.Matcher, o.Flags)
	return o.result(b, info, err)
}

func (o *QueryInfo) result(b backend.Backend, info *attr.FileInfo, err error) error {
	if wouldBlock(err) {
		return err
	}
	if err != nil {
		if vfs.IsRoot(o.Path) && !vfs.IsCode(err, vfs.ErrCancelled) {
			o.Info = rootInfo(b, o.Matcher)
			return nil
		}
		return err
	}
	if info == nil {
		return invalidReply(o.Kind(), "backend returned no info for %q", o.Path)
	}
	o.Info = info
	return nil
}

// rootInfo is the synthetic entry for the root of a mount. Like a local
// query, an empty matcher yields the name alone.
func rootInfo(b backend.Backend, m *attr.Matcher) *attr.FileInfo {
	name := b.Core().Info().DisplayName
	if name == "" {
		name = "/"
	}

	info := attr.NewFileInfo()
	info.SetAttributeMask(m)
	defer info.UnsetAttributeMask()

	info.SetName("/")
	if m.IsEmpty() {
		return info
	}
	info.SetDisplayName(name)
	info.SetString(attr.StandardEditName, name)
	info.SetFileType(attr.FileTypeDirectory)
	info.SetString(attr.StandardContentType, "inode/directory")
	if icon := b.Core().Info().Icon; icon != "" {
		info.SetString(attr.StandardIcon, icon)
	}
	return info
}

// QueryFSInfo returns filesystem-level attributes for the mount holding Path.
type QueryFSInfo struct {
	Path    string
	Matcher *attr.Matcher

	Info *attr.FileInfo
}

func (o *QueryFSInfo) Kind() Kind { return KindQueryFSInfo }

func (o *QueryFSInfo) Try(b backend.Backend) error {
	t, ok := b.(backend.FSInfoQueryTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	info, err := t.TryQueryFSInfo(o.Path, o.Matcher)
	return o.result(info, err)
}

func (o *QueryFSInfo) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.FSInfoQuerier)
	if !ok {
		return notSupported(o.Kind())
	}
	info, err := r.QueryFSInfo(ctx, o.Path, o.Matcher)
	return o.result(info, err)
}

func (o *QueryFSInfo) result(info *attr.FileInfo, err error) error {
	if err != nil {
		return err
	}
	if info == nil {
		return invalidReply(o.Kind(), "backend returned no filesystem info for %q", o.Path)
	}
	o.Info = info
	return nil
}

// Enumerate lists a directory. Entries go to Sink as the backend produces
// them; without a Sink they are collected in Infos. Entries already
// delivered stay valid when the job fails.
type Enumerate struct {
	Path    string
	Matcher *attr.Matcher
	Flags   vfs.QueryFlags
	Sink    backend.EnumerateSink

	Infos []*attr.FileInfo
}

func (o *Enumerate) Kind() Kind { return KindEnumerate }

func (o *Enumerate) Add(infos ...*attr.FileInfo) {
	o.Infos = append(o.Infos, infos...)
}

func (o *Enumerate) sink() backend.EnumerateSink {
	if o.Sink != nil {
		return o.Sink
	}
	return o
}

func (o *Enumerate) Try(b backend.Backend) error {
	t, ok := b.(backend.EnumerateTrier)
	if !ok {
		return backend.ErrWouldBlock
	}

	// Entries produced by a try that ends up blocking are dropped, so the
	// run form starts from scratch.
	var pending bufferSink
	err := t.TryEnumerate(o.Path, o.Matcher, o.Flags, &pending)
	if wouldBlock(err) {
		return err
	}
	if len(pending.infos) > 0 {
		o.sink().Add(pending.infos...)
	}
	return err
}

func (o *Enumerate) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.Enumerator)
	if !ok {
		return notSupported(o.Kind())
	}
	return r.Enumerate(ctx, o.Path, o.Matcher, o.Flags, o.sink())
}

type bufferSink struct {
	infos []*attr.FileInfo
}

func (s *bufferSink) Add(infos ...*attr.FileInfo) {
	s.infos = append(s.infos, infos...)
}

// SetDisplayName renames an entry within its directory.
type SetDisplayName struct {
	Path string
	Name string

	NewPath string
}

func (o *SetDisplayName) Kind() Kind { return KindSetDisplayName }

func (o *SetDisplayName) Try(b backend.Backend) error {
	t, ok := b.(backend.DisplayNameSetTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	p, err := t.TrySetDisplayName(o.Path, o.Name)
	return o.result(p, err)
}

func (o *SetDisplayName) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.DisplayNameSetter)
	if !ok {
		return notSupported(o.Kind())
	}
	p, err := r.SetDisplayName(ctx, o.Path, o.Name)
	return o.result(p, err)
}

func (o *SetDisplayName) result(p string, err error) error {
	if err != nil {
		return err
	}
	if p == "" {
		return invalidReply(o.Kind(), "backend returned no path for renamed %q", o.Path)
	}
	o.NewPath = p
	return nil
}

// SetAttributes applies every attribute of Info. Per-attribute statuses are
// recorded in Info even when the job fails.
type SetAttributes struct {
	Path  string
	Info  *attr.FileInfo
	Flags vfs.QueryFlags
}

func (o *SetAttributes) Kind() Kind { return KindSetAttributes }

func (o *SetAttributes) Try(b backend.Backend) error {
	t, ok := b.(backend.AttributeSetTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	return t.TrySetAttributes(o.Path, o.Info, o.Flags)
}

func (o *SetAttributes) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.AttributeSetter)
	if !ok {
		return notSupported(o.Kind())
	}
	return r.SetAttributes(ctx, o.Path, o.Info, o.Flags)
}

// Delete removes an entry.
type Delete struct {
	Path string
}

func (o *Delete) Kind() Kind { return KindDelete }

func (o *Delete) Try(b backend.Backend) error {
	t, ok := b.(backend.DeleteTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	return t.TryDelete(o.Path)
}

func (o *Delete) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.Deleter)
	if !ok {
		return notSupported(o.Kind())
	}
	return r.Delete(ctx, o.Path)
}
