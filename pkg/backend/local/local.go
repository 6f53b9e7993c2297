// Package local implements a backend that mirrors a directory of the local
// filesystem. Every capability is supported; attribute queries and updates
// go through package localinfo.
package local

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// Type is the mount type tag of local backends.
const Type = "local"

// Config configures a local backend. Mount parameters override it.
type Config struct {
	// Root is the directory exposed by the mount.
	Root string `mapstructure:"root"`

	// DisplayName is the user-visible mount name. Default: base name of Root.
	DisplayName string `mapstructure:"display_name"`

	// Icon is the user-visible mount icon.
	Icon string `mapstructure:"icon"`
}

// Backend serves a local directory tree.
//
// Thread Safety:
// Handles are *os.File values; requests on one handle are serialized by its
// data channel, and requests on different handles share no state.
type Backend struct {
	*backend.Base

	cfg  Config
	root string
}

// New creates an unmounted local backend.
func New(cfg Config) *Backend {
	return &Backend{
		Base: backend.NewBase(backend.Info{
			DisplayName: cfg.DisplayName,
			Icon:        cfg.Icon,
			UserVisible: true,
		}),
		cfg: cfg,
	}
}

// Mount resolves the root directory. The "root" parameter of spec overrides
// the configured root. The canonical descriptor carries the absolute root.
func (b *Backend) Mount(ctx context.Context, spec *vfs.MountSpec) (*vfs.MountSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := b.cfg.Root
	if r := spec.Get("root"); r != "" {
		root = r
	}
	if root == "" {
		return nil, vfs.NewError(vfs.ErrInvalidArgument, "local mount needs a root directory")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, vfs.FromOS(err, root)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, vfs.FromOS(err, abs)
	}
	if !fi.IsDir() {
		return nil, &vfs.Error{Code: vfs.ErrNotDirectory, Message: "mount root is not a directory", Path: abs}
	}

	b.root = abs
	if b.Info().DisplayName == "" {
		b.SetMountDisplayName(filepath.Base(abs))
	}

	canonical := vfs.NewMountSpec(Type)
	canonical.Set("root", abs)
	return canonical, nil
}

// Root returns the absolute root directory, empty before Mount.
func (b *Backend) Root() string {
	return b.root
}

// resolve maps a backend path onto the local filesystem. Cleaning the path
// as absolute first keeps ".." from leaving the root.
func (b *Backend) resolve(p string) string {
	return filepath.Join(b.root, filepath.FromSlash(vfs.CleanPath(p)))
}

// backendPath maps a local path under the root back to a backend path.
func (b *Backend) backendPath(local string) string {
	rel, err := filepath.Rel(b.root, local)
	if err != nil || rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

// basename is the standard:name of a backend path.
func (b *Backend) basename(p string) string {
	p = vfs.CleanPath(p)
	if p == "/" {
		return filepath.Base(b.root)
	}
	return path.Base(p)
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsRune(name, '/')
}

var (
	_ backend.Backend           = (*Backend)(nil)
	_ backend.ReadOpener        = (*Backend)(nil)
	_ backend.Reader            = (*Backend)(nil)
	_ backend.ReadSeeker        = (*Backend)(nil)
	_ backend.ReadSeekTrier     = (*Backend)(nil)
	_ backend.ReadCloser        = (*Backend)(nil)
	_ backend.WriteOpener       = (*Backend)(nil)
	_ backend.Writer            = (*Backend)(nil)
	_ backend.WriteSeeker       = (*Backend)(nil)
	_ backend.WriteSeekTrier    = (*Backend)(nil)
	_ backend.WriteCloser       = (*Backend)(nil)
	_ backend.Enumerator        = (*Backend)(nil)
	_ backend.InfoQuerier       = (*Backend)(nil)
	_ backend.FSInfoQuerier     = (*Backend)(nil)
	_ backend.DisplayNameSetter = (*Backend)(nil)
	_ backend.AttributeSetter   = (*Backend)(nil)
	_ backend.Deleter           = (*Backend)(nil)
	_ backend.MonitorCreator    = (*Backend)(nil)
)
