// Package mail implements a read-only backend that presents the messages
// of a maildir as a flat directory. Entry display names come from the
// message Subject header.
package mail

import (
	"bufio"
	"context"
	"errors"
	"io"
	"mime"
	netmail "net/mail"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/localinfo"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// Type is the mount type tag of mail backends.
const Type = "mail"

// SettingsKey is the persisted setting holding the default maildir.
const SettingsKey = "mail.maildir"

const (
	displayInvalidUTF8 = "invalid utf-8"
	displayUnreadable  = "error"
	contentType        = "message/rfc822"
)

// Config configures a mail backend.
type Config struct {
	// Maildir is the maildir root; messages are read from its cur/
	// subdirectory.
	Maildir string `mapstructure:"maildir"`
}

// Backend serves a maildir.
type Backend struct {
	*backend.Base

	maildir string
}

// New creates an unmounted mail backend.
func New(cfg Config) *Backend {
	return &Backend{
		Base: backend.NewBase(backend.Info{
			DisplayName: "Mail",
			Icon:        "user-mail",
			UserVisible: false,
		}),
		maildir: cfg.Maildir,
	}
}

// Mount checks the maildir. The "maildir" parameter overrides the
// configured one; the canonical descriptor is always plain "mail".
func (b *Backend) Mount(ctx context.Context, spec *vfs.MountSpec) (*vfs.MountSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d := spec.Get("maildir"); d != "" {
		b.maildir = d
	}
	if b.maildir == "" {
		return nil, vfs.NewError(vfs.ErrInvalidArgument, "mail mount needs a maildir")
	}

	fi, err := os.Stat(b.maildir)
	if err != nil {
		return nil, vfs.FromOS(err, b.maildir)
	}
	if !fi.IsDir() {
		return nil, &vfs.Error{Code: vfs.ErrNotDirectory, Message: "maildir is not a directory", Path: b.maildir}
	}

	return vfs.NewMountSpec(Type), nil
}

// Maildir returns the maildir in use.
func (b *Backend) Maildir() string {
	return b.maildir
}

func (b *Backend) messagePath(name string) string {
	return filepath.Join(b.maildir, "cur", name)
}

// messageName validates p as "/<message>".
func messageName(p string) (string, error) {
	p = vfs.CleanPath(p)
	name := path.Base(p)
	if path.Dir(p) != "/" {
		return "", &vfs.Error{Code: vfs.ErrNotFound, Message: "no such message", Path: p}
	}
	return name, nil
}

// OpenForRead opens a message. The root is a directory.
func (b *Backend) OpenForRead(ctx context.Context, p string) (*backend.OpenResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vfs.IsRoot(p) {
		return nil, &vfs.Error{Code: vfs.ErrIsDirectory, Message: "can't open directory", Path: p}
	}

	name, err := messageName(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(b.messagePath(name))
	if err != nil {
		return nil, vfs.FromOS(err, p)
	}
	return &backend.OpenResult{Handle: f}, nil
}

func (b *Backend) Read(ctx context.Context, h any, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, ok := h.(*os.File)
	if !ok {
		return 0, vfs.NewError(vfs.ErrInvalidHandle, "not a message handle")
	}

	n, err := f.Read(buf)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, vfs.FromOS(err, "")
}

func (b *Backend) CloseRead(ctx context.Context, h any) error {
	f, ok := h.(*os.File)
	if !ok {
		return vfs.NewError(vfs.ErrInvalidHandle, "not a message handle")
	}
	return vfs.FromOS(f.Close(), "")
}

// TryQueryInfo answers the root without I/O. Messages need a worker.
func (b *Backend) TryQueryInfo(p string, m *attr.Matcher, flags vfs.QueryFlags) (*attr.FileInfo, error) {
	if !vfs.IsRoot(p) {
		return nil, backend.ErrWouldBlock
	}
	return b.rootInfo(m), nil
}

func (b *Backend) QueryInfo(ctx context.Context, p string, m *attr.Matcher, flags vfs.QueryFlags) (*attr.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vfs.IsRoot(p) {
		return b.rootInfo(m), nil
	}

	name, err := messageName(p)
	if err != nil {
		return nil, err
	}
	return b.messageInfo(name, m, flags)
}

func (b *Backend) rootInfo(m *attr.Matcher) *attr.FileInfo {
	info := attr.NewFileInfo()
	info.SetAttributeMask(m)
	defer info.UnsetAttributeMask()

	info.SetName("/")
	if m.IsEmpty() {
		return info
	}
	info.SetDisplayName(b.Info().DisplayName)
	info.SetFileType(attr.FileTypeDirectory)
	info.SetString(attr.StandardContentType, "inode/directory")
	info.SetString(attr.StandardIcon, b.Info().Icon)
	return info
}

// messageInfo reports a message as a regular file named after its Subject.
func (b *Backend) messageInfo(name string, m *attr.Matcher, flags vfs.QueryFlags) (*attr.FileInfo, error) {
	full := b.messagePath(name)
	info, err := localinfo.GetInfo(name, full, m, flags, nil)
	if err != nil {
		return nil, err
	}

	info.SetAttributeMask(m)
	defer info.UnsetAttributeMask()

	if m.Matches(attr.StandardContentType) {
		info.SetString(attr.StandardContentType, contentType)
	}

	wantDisplay := m.Matches(attr.StandardDisplayName)
	wantSender := m.Matches(attr.MailSender)
	if !wantDisplay && !wantSender {
		return info, nil
	}

	subject, sender, err := readHeaders(full)
	switch {
	case err != nil:
		logger.Debug("Mail: read headers of %s: %v", name, err)
		if wantDisplay {
			info.SetDisplayName(displayUnreadable)
		}
	default:
		if wantDisplay && subject != "" {
			if utf8.ValidString(subject) {
				info.SetDisplayName(subject)
			} else {
				info.SetDisplayName(displayInvalidUTF8)
			}
		}
		if wantSender && sender != "" {
			info.SetString(attr.MailSender, sender)
		}
	}
	return info, nil
}

// readHeaders returns the decoded Subject and the From address.
func readHeaders(path string) (subject, sender string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	msg, err := netmail.ReadMessage(bufio.NewReader(f))
	if err != nil {
		return "", "", err
	}

	subject = msg.Header.Get("Subject")
	dec := &mime.WordDecoder{}
	if decoded, derr := dec.DecodeHeader(subject); derr == nil {
		subject = decoded
	}
	subject = strings.TrimSpace(subject)

	from := msg.Header.Get("From")
	if addr, aerr := netmail.ParseAddress(from); aerr == nil {
		sender = addr.Address
	} else {
		sender = strings.TrimSpace(from)
	}
	return subject, sender, nil
}

// Enumerate lists the messages of cur/. A maildir without cur/ is empty.
func (b *Backend) Enumerate(ctx context.Context, p string, m *attr.Matcher, flags vfs.QueryFlags, sink backend.EnumerateSink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !vfs.IsRoot(p) {
		return &vfs.Error{Code: vfs.ErrNotDirectory, Message: "not a directory", Path: p}
	}

	entries, err := os.ReadDir(filepath.Join(b.maildir, "cur"))
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Mail: %s has no cur directory", b.maildir)
			return nil
		}
		return vfs.FromOS(err, p)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}
		info, err := b.messageInfo(e.Name(), m, flags)
		if err != nil {
			logger.Debug("Mail: skip %s: %v", e.Name(), err)
			continue
		}
		sink.Add(info)
	}
	return nil
}

// Delete always fails: the view is read-only.
func (b *Backend) Delete(ctx context.Context, p string) error {
	return &vfs.Error{Code: vfs.ErrPermissionDenied, Message: "can't delete mail", Path: p}
}

// TryDelete fails the same way without needing a worker.
func (b *Backend) TryDelete(p string) error {
	return b.Delete(context.Background(), p)
}

var (
	_ backend.Backend        = (*Backend)(nil)
	_ backend.ReadOpener     = (*Backend)(nil)
	_ backend.Reader         = (*Backend)(nil)
	_ backend.ReadCloser     = (*Backend)(nil)
	_ backend.InfoQueryTrier = (*Backend)(nil)
	_ backend.InfoQuerier    = (*Backend)(nil)
	_ backend.Enumerator     = (*Backend)(nil)
	_ backend.Deleter        = (*Backend)(nil)
	_ backend.DeleteTrier    = (*Backend)(nil)
)
