package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/backend/local"
	"github.com/marmos91/dittovfs/pkg/backend/mail"
	"github.com/marmos91/dittovfs/pkg/job"
	"github.com/marmos91/dittovfs/pkg/rpc"
	"github.com/marmos91/dittovfs/pkg/settings"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"github.com/mitchellh/mapstructure"
)

// BackendFactory creates unmounted backends by mount type.
//
// The settings store, when present, supplies persisted defaults such as the
// maildir of mail mounts.
type BackendFactory struct {
	settings *settings.Store
}

// NewBackendFactory creates a factory. store may be nil.
func NewBackendFactory(store *settings.Store) *BackendFactory {
	return &BackendFactory{settings: store}
}

// CreateBackend creates an unmounted backend of the given type from
// backend-specific options.
func (f *BackendFactory) CreateBackend(ctx context.Context, typ string, options map[string]any) (backend.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch typ {
	case local.Type:
		return createLocalBackend(options)
	case mail.Type:
		return f.createMailBackend(options)
	default:
		return nil, vfs.NewError(vfs.ErrNotSupported, "unknown mount type %q", typ)
	}
}

func decodeOptions(options map[string]any, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           result,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

func createLocalBackend(options map[string]any) (backend.Backend, error) {
	var cfg local.Config
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, vfs.NewError(vfs.ErrInvalidArgument, "invalid local mount options: %v", err)
	}
	return local.New(cfg), nil
}

func (f *BackendFactory) createMailBackend(options map[string]any) (backend.Backend, error) {
	var cfg mail.Config
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, vfs.NewError(vfs.ErrInvalidArgument, "invalid mail mount options: %v", err)
	}

	if cfg.Maildir == "" {
		maildir, err := f.defaultMaildir()
		if err != nil {
			return nil, err
		}
		cfg.Maildir = maildir
	}
	return mail.New(cfg), nil
}

// defaultMaildir returns the persisted maildir, persisting DefaultMaildir on
// first use.
func (f *BackendFactory) defaultMaildir() (string, error) {
	if f.settings == nil {
		return DefaultMaildir(), nil
	}

	maildir, err := f.settings.LoadOrInit(mail.SettingsKey, func() (string, error) {
		return DefaultMaildir(), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve default maildir: %w", err)
	}
	return maildir, nil
}

// MountFunc adapts the factory for mount requests arriving over the control
// socket. Parameters of the request are passed to the backend's mount step,
// so only settings-derived defaults are resolved here.
func (f *BackendFactory) MountFunc() rpc.MountFunc {
	return func(ctx context.Context, spec *vfs.MountSpec) (backend.Backend, error) {
		options := make(map[string]any)
		if spec.Type == mail.Type {
			if d := spec.Get("maildir"); d != "" {
				options["maildir"] = d
			}
		}
		return f.CreateBackend(ctx, spec.Type, options)
	}
}

// MountAll creates and mounts every configured mount, in order. On failure
// the mounts created so far stay registered; the caller closes the
// dispatcher.
func (f *BackendFactory) MountAll(ctx context.Context, d *job.Dispatcher, mounts []MountConfig) ([]string, error) {
	routed := make([]string, 0, len(mounts))
	for _, m := range mounts {
		b, err := f.CreateBackend(ctx, m.Type, m.Options)
		if err != nil {
			return routed, fmt.Errorf("mount %q: %w", m.Name, err)
		}

		canonical, err := d.Mount(ctx, b, vfs.NewMountSpec(m.Type))
		if err != nil {
			return routed, fmt.Errorf("mount %q: %w", m.Name, err)
		}

		logger.Debug("Configured mount %q routed as %s", m.Name, canonical)
		routed = append(routed, canonical.String())
	}
	return routed, nil
}
