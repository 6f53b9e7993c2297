package local

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// monitorBuffer is the number of events queued before the watcher waits for
// the channel to catch up.
const monitorBuffer = 64

// CreateMonitor watches p. A directory monitor reports changes to the
// directory's entries; a file monitor watches the parent directory and
// reports only events for p itself, so replacing the file is seen too.
func (b *Backend) CreateMonitor(ctx context.Context, p string, kind vfs.MonitorKind) (backend.Monitor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := b.resolve(p)
	fi, err := os.Stat(full)
	if err != nil {
		return nil, vfs.FromOS(err, p)
	}

	watch := full
	filter := ""
	switch kind {
	case vfs.MonitorDirectory:
		if !fi.IsDir() {
			return nil, &vfs.Error{Code: vfs.ErrNotDirectory, Message: "not a directory", Path: p}
		}
	case vfs.MonitorFile:
		watch = filepath.Dir(full)
		filter = full
	default:
		return nil, vfs.NewError(vfs.ErrInvalidArgument, "unknown monitor kind %d", kind)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, vfs.FromOS(err, p)
	}
	if err := w.Add(watch); err != nil {
		_ = w.Close()
		return nil, vfs.FromOS(err, p)
	}

	m := &monitor{
		b:       b,
		watcher: w,
		filter:  filter,
		events:  make(chan backend.MonitorEvent, monitorBuffer),
		done:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m, nil
}

type monitor struct {
	b       *Backend
	watcher *fsnotify.Watcher
	filter  string
	events  chan backend.MonitorEvent

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

func (m *monitor) Events() <-chan backend.MonitorEvent {
	return m.events
}

func (m *monitor) Close() error {
	var err error
	m.once.Do(func() {
		close(m.done)
		err = m.watcher.Close()
		m.wg.Wait()
	})
	return err
}

func (m *monitor) loop() {
	defer m.wg.Done()
	defer close(m.events)

	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if m.filter != "" && ev.Name != m.filter {
				continue
			}
			for _, t := range eventTypes(ev.Op) {
				select {
				case m.events <- backend.MonitorEvent{Type: t, Path: m.b.backendPath(ev.Name)}:
				case <-m.done:
					return
				}
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Monitor on %s: %v", m.b.Root(), err)
		case <-m.done:
			return
		}
	}
}

// eventTypes translates an fsnotify operation set. fsnotify reports only
// the old name of a rename, which is a deletion from the watcher's view.
func eventTypes(op fsnotify.Op) []backend.EventType {
	var out []backend.EventType
	if op.Has(fsnotify.Create) {
		out = append(out, backend.EventCreated)
	}
	if op.Has(fsnotify.Write) {
		out = append(out, backend.EventChanged)
	}
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		out = append(out, backend.EventDeleted)
	}
	if op.Has(fsnotify.Chmod) {
		out = append(out, backend.EventAttributeChanged)
	}
	return out
}
