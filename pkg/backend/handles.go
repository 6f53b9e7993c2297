package backend

import (
	"errors"
	"io"
	"sync"

	"github.com/marmos91/dittovfs/pkg/vfs"
)

type handleEntry struct {
	value   any
	channel io.Closer
}

// HandleTable maps handle ids to backend handle values and their channels.
// Ids start at 1 and are never reused, so a stale id always fails with
// ErrInvalidHandle instead of reaching another stream.
type HandleTable struct {
	mu      sync.RWMutex
	last    vfs.HandleID
	entries map[vfs.HandleID]*handleEntry
	closed  bool
}

// NewHandleTable creates an empty table.
func NewHandleTable() *HandleTable {
	return &HandleTable{entries: make(map[vfs.HandleID]*handleEntry)}
}

// Add registers value under a fresh id.
func (t *HandleTable) Add(value any) (vfs.HandleID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, vfs.NewError(vfs.ErrClosed, "backend is shutting down")
	}
	if t.last == ^vfs.HandleID(0) {
		return 0, vfs.NewError(vfs.ErrIO, "handle ids exhausted")
	}

	t.last++
	t.entries[t.last] = &handleEntry{value: value}
	return t.last, nil
}

// Attach associates the channel serving id. The table closes it on shutdown.
func (t *HandleTable) Attach(id vfs.HandleID, channel io.Closer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return invalidHandle(id)
	}
	e.channel = channel
	return nil
}

// Get returns the value registered under id.
func (t *HandleTable) Get(id vfs.HandleID) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[id]
	if !ok {
		return nil, invalidHandle(id)
	}
	return e.value, nil
}

// Remove unregisters id and returns its value. The channel is not closed;
// it is the caller that is finishing it.
func (t *HandleTable) Remove(id vfs.HandleID) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return nil, invalidHandle(id)
	}
	delete(t.entries, id)
	return e.value, nil
}

// Len returns the number of open handles.
func (t *HandleTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Close rejects new handles, closes every attached channel, then closes the
// values still registered that implement io.Closer.
func (t *HandleTable) Close() error {
	t.mu.Lock()
	t.closed = true
	var channels []io.Closer
	for _, e := range t.entries {
		if e.channel != nil {
			channels = append(channels, e.channel)
		}
	}
	t.mu.Unlock()

	var errs []error
	for _, c := range channels {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	t.mu.Lock()
	remaining := t.entries
	t.entries = make(map[vfs.HandleID]*handleEntry)
	t.mu.Unlock()

	for _, e := range remaining {
		if c, ok := e.value.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func invalidHandle(id vfs.HandleID) error {
	return vfs.NewError(vfs.ErrInvalidHandle, "invalid handle %d", id)
}
