package backend

import (
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// Info is the user-visible description of a mount.
type Info struct {
	DisplayName string
	Icon        string
	UserVisible bool
}

// Base carries what every backend shares: an instance id, the canonical
// mount descriptor, user-visible metadata and the handle table.
type Base struct {
	id      uuid.UUID
	handles *HandleTable

	mu   sync.RWMutex
	spec *vfs.MountSpec
	info Info
}

// NewBase creates the shared state for one backend instance.
func NewBase(info Info) *Base {
	return &Base{
		id:      uuid.New(),
		handles: NewHandleTable(),
		info:    info,
	}
}

// Core returns b, so that embedding *Base satisfies Backend.
func (b *Base) Core() *Base {
	return b
}

// ID identifies this backend instance in logs and metrics.
func (b *Base) ID() uuid.UUID {
	return b.id
}

// MountSpec returns the canonical descriptor, nil before mounting.
func (b *Base) MountSpec() *vfs.MountSpec {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.spec
}

// SetMountSpec records the canonical descriptor.
func (b *Base) SetMountSpec(spec *vfs.MountSpec) {
	b.mu.Lock()
	b.spec = spec
	b.mu.Unlock()
}

// Info returns the user-visible metadata.
func (b *Base) Info() Info {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

// SetMountDisplayName changes the user-visible mount name. It is distinct
// from the set-display-name capability, which renames files.
func (b *Base) SetMountDisplayName(name string) {
	b.mu.Lock()
	b.info.DisplayName = name
	b.mu.Unlock()
}

// Handles returns the handle table.
func (b *Base) Handles() *HandleTable {
	return b.handles
}

// Shutdown closes every open channel, then releases the remaining handles.
func (b *Base) Shutdown() error {
	return b.handles.Close()
}
