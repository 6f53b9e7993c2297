package job

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/channel"
	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"golang.org/x/sync/semaphore"
)

// Config tunes a Dispatcher.
type Config struct {
	// Workers bounds the number of blocking backend calls running at once.
	// Default: number of CPUs, at least 4.
	Workers int

	// MaxReadSize caps the byte count of a single channel read.
	// Default: 1 MiB.
	MaxReadSize int

	// Channel configures the data channels created for open handles.
	// CanSeek is taken from the backend's open result.
	Channel channel.Config
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = max(runtime.NumCPU(), 4)
	}
	if c.MaxReadSize <= 0 {
		c.MaxReadSize = 1 << 20
	}
}

type mountEntry struct {
	backend backend.Backend
	spec    *vfs.MountSpec
}

// Dispatcher routes jobs to mounted backends.
//
// Submit never blocks: jobs are queued for a single coordinator goroutine
// that resolves the mount and calls the operation's non-blocking form.
// Operations that would block are handed to a worker, bounded by a
// semaphore of Config.Workers slots.
type Dispatcher struct {
	cfg     Config
	metrics metrics.JobMetrics
	workers *semaphore.Weighted

	mu     sync.RWMutex
	mounts map[string]*mountEntry

	queueMu sync.Mutex
	queue   []*Job
	closed  bool
	wake    chan struct{}

	running  sync.WaitGroup
	loopDone chan struct{}
}

// NewDispatcher creates a dispatcher and starts its coordinator. A nil
// metrics uses the no-op implementation.
func NewDispatcher(cfg Config, m metrics.JobMetrics) *Dispatcher {
	cfg.applyDefaults()
	if m == nil {
		m = metrics.NewNoopJobMetrics()
	}

	d := &Dispatcher{
		cfg:      cfg,
		metrics:  m,
		workers:  semaphore.NewWeighted(int64(cfg.Workers)),
		mounts:   make(map[string]*mountEntry),
		wake:     make(chan struct{}, 1),
		loopDone: make(chan struct{}),
	}
	go d.loop()
	return d
}

// ============================================================================
// Mounts
// ============================================================================

// Mount runs the backend's mount step and makes it routable under the
// canonical descriptor it returns.
func (d *Dispatcher) Mount(ctx context.Context, b backend.Backend, spec *vfs.MountSpec) (*vfs.MountSpec, error) {
	canonical, err := b.Mount(ctx, spec)
	if err != nil {
		return nil, err
	}
	if canonical == nil {
		canonical = spec.Clone()
	}
	b.Core().SetMountSpec(canonical)
	key := canonical.String()

	d.mu.Lock()
	if _, exists := d.mounts[key]; exists {
		d.mu.Unlock()
		_ = b.Core().Shutdown()
		return nil, vfs.NewError(vfs.ErrExists, "mount %q already registered", key)
	}
	d.mounts[key] = &mountEntry{backend: b, spec: canonical}
	count := len(d.mounts)
	d.mu.Unlock()

	d.metrics.SetMounts(count)
	logger.Info("Mounted %s (%s)", key, b.Core().Info().DisplayName)
	return canonical, nil
}

// Unmount shuts a mount down: its channels are closed, then its remaining
// handles released, then it stops being routable.
func (d *Dispatcher) Unmount(mount string) error {
	b, ok := d.Lookup(mount)
	if !ok {
		return vfs.NewError(vfs.ErrNotMounted, "%q is not mounted", mount)
	}

	err := b.Core().Shutdown()

	d.mu.Lock()
	delete(d.mounts, mount)
	count := len(d.mounts)
	d.mu.Unlock()

	d.metrics.SetMounts(count)
	logger.Info("Unmounted %s", mount)
	return err
}

// Lookup resolves a canonical mount descriptor.
func (d *Dispatcher) Lookup(mount string) (backend.Backend, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.mounts[mount]
	if !ok {
		return nil, false
	}
	return e.backend, true
}

// Mounts returns the canonical descriptors of all mounts, sorted.
func (d *Dispatcher) Mounts() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.mounts))
	for k := range d.mounts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// Jobs
// ============================================================================

// Submit queues op against mount and returns its job. reply, if not nil, is
// called exactly once when the job finishes.
func (d *Dispatcher) Submit(mount string, op Operation, reply ReplyFunc) *Job {
	return d.SubmitContext(context.Background(), mount, op, reply)
}

// SubmitContext is Submit with a parent context: cancelling ctx cancels the
// job.
func (d *Dispatcher) SubmitContext(ctx context.Context, mount string, op Operation, reply ReplyFunc) *Job {
	j := newJob(ctx, mount, op, reply)
	d.metrics.RecordJobStart(string(op.Kind()))

	d.queueMu.Lock()
	if d.closed {
		d.queueMu.Unlock()
		d.finish(j, vfs.NewError(vfs.ErrClosed, "dispatcher is shut down"), modeNone)
		return j
	}
	d.queue = append(d.queue, j)
	d.queueMu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return j
}

// execute submits op and waits for it.
func (d *Dispatcher) execute(ctx context.Context, mount string, op Operation) error {
	j := d.SubmitContext(ctx, mount, op, nil)
	<-j.Done()
	return j.Err()
}

// loop is the coordinator: it takes queued jobs in submission order and
// starts them. Nothing here blocks on backend I/O.
func (d *Dispatcher) loop() {
	defer close(d.loopDone)

	for range d.wake {
		for {
			d.queueMu.Lock()
			if len(d.queue) == 0 {
				closed := d.closed
				d.queueMu.Unlock()
				if closed {
					return
				}
				break
			}
			j := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.queueMu.Unlock()

			d.start(j)
		}
	}
}

func (d *Dispatcher) start(j *Job) {
	if j.ctx.Err() != nil {
		d.finish(j, vfs.NewError(vfs.ErrCancelled, "operation was cancelled"), modeNone)
		return
	}

	b, ok := d.Lookup(j.mount)
	if !ok {
		d.finish(j, vfs.NewError(vfs.ErrNotMounted, "%q is not mounted", j.mount), modeNone)
		return
	}

	j.setState(StateTrying)
	err := d.try(j, b)
	if !wouldBlock(err) {
		d.complete(j, b, err, modeTry)
		return
	}

	j.setState(StateRunning)
	d.running.Add(1)
	go d.run(j, b)
}

func (d *Dispatcher) try(j *Job, b backend.Backend) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in %s try on %s: %v", j.op.Kind(), j.mount, r)
			err = vfs.NewError(vfs.ErrIO, "internal error")
		}
	}()
	return j.op.Try(b)
}

func (d *Dispatcher) run(j *Job, b backend.Backend) {
	defer d.running.Done()

	if err := d.workers.Acquire(j.ctx, 1); err != nil {
		d.finish(j, vfs.NewError(vfs.ErrCancelled, "operation was cancelled"), modeNone)
		return
	}
	defer d.workers.Release(1)

	if j.ctx.Err() != nil {
		d.finish(j, vfs.NewError(vfs.ErrCancelled, "operation was cancelled"), modeNone)
		return
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in %s on %s: %v", j.op.Kind(), j.mount, r)
				err = vfs.NewError(vfs.ErrIO, "internal error")
			}
		}()
		return j.op.Run(j.ctx, b)
	}()
	if wouldBlock(err) {
		err = invalidReply(j.op.Kind(), "blocking form reported would-block")
	}
	d.complete(j, b, err, modeRun)
}

func (d *Dispatcher) complete(j *Job, b backend.Backend, err error, mode string) {
	if err == nil {
		if c, ok := j.op.(completer); ok {
			err = c.complete(d, j, b)
		}
	}
	d.finish(j, err, mode)
}

func (d *Dispatcher) finish(j *Job, err error, mode string) {
	if !j.finish(err, mode) {
		return
	}

	kind := string(j.op.Kind())
	code := ""
	if jerr := j.Err(); jerr != nil {
		code = vfs.CodeOf(jerr).String()
		logger.Debug("Job %s %s on %s failed (%s): %v", j.id, kind, j.mount, mode, jerr)
	}
	d.metrics.RecordJob(kind, mode, time.Since(j.submitted), code)
	d.metrics.RecordJobEnd(kind)
}

// ============================================================================
// Channels
// ============================================================================

func (d *Dispatcher) channelConfig(canSeek bool) channel.Config {
	cfg := d.cfg.Channel
	cfg.CanSeek = canSeek
	return cfg
}

// attachStream registers an opened backend handle and starts its data
// channel.
func (d *Dispatcher) attachStream(mount string, b backend.Backend, res *backend.OpenResult, dir channel.Direction) (*Opened, error) {
	handles := b.Core().Handles()
	id, err := handles.Add(res.Handle)
	if err != nil {
		return nil, err
	}

	h := &streamHandler{d: d, mount: mount, handle: id, dir: dir}
	ch, err := channel.New(id, dir, h, d.channelConfig(res.CanSeek))
	if err != nil {
		_, _ = handles.Remove(id)
		return nil, fmt.Errorf("create %s channel: %w", dir, err)
	}
	if err := handles.Attach(id, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	d.track(ch)
	return &Opened{Handle: id, CanSeek: res.CanSeek, Offset: res.Offset, Channel: ch}, nil
}

// attachMonitor registers a monitor and starts pushing its events.
func (d *Dispatcher) attachMonitor(b backend.Backend, mon backend.Monitor) (*Opened, error) {
	handles := b.Core().Handles()
	id, err := handles.Add(mon)
	if err != nil {
		return nil, err
	}

	h := &monitorHandler{b: b, handle: id, monitor: mon}
	ch, err := channel.New(id, channel.DirectionMonitor, h, d.channelConfig(false))
	if err != nil {
		_, _ = handles.Remove(id)
		return nil, fmt.Errorf("create monitor channel: %w", err)
	}
	if err := handles.Attach(id, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	d.track(ch)
	go pumpEvents(ch, mon)
	return &Opened{Handle: id, Channel: ch}, nil
}

func (d *Dispatcher) track(ch *channel.Channel) {
	dir := ch.Direction().String()
	d.metrics.RecordChannelOpened(dir)
	ch.Start()
	go func() {
		<-ch.Done()
		d.metrics.RecordChannelClosed(dir)
	}()
}

// ============================================================================
// Shutdown
// ============================================================================

// Close unmounts every backend, stops the coordinator and waits for running
// jobs. Jobs submitted afterwards fail with ErrClosed.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, m := range d.Mounts() {
		if err := d.Unmount(m); err != nil {
			errs = append(errs, fmt.Errorf("unmount %s: %w", m, err))
		}
	}

	d.queueMu.Lock()
	if d.closed {
		d.queueMu.Unlock()
		<-d.loopDone
		return nil
	}
	d.closed = true
	d.queueMu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.loopDone
	d.running.Wait()

	return errors.Join(errs...)
}
