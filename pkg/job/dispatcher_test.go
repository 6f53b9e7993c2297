package job

import (
	"context"
	"io"
	"math/rand"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/channel"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Fake backend
// ============================================================================

type fakeStream struct {
	name string
	data []byte
	pos  int
}

type fakeMonitor struct {
	events chan backend.MonitorEvent
	once   sync.Once
	closed atomic.Bool
}

func (m *fakeMonitor) Events() <-chan backend.MonitorEvent { return m.events }

func (m *fakeMonitor) Close() error {
	m.once.Do(func() {
		m.closed.Store(true)
		close(m.events)
	})
	return nil
}

type fakeBackend struct {
	*backend.Base

	blockTry atomic.Bool
	tries    atomic.Int32
	runs     atomic.Int32

	// onRead runs inside Read before any data is copied.
	onRead func(ctx context.Context, s *fakeStream) error

	// deleteStarted receives the path of every blocking delete.
	deleteStarted chan string

	mu      sync.Mutex
	files   map[string]string
	closes  []string
	monitor *fakeMonitor
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		Base:          backend.NewBase(backend.Info{DisplayName: "Fake", Icon: "drive"}),
		deleteStarted: make(chan string, 4),
		files: map[string]string{
			"/a.txt":   "hello world",
			"/b.txt":   "second file",
			"/abc.txt": "abcdefghij",
			"/nil":     "",
		},
	}
}

func (f *fakeBackend) Mount(ctx context.Context, spec *vfs.MountSpec) (*vfs.MountSpec, error) {
	if spec.Get("name") == "" {
		return nil, vfs.NewError(vfs.ErrInvalidArgument, "missing name")
	}
	canonical := vfs.NewMountSpec("fake")
	canonical.Set("name", spec.Get("name"))
	return canonical, nil
}

func (f *fakeBackend) info(p string, m *attr.Matcher) (*attr.FileInfo, error) {
	f.mu.Lock()
	content, ok := f.files[p]
	f.mu.Unlock()
	if !ok {
		return nil, vfs.NewError(vfs.ErrNotFound, "%s not found", p)
	}
	if p == "/nil" {
		return nil, nil
	}

	info := attr.NewFileInfo()
	info.SetAttributeMask(m)
	info.SetName(path.Base(p))
	info.SetFileType(attr.FileTypeRegular)
	info.SetSize(int64(len(content)))
	info.SetString(attr.EtagValue, "v1")
	info.UnsetAttributeMask()
	return info, nil
}

func (f *fakeBackend) TryQueryInfo(p string, m *attr.Matcher, flags vfs.QueryFlags) (*attr.FileInfo, error) {
	f.tries.Add(1)
	if f.blockTry.Load() {
		return nil, backend.ErrWouldBlock
	}
	return f.info(p, m)
}

func (f *fakeBackend) QueryInfo(ctx context.Context, p string, m *attr.Matcher, flags vfs.QueryFlags) (*attr.FileInfo, error) {
	f.runs.Add(1)
	return f.info(p, m)
}

func (f *fakeBackend) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name := range f.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (f *fakeBackend) TryEnumerate(p string, m *attr.Matcher, flags vfs.QueryFlags, sink backend.EnumerateSink) error {
	f.tries.Add(1)
	for i, name := range f.names() {
		if i == 1 && f.blockTry.Load() {
			return backend.ErrWouldBlock
		}
		info := attr.NewFileInfo()
		info.SetName(path.Base(name))
		sink.Add(info)
	}
	return nil
}

func (f *fakeBackend) Enumerate(ctx context.Context, p string, m *attr.Matcher, flags vfs.QueryFlags, sink backend.EnumerateSink) error {
	f.runs.Add(1)
	for _, name := range f.names() {
		info := attr.NewFileInfo()
		info.SetName(path.Base(name))
		sink.Add(info)
	}
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, p string) error {
	f.runs.Add(1)
	f.deleteStarted <- p
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeBackend) OpenForRead(ctx context.Context, p string) (*backend.OpenResult, error) {
	f.mu.Lock()
	content, ok := f.files[p]
	f.mu.Unlock()
	if !ok {
		return nil, vfs.NewError(vfs.ErrNotFound, "%s not found", p)
	}
	return &backend.OpenResult{Handle: &fakeStream{name: p, data: []byte(content)}, CanSeek: true}, nil
}

func (f *fakeBackend) Read(ctx context.Context, h any, buf []byte) (int, error) {
	s := h.(*fakeStream)
	if f.onRead != nil {
		if err := f.onRead(ctx, s); err != nil {
			return 0, err
		}
	}
	n := copy(buf, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func (f *fakeBackend) TrySeekOnRead(h any, offset int64, whence uint32) (int64, error) {
	s := h.(*fakeStream)
	if whence != vfs.SeekSet {
		return 0, backend.ErrWouldBlock
	}
	s.pos = int(offset)
	return offset, nil
}

func (f *fakeBackend) CloseRead(ctx context.Context, h any) error {
	f.mu.Lock()
	f.closes = append(f.closes, h.(*fakeStream).name)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) closed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closes...)
}

func (f *fakeBackend) CreateMonitor(ctx context.Context, p string, kind vfs.MonitorKind) (backend.Monitor, error) {
	m := &fakeMonitor{events: make(chan backend.MonitorEvent, 4)}
	f.mu.Lock()
	f.monitor = m
	f.mu.Unlock()
	return m, nil
}

// ============================================================================
// Helpers
// ============================================================================

func newTestDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	d := NewDispatcher(cfg, nil)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func mountFake(t *testing.T, d *Dispatcher, name string) (string, *fakeBackend) {
	t.Helper()
	f := newFakeBackend()
	spec := vfs.NewMountSpec("fake")
	spec.Set("name", name)
	canonical, err := d.Mount(context.Background(), f, spec)
	require.NoError(t, err)
	return canonical.String(), f
}

type replyCounter struct {
	n atomic.Int32
}

func (c *replyCounter) reply(j *Job) {
	c.n.Add(1)
}

func wait(t *testing.T, j *Job) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-j.Done():
		return j.Err()
	case <-ctx.Done():
		t.Fatalf("job %s %s did not finish", j.ID(), j.Operation().Kind())
		return nil
	}
}

func openRead(t *testing.T, d *Dispatcher, mount, p string) (*OpenForRead, *channel.Client) {
	t.Helper()
	op := &OpenForRead{Path: p}
	require.NoError(t, wait(t, d.Submit(mount, op, nil)))

	remote, err := op.Remote()
	require.NoError(t, err)
	client, err := channel.NewClient(remote)
	require.NoError(t, err)
	return op, client
}

// ============================================================================
// Routing and mounts
// ============================================================================

func TestNotMounted(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	var replies replyCounter

	j := d.Submit("fake:name=missing", &QueryInfo{Path: "/a.txt", Matcher: attr.MatchAll()}, replies.reply)
	err := wait(t, j)

	assert.True(t, vfs.IsCode(err, vfs.ErrNotMounted))
	assert.Equal(t, StateFailed, j.State())
	assert.Equal(t, int32(1), replies.n.Load())
}

func TestMountRegistersCanonicalDescriptor(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "one")

	assert.Equal(t, "fake:name=one", mount)
	assert.Equal(t, []string{mount}, d.Mounts())
	assert.Equal(t, mount, f.MountSpec().String())

	_, err := d.Mount(context.Background(), newFakeBackend(), f.MountSpec())
	assert.True(t, vfs.IsCode(err, vfs.ErrExists))

	_, err = d.Mount(context.Background(), newFakeBackend(), vfs.NewMountSpec("fake"))
	assert.True(t, vfs.IsCode(err, vfs.ErrInvalidArgument))

	require.NoError(t, d.Unmount(mount))
	assert.Empty(t, d.Mounts())
	assert.True(t, vfs.IsCode(d.Unmount(mount), vfs.ErrNotMounted))
}

func TestSubmitAfterClose(t *testing.T) {
	d := NewDispatcher(Config{}, nil)
	require.NoError(t, d.Close())

	var replies replyCounter
	j := d.Submit("fake:name=x", &Delete{Path: "/a"}, replies.reply)
	assert.True(t, vfs.IsCode(wait(t, j), vfs.ErrClosed))
	assert.Equal(t, int32(1), replies.n.Load())
}

// ============================================================================
// Try / run
// ============================================================================

func TestTryCompletesWithoutWorker(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "try")

	op := &QueryInfo{Path: "/a.txt", Matcher: attr.MatchAll()}
	j := d.Submit(mount, op, nil)
	require.NoError(t, wait(t, j))

	assert.Equal(t, StateSucceeded, j.State())
	assert.Equal(t, int32(1), f.tries.Load())
	assert.Equal(t, int32(0), f.runs.Load())
	assert.Equal(t, "a.txt", op.Info.Name())
}

func TestWouldBlockFallsBackToRun(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "run")
	f.blockTry.Store(true)

	op := &QueryInfo{Path: "/a.txt", Matcher: attr.MatchAll()}
	require.NoError(t, wait(t, d.Submit(mount, op, nil)))

	assert.Equal(t, int32(1), f.tries.Load())
	assert.Equal(t, int32(1), f.runs.Load())
	assert.Equal(t, int64(11), op.Info.Size())
}

func TestTryAndRunAreEquivalent(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "equiv")

	for _, query := range []string{"*", "standard:*", "standard:name,etag:value", ""} {
		t.Run("query "+query, func(t *testing.T) {
			f.blockTry.Store(false)
			viaTry := &QueryInfo{Path: "/b.txt", Matcher: attr.NewMatcher(query)}
			require.NoError(t, wait(t, d.Submit(mount, viaTry, nil)))

			f.blockTry.Store(true)
			viaRun := &QueryInfo{Path: "/b.txt", Matcher: attr.NewMatcher(query)}
			require.NoError(t, wait(t, d.Submit(mount, viaRun, nil)))

			assert.Equal(t, attr.ToWire(viaTry.Info, nil), attr.ToWire(viaRun.Info, nil))
		})
	}

	t.Run("enumerate", func(t *testing.T) {
		f.blockTry.Store(false)
		viaTry := &Enumerate{Path: "/", Matcher: attr.MatchAll()}
		require.NoError(t, wait(t, d.Submit(mount, viaTry, nil)))

		// The try form adds one entry before blocking; it must not leak.
		f.blockTry.Store(true)
		viaRun := &Enumerate{Path: "/", Matcher: attr.MatchAll()}
		require.NoError(t, wait(t, d.Submit(mount, viaRun, nil)))

		names := func(infos []*attr.FileInfo) []string {
			var out []string
			for _, i := range infos {
				out = append(out, i.Name())
			}
			return out
		}
		assert.Equal(t, names(viaTry.Infos), names(viaRun.Infos))
		assert.Len(t, viaRun.Infos, 4)
	})
}

func TestRootQueryIsSynthetic(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, _ := mountFake(t, d, "root")

	for _, p := range []string{"/", ""} {
		op := &QueryInfo{Path: p, Matcher: attr.MatchAll()}
		require.NoError(t, wait(t, d.Submit(mount, op, nil)))
		assert.Equal(t, attr.FileTypeDirectory, op.Info.FileType())
		assert.Equal(t, "Fake", op.Info.DisplayName())
		assert.Equal(t, "drive", op.Info.GetString(attr.StandardIcon))
	}

	op := &QueryInfo{Path: "/", Matcher: attr.NewMatcher("standard:type")}
	require.NoError(t, wait(t, d.Submit(mount, op, nil)))
	assert.Equal(t, attr.FileTypeDirectory, op.Info.FileType())
	assert.False(t, op.Info.HasAttribute(attr.StandardDisplayName))

	missing := &QueryInfo{Path: "/missing", Matcher: attr.MatchAll()}
	assert.True(t, vfs.IsCode(wait(t, d.Submit(mount, missing, nil)), vfs.ErrNotFound))
}

func TestRootQueryWithNilMatcherIsNameOnly(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	b := &bareBackend{Base: backend.NewBase(backend.Info{DisplayName: "Bare", Icon: "drive"})}
	canonical, err := d.Mount(context.Background(), b, vfs.NewMountSpec("bare"))
	require.NoError(t, err)

	op := &QueryInfo{Path: "/"}
	require.NoError(t, wait(t, d.Submit(canonical.String(), op, nil)))
	assert.Equal(t, []string{attr.StandardName}, op.Info.Attributes())
	assert.Equal(t, "/", op.Info.Name())
}

func TestRootQueryWithoutInfoCapability(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	b := &bareBackend{Base: backend.NewBase(backend.Info{DisplayName: "Bare"})}
	canonical, err := d.Mount(context.Background(), b, vfs.NewMountSpec("bare"))
	require.NoError(t, err)

	op := &QueryInfo{Path: "/", Matcher: attr.MatchAll()}
	require.NoError(t, wait(t, d.Submit(canonical.String(), op, nil)))
	assert.Equal(t, "Bare", op.Info.DisplayName())

	other := &QueryInfo{Path: "/x", Matcher: attr.MatchAll()}
	assert.True(t, vfs.IsCode(wait(t, d.Submit(canonical.String(), other, nil)), vfs.ErrNotSupported))
}

func TestInvalidBackendReply(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, _ := mountFake(t, d, "invalid")

	op := &QueryInfo{Path: "/nil", Matcher: attr.MatchAll()}
	err := wait(t, d.Submit(mount, op, nil))
	assert.True(t, vfs.IsCode(err, vfs.ErrInvalidReply))
	assert.Nil(t, op.Info)
}

type bareBackend struct {
	*backend.Base
	panicOnTry bool
}

func (b *bareBackend) Mount(ctx context.Context, spec *vfs.MountSpec) (*vfs.MountSpec, error) {
	return spec.Clone(), nil
}

func (b *bareBackend) TryDelete(p string) error {
	if b.panicOnTry {
		panic("delete exploded")
	}
	return nil
}

func TestPanicInTryBecomesIOError(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	b := &bareBackend{Base: backend.NewBase(backend.Info{}), panicOnTry: true}
	canonical, err := d.Mount(context.Background(), b, vfs.NewMountSpec("panicky"))
	require.NoError(t, err)

	var replies replyCounter
	j := d.Submit(canonical.String(), &Delete{Path: "/x"}, replies.reply)
	assert.True(t, vfs.IsCode(wait(t, j), vfs.ErrIO))
	assert.Equal(t, int32(1), replies.n.Load())

	// The coordinator survives.
	op := &QueryInfo{Path: "/", Matcher: attr.MatchAll()}
	require.NoError(t, wait(t, d.Submit(canonical.String(), op, nil)))
}

// ============================================================================
// Cancellation
// ============================================================================

func TestCancelBeforeBackendCallSendsOneErrorReply(t *testing.T) {
	d := newTestDispatcher(t, Config{Workers: 1})
	mount, f := mountFake(t, d, "cancel")

	// Occupy the only worker.
	var blockerReplies replyCounter
	blocker := d.Submit(mount, &Delete{Path: "/a.txt"}, blockerReplies.reply)
	select {
	case <-f.deleteStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("blocking delete did not start")
	}

	f.blockTry.Store(true)
	var replies replyCounter
	queued := d.Submit(mount, &QueryInfo{Path: "/a.txt", Matcher: attr.MatchAll()}, replies.reply)
	queued.Cancel()

	err := wait(t, queued)
	assert.True(t, vfs.IsCode(err, vfs.ErrCancelled))
	assert.Equal(t, StateCancelled, queued.State())
	assert.Equal(t, int32(1), replies.n.Load())
	assert.Equal(t, int32(1), f.runs.Load(), "only the blocking delete reached the backend")

	// A second cancel changes nothing.
	queued.Cancel()
	assert.Equal(t, int32(1), replies.n.Load())

	blocker.Cancel()
	assert.True(t, vfs.IsCode(wait(t, blocker), vfs.ErrCancelled))
	assert.Equal(t, int32(1), blockerReplies.n.Load())
}

func TestCancelledContextNeverReachesBackend(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "precancel")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var replies replyCounter
	j := d.SubmitContext(ctx, mount, &QueryInfo{Path: "/a.txt", Matcher: attr.MatchAll()}, replies.reply)
	assert.True(t, vfs.IsCode(wait(t, j), vfs.ErrCancelled))
	assert.Equal(t, int32(1), replies.n.Load())
	assert.Equal(t, int32(0), f.tries.Load())
}

func TestCancelRunningJob(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "running")

	var replies replyCounter
	j := d.Submit(mount, &Delete{Path: "/b.txt"}, replies.reply)
	<-f.deleteStarted
	assert.Equal(t, StateRunning, j.State())

	j.Cancel()
	assert.True(t, vfs.IsCode(wait(t, j), vfs.ErrCancelled))
	assert.Equal(t, StateCancelled, j.State())
	assert.Equal(t, int32(1), replies.n.Load())
}

// ============================================================================
// Data channels
// ============================================================================

func TestReadChannelLifecycle(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "stream")

	op, client := openRead(t, d, mount, "/a.txt")
	assert.True(t, op.CanSeek)
	assert.Equal(t, 1, f.Handles().Len())

	_, err := op.Remote()
	assert.Error(t, err, "descriptor is handed off once")

	data, err := client.Read(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	pos, err := client.Seek(6, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	data, err = client.Read(100)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	data, err = client.Read(100)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = client.Close()
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.txt"}, f.closed())
	assert.Equal(t, 0, f.Handles().Len())
}

func TestReadsOnSameHandleCompleteInOrder(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "order")
	f.onRead = func(ctx context.Context, s *fakeStream) error {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		return nil
	}

	_, client := openRead(t, d, mount, "/abc.txt")
	defer client.Close()

	var seqs []uint32
	for i := 0; i < 10; i++ {
		seq, err := client.Send(&channel.Request{Command: channel.CmdRead, Count: 1})
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}

	var got []byte
	for _, want := range seqs {
		r, err := client.Receive()
		require.NoError(t, err)
		require.Equal(t, want, r.Seq)
		got = append(got, r.Data...)
	}
	assert.Equal(t, "abcdefghij", string(got))
}

func TestReadsOnDifferentHandlesAreIndependent(t *testing.T) {
	d := newTestDispatcher(t, Config{Workers: 4})
	mount, f := mountFake(t, d, "independent")

	gate := make(chan struct{})
	var once sync.Once
	f.onRead = func(ctx context.Context, s *fakeStream) error {
		switch s.name {
		case "/a.txt":
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "/b.txt":
			once.Do(func() { close(gate) })
		}
		return nil
	}

	_, slow := openRead(t, d, mount, "/a.txt")
	defer slow.Close()
	_, fast := openRead(t, d, mount, "/b.txt")
	defer fast.Close()

	_, err := slow.Send(&channel.Request{Command: channel.CmdRead, Count: 5})
	require.NoError(t, err)

	// The second handle completes while the first is still blocked.
	data, err := fast.Read(6)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	r, err := slow.Receive()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(r.Data))
}

func TestUnmountClosesChannels(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "shutdown")

	_, client := openRead(t, d, mount, "/a.txt")
	require.NoError(t, d.Unmount(mount))

	r, err := client.Receive()
	require.NoError(t, err)
	assert.True(t, r.Final)
	assert.True(t, vfs.IsCode(r.Err(), vfs.ErrClosed))

	assert.Equal(t, []string{"/a.txt"}, f.closed())
	assert.Equal(t, 0, f.Handles().Len())
}

func TestDroppedDescriptorReleasesHandle(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "dropped")

	op := &OpenForRead{Path: "/a.txt"}
	require.NoError(t, wait(t, d.Submit(mount, op, nil)))
	remote, err := op.Remote()
	require.NoError(t, err)
	require.NoError(t, remote.Close())

	select {
	case <-op.Channel.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not shut down")
	}
	assert.Equal(t, []string{"/a.txt"}, f.closed())
	assert.Equal(t, 0, f.Handles().Len())
}

func TestOpenMissingFile(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "missing")

	op := &OpenForRead{Path: "/nope"}
	assert.True(t, vfs.IsCode(wait(t, d.Submit(mount, op, nil)), vfs.ErrNotFound))
	assert.Nil(t, op.Channel)
	assert.Equal(t, 0, f.Handles().Len())
}

func TestMonitorChannel(t *testing.T) {
	d := newTestDispatcher(t, Config{})
	mount, f := mountFake(t, d, "monitor")

	op := &CreateMonitor{Path: "/", MonitorKind: vfs.MonitorDirectory}
	require.NoError(t, wait(t, d.Submit(mount, op, nil)))
	remote, err := op.Remote()
	require.NoError(t, err)
	client, err := channel.NewClient(remote)
	require.NoError(t, err)

	f.mu.Lock()
	mon := f.monitor
	f.mu.Unlock()
	mon.events <- backend.MonitorEvent{Type: backend.EventMoved, Path: "/a.txt", OtherPath: "/c.txt"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := client.NextEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(backend.EventMoved), ev.Value)
	assert.Equal(t, "/a.txt", ev.Text)
	assert.Equal(t, "/c.txt", string(ev.Data))

	_, err = client.Close()
	require.NoError(t, err)
	assert.True(t, mon.closed.Load())
	assert.Equal(t, 0, f.Handles().Len())
}
