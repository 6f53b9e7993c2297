package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittovfs/pkg/config"
	"github.com/marmos91/dittovfs/pkg/rpc"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	// Unix socket paths are length limited; keep them short.
	sockDir, err := os.MkdirTemp("", "dvfs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })

	cfg := &config.Config{
		Mounts: []config.MountConfig{
			{Name: "data", Type: "local", Options: map[string]any{"root": root}},
		},
	}
	cfg.Control.SocketPath = filepath.Join(sockDir, "ctl.sock")
	cfg.Server.ShutdownTimeout = 5 * time.Second
	config.ApplyDefaults(cfg)
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func startDaemon(t *testing.T, cfg *config.Config) (*Daemon, context.CancelFunc, <-chan error) {
	t.Helper()
	d, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	select {
	case <-d.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not start")
	}
	return d, cancel, done
}

func TestDaemonServesConfiguredMounts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0o644))

	d, cancel, done := startDaemon(t, testConfig(t, root))
	defer func() {
		cancel()
		<-done
	}()

	ctx := context.Background()
	client, err := rpc.Dial(ctx, d.SocketPath())
	require.NoError(t, err)
	defer client.Close()

	mounts, err := client.Mounts(ctx)
	require.NoError(t, err)
	require.Len(t, mounts, 1)

	info, err := client.QueryInfo(ctx, mounts[0].Mount, "/hello.txt", "standard:size", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size())
}

func TestDaemonMountsMailFromSettings(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "Maildir", "cur"), 0o755))

	cfg := testConfig(t, t.TempDir())
	cfg.Settings.Path = filepath.Join(t.TempDir(), "settings")

	d, cancel, done := startDaemon(t, cfg)
	defer func() {
		cancel()
		<-done
	}()

	ctx := context.Background()
	client, err := rpc.Dial(ctx, d.SocketPath())
	require.NoError(t, err)
	defer client.Close()

	info, err := client.Mount(ctx, vfs.NewMountSpec("mail"))
	require.NoError(t, err)
	assert.Equal(t, "mail", info.Mount)
	assert.Equal(t, "Mail", info.DisplayName)
	assert.False(t, info.UserVisible)
}

func TestDaemonShutdown(t *testing.T) {
	d, cancel, done := startDaemon(t, testConfig(t, t.TempDir()))
	socket := d.SocketPath()

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, err := os.Stat(socket)
	assert.True(t, os.IsNotExist(err), "control socket should be removed")
	assert.Nil(t, d.Dispatcher())

	assert.Error(t, d.Serve(context.Background()))
}

func TestNewFailsOnBadMount(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing"))

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, vfs.IsCode(err, vfs.ErrNotFound))

	// The socket was never bound, so a second daemon can use the path.
	cfg.Mounts[0].Options["root"] = t.TempDir()
	d, cancel, done := startDaemon(t, cfg)
	_ = d
	cancel()
	<-done
}

func TestNewFailsWhenSocketPathTaken(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	require.NoError(t, os.WriteFile(cfg.Control.SocketPath, []byte("not a socket"), 0o644))

	d, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Contains(t, err.Error(), "not a socket")

	// Anything that is not a socket is left in place.
	_, statErr := os.Stat(cfg.Control.SocketPath)
	require.NoError(t, statErr)

	require.NoError(t, os.Remove(cfg.Control.SocketPath))
	_, cancel, done := startDaemon(t, cfg)
	cancel()
	<-done
}

func TestNewFailsOnUnusableSettingsPath(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	file := filepath.Join(t.TempDir(), "settings")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	cfg.Settings.Path = file

	d, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, d)

	_, err = os.Stat(cfg.Control.SocketPath)
	assert.True(t, os.IsNotExist(err), "control socket should not be bound")
}

func TestHealthStates(t *testing.T) {
	d := &Daemon{ready: make(chan struct{})}
	assert.EqualError(t, d.health(), "starting")

	d.state.Store(stateRunning)
	assert.NoError(t, d.health())

	d.state.Store(stateStopping)
	assert.EqualError(t, d.health(), "shutting down")
}
