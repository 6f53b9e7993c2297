package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/internal/ratelimiter"
	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/job"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// MountFunc creates an unmounted backend for a mount request. The server
// then runs the backend's mount step through the dispatcher.
type MountFunc func(ctx context.Context, spec *vfs.MountSpec) (backend.Backend, error)

// RateLimitConfig bounds control requests per server.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 disables limiting.
	RequestsPerSecond uint `mapstructure:"requests_per_second"`

	// Burst is the bucket size. Defaults to twice the rate.
	Burst uint `mapstructure:"burst"`
}

// Config configures the control server.
type Config struct {
	// SocketPath is the Unix socket the server listens on.
	SocketPath string `mapstructure:"socket_path" validate:"required"`

	// MaxMessageSize bounds a single control packet (default 1 MiB).
	MaxMessageSize uint32 `mapstructure:"max_message_size" validate:"omitempty,min=4096"`

	// MaxConnections limits concurrent clients. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// ShutdownTimeout bounds how long Stop waits for connections to drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

func (c *Config) applyDefaults() {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerSecond * 2
	}
}

// Server accepts control connections and turns calls into jobs.
//
// Shutdown follows the same sequence whether triggered by the Serve context
// or by Stop: the listener closes, in-flight calls are cancelled, and the
// server waits up to ShutdownTimeout for connections to drain before
// force-closing them.
type Server struct {
	config     Config
	dispatcher *job.Dispatcher
	mount      MountFunc
	limiter    *ratelimiter.Limiter

	listenMu sync.Mutex
	listener *net.UnixListener

	activeConns       sync.WaitGroup
	connCount         atomic.Int32
	connSemaphore     chan struct{}
	activeConnections sync.Map
	nextConnID        atomic.Uint64

	shutdownOnce   sync.Once
	shutdown       chan struct{}
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// NewServer creates a control server. mount may be nil, in which case mount
// requests fail with ErrNotSupported.
func NewServer(config Config, d *job.Dispatcher, mount MountFunc) *Server {
	config.applyDefaults()

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Server{
		config:         config,
		dispatcher:     d,
		mount:          mount,
		limiter:        ratelimiter.New(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst),
		connSemaphore:  connSemaphore,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// Listen binds the socket. Serve calls it when it has not been called yet;
// calling it first lets callers connect as soon as it returns.
func (s *Server) Listen() error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	if s.listener != nil {
		return nil
	}

	path := s.config.SocketPath
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := removeStaleSocket(path); err != nil {
		return err
	}

	listener, err := net.ListenUnix("unixpacket", &net.UnixAddr{Name: path, Net: "unixpacket"})
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	listener.SetUnlinkOnClose(true)

	s.listener = listener
	logger.Info("Control server listening on %s", path)
	return nil
}

// removeStaleSocket deletes a socket file left by a previous run. Anything
// that is not a socket is left alone.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// Serve accepts connections until ctx is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Control server shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		uc, err := s.listener.AcceptUnix()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting control connection: %v", err)
				continue
			}
		}

		id := s.nextConnID.Add(1)
		s.activeConns.Add(1)
		s.activeConnections.Store(id, uc)
		current := s.connCount.Add(1)
		logger.Debug("Control connection %d accepted (active: %d)", id, current)

		c := newConnection(s, id, uc)
		go func() {
			defer func() {
				s.activeConnections.Delete(id)
				s.activeConns.Done()
				current := s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				logger.Debug("Control connection %d closed (active: %d)", id, current)
			}()

			c.serve(s.shutdownCtx)
		}()
	}
}

func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Control server shutdown initiated")
		close(s.shutdown)

		s.listenMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing control listener: %v", err)
			}
		}
		s.listenMu.Unlock()

		s.cancelRequests()
	})
}

func (s *Server) gracefulShutdown() error {
	logger.Info("Control server graceful shutdown: waiting for %d connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	select {
	case <-s.drained():
		logger.Info("Control server shutdown complete")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Control server shutdown timeout exceeded: %d connection(s) still active, forcing closure", remaining)
		s.forceCloseConnections()
		return fmt.Errorf("control server shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *Server) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

func (s *Server) forceCloseConnections() {
	s.activeConnections.Range(func(key, value any) bool {
		if err := value.(*net.UnixConn).Close(); err != nil {
			logger.Debug("Error force-closing control connection %d: %v", key, err)
		}
		return true
	})
}

// Stop shuts the server down and waits for connections to drain or ctx to
// expire.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	select {
	case <-s.drained():
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Control server stop cancelled: %d connection(s) still active: %v", remaining, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// ActiveConnections returns the number of connected clients.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Name identifies the server in daemon logs.
func (s *Server) Name() string {
	return "control"
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.config.SocketPath
}

func mountInfo(mount string, info backend.Info) MountInfo {
	return MountInfo{
		Mount:       mount,
		DisplayName: info.DisplayName,
		Icon:        info.Icon,
		UserVisible: info.UserVisible,
	}
}

// mountSpec creates and mounts a backend for the textual descriptor spec.
func (s *Server) mountSpec(ctx context.Context, spec string) (MountInfo, error) {
	if s.mount == nil {
		return MountInfo{}, vfs.NewError(vfs.ErrNotSupported, "mounting is not enabled")
	}

	parsed, err := vfs.ParseMountSpec(spec)
	if err != nil {
		return MountInfo{}, err
	}

	b, err := s.mount(ctx, parsed)
	if err != nil {
		return MountInfo{}, err
	}

	canonical, err := s.dispatcher.Mount(ctx, b, parsed)
	if err != nil {
		return MountInfo{}, err
	}
	return mountInfo(canonical.String(), b.Core().Info()), nil
}
