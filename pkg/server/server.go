// Package server runs the DittoVFS daemon: it owns the settings store, the
// job dispatcher and its mounts, and the long-running services (control
// socket, metrics endpoint) that expose them.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/config"
	"github.com/marmos91/dittovfs/pkg/job"
	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/rpc"
	"github.com/marmos91/dittovfs/pkg/settings"
	"golang.org/x/sync/errgroup"
)

// Service is a long-running component of the daemon.
type Service interface {
	// Name identifies the service in logs.
	Name() string

	// Serve runs until ctx is cancelled or the service fails.
	Serve(ctx context.Context) error

	// Stop asks the service to shut down, waiting at most until ctx ends.
	Stop(ctx context.Context) error
}

// Daemon manages the lifecycle of the dispatcher and the services that share it.
//
// Lifecycle:
//  1. Creation: New() opens the settings store, creates the dispatcher,
//     mounts the configured backends and binds the control socket
//  2. Startup: Serve() runs every service concurrently
//  3. Shutdown: context cancellation (or any service failing) stops every
//     service, then unmounts everything and closes the settings store
//
// Serve may only be called once.
type Daemon struct {
	cfg *config.Config

	settings   *settings.Store
	dispatcher *job.Dispatcher
	control    *rpc.Server
	services   []Service

	serveOnce sync.Once
	served    bool
	ready     chan struct{}
	state     atomic.Int32
}

const (
	stateStarting int32 = iota
	stateRunning
	stateStopping
)

// New builds a daemon from cfg. On error everything opened so far is
// closed again.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	d := &Daemon{cfg: cfg, ready: make(chan struct{})}
	if err := d.open(ctx); err != nil {
		d.release()
		return nil, err
	}
	return d, nil
}

// open acquires the daemon's resources in dependency order.
func (d *Daemon) open(ctx context.Context) error {
	var err error
	d.settings, err = settings.Open(ctx, d.cfg.Settings)
	if err != nil {
		return err
	}

	m := config.InitializeMetrics(d.cfg, d.health)

	d.dispatcher = job.NewDispatcher(job.Config{
		Workers:     d.cfg.Dispatcher.Workers,
		MaxReadSize: d.cfg.Dispatcher.MaxReadSize,
	}, m.JobMetrics)

	factory := config.NewBackendFactory(d.settings)
	if _, err := factory.MountAll(ctx, d.dispatcher, d.cfg.Mounts); err != nil {
		return err
	}

	control := rpc.NewServer(d.cfg.Control, d.dispatcher, factory.MountFunc())
	if err := control.Listen(); err != nil {
		return err
	}
	d.control = control
	d.services = append(d.services, d.control)

	if m.Server != nil {
		d.services = append(d.services, &metricsService{m.Server})
	}

	return nil
}

// Serve runs every service until ctx is cancelled or one of them fails,
// then shuts the daemon down. It returns ctx.Err() on a requested
// shutdown and the first service error otherwise.
func (d *Daemon) Serve(ctx context.Context) error {
	err := errors.New("Serve() has already been called on this daemon")
	d.serveOnce.Do(func() {
		d.served = true
		err = d.serve(ctx)
	})
	return err
}

func (d *Daemon) serve(ctx context.Context) error {
	logger.Info("Starting DittoVFS daemon with %d service(s) and %d mount(s)",
		len(d.services), len(d.dispatcher.Mounts()))

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range d.services {
		g.Go(func() error {
			logger.Debug("Starting %s service", svc.Name())
			if err := svc.Serve(gctx); err != nil && ctx.Err() == nil {
				logger.Error("%s service failed: %v", svc.Name(), err)
				return fmt.Errorf("%s service error: %w", svc.Name(), err)
			}
			logger.Debug("%s service stopped", svc.Name())
			return nil
		})
	}
	d.state.Store(stateRunning)
	close(d.ready)

	<-gctx.Done()
	d.state.Store(stateStopping)
	d.stopAll()
	serveErr := g.Wait()

	d.release()
	logger.Info("DittoVFS daemon stopped")

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

// stopAll stops services in reverse registration order.
func (d *Daemon) stopAll() {
	ctx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout())
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d service(s)", len(d.services))

	for i := len(d.services) - 1; i >= 0; i-- {
		svc := d.services[i]
		if err := svc.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s service: %v", svc.Name(), err)
		}
	}
}

func (d *Daemon) shutdownTimeout() time.Duration {
	if d.cfg.Server.ShutdownTimeout > 0 {
		return d.cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

// release closes the dispatcher (unmounting every backend) and the settings
// store.
func (d *Daemon) release() {
	if d.control != nil && !d.served {
		ctx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout())
		_ = d.control.Stop(ctx)
		cancel()
	}
	if d.dispatcher != nil {
		if err := d.dispatcher.Close(); err != nil {
			logger.Warn("Error closing dispatcher: %v", err)
		}
		d.dispatcher = nil
	}
	if d.settings != nil {
		if err := d.settings.Close(); err != nil {
			logger.Warn("Error closing settings store: %v", err)
		}
		d.settings = nil
	}
}

// Ready is closed once Serve has started every service.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// SocketPath returns the control socket path.
func (d *Daemon) SocketPath() string {
	return d.cfg.Control.SocketPath
}

// Dispatcher returns the daemon's dispatcher.
func (d *Daemon) Dispatcher() *job.Dispatcher {
	return d.dispatcher
}

// health backs the /healthz endpoint.
func (d *Daemon) health() error {
	switch d.state.Load() {
	case stateRunning:
		return nil
	case stateStarting:
		return errors.New("starting")
	default:
		return errors.New("shutting down")
	}
}

// metricsService adapts the metrics HTTP server to Service.
type metricsService struct {
	*metrics.Server
}

func (s *metricsService) Name() string { return "metrics" }

func (s *metricsService) Serve(ctx context.Context) error { return s.Start(ctx) }
