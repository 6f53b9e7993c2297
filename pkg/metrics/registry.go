// Package metrics provides Prometheus metrics for the DittoVFS daemon: job
// outcomes and latency per operation kind, open data channels, bytes moved
// over channels, and the number of mounts.
//
// Metrics are optional. Until InitRegistry is called, collectors are no-ops,
// so the dispatcher can always be handed a JobMetrics:
//
//	metrics.InitRegistry()                  // done by config.InitializeMetrics
//	m := prometheus.NewJobMetrics()         // pkg/metrics/prometheus
//	d := job.NewDispatcher(cfg, m)
//
//	d := job.NewDispatcher(cfg, nil)        // metrics disabled
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the process-wide registry served on /metrics. It is
	// written once by InitRegistry.
	registry     *prometheus.Registry
	registryOnce sync.Once

	// shared holds collector sets created by Shared, keyed by name.
	sharedMu sync.Mutex
	shared   = make(map[string]any)
)

// InitRegistry enables metrics by creating the global registry. Later calls
// are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil while metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Shared returns the collector set registered under name, creating it with
// create on first use. Prometheus rejects a second registration of the same
// metric names, so a daemon restarted within one process reuses the set
// built by the first one.
func Shared[T any](name string, create func(prometheus.Registerer) T) T {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if v, ok := shared[name]; ok {
		return v.(T)
	}
	v := create(GetRegistry())
	shared[name] = v
	return v
}
