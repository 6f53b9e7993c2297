package config

import (
	"github.com/marmos91/dittovfs/pkg/metrics"
	promMetrics "github.com/marmos91/dittovfs/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// JobMetrics is the collector for the dispatcher (never nil, uses noop if disabled)
	JobMetrics metrics.JobMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// If metrics are enabled the global Prometheus registry is initialized and
// an HTTP server is created whose /healthz endpoint calls health. Otherwise
// the server is nil and JobMetrics is a no-op.
func InitializeMetrics(cfg *Config, health metrics.HealthFunc) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			JobMetrics: metrics.NewNoopJobMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:            cfg.Server.Metrics.Port,
		Health:          health,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	return &MetricsResult{
		Server:     server,
		JobMetrics: promMetrics.NewJobMetrics(),
	}
}
