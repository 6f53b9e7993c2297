package prometheus

import (
	"time"

	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// jobMetrics is the Prometheus implementation of metrics.JobMetrics.
type jobMetrics struct {
	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobsInFlight     *prometheus.GaugeVec
	bytesTransferred *prometheus.CounterVec
	openChannels     *prometheus.GaugeVec
	channelsTotal    *prometheus.CounterVec
	mounts           prometheus.Gauge
}

// NewJobMetrics returns the Prometheus-backed JobMetrics registered with the
// global registry. Every call returns the same instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewJobMetrics() metrics.JobMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopJobMetrics()
	}

	return metrics.Shared("jobs", func(reg prometheus.Registerer) metrics.JobMetrics {
		return newJobMetrics(reg)
	})
}

func newJobMetrics(reg prometheus.Registerer) *jobMetrics {
	return &jobMetrics{
		jobsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovfs_jobs_total",
				Help: "Total number of jobs by kind, execution mode, status and error kind",
			},
			[]string{"kind", "mode", "status", "error_code"},
		),
		jobDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittovfs_job_duration_milliseconds",
				Help: "Time from job submission to reply in milliseconds",
				Buckets: []float64{
					0.1,   // 100us
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"kind", "mode"},
		),
		jobsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittovfs_jobs_in_flight",
				Help: "Current number of jobs waiting for a reply",
			},
			[]string{"kind"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovfs_channel_bytes_total",
				Help: "Total bytes moved over data channels",
			},
			[]string{"direction"},
		),
		openChannels: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittovfs_channels_open",
				Help: "Current number of open data channels",
			},
			[]string{"direction"},
		),
		channelsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovfs_channels_opened_total",
				Help: "Total number of data channels opened",
			},
			[]string{"direction"},
		),
		mounts: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittovfs_mounts",
				Help: "Current number of routable mounts",
			},
		),
	}
}

func (m *jobMetrics) RecordJob(kind, mode string, duration time.Duration, errorCode string) {
	status := "success"
	if errorCode != "" {
		status = "error"
	}

	m.jobsTotal.WithLabelValues(kind, mode, status, errorCode).Inc()
	m.jobDuration.WithLabelValues(kind, mode).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *jobMetrics) RecordJobStart(kind string) {
	m.jobsInFlight.WithLabelValues(kind).Inc()
}

func (m *jobMetrics) RecordJobEnd(kind string) {
	m.jobsInFlight.WithLabelValues(kind).Dec()
}

func (m *jobMetrics) RecordBytesTransferred(direction string, bytes uint64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *jobMetrics) RecordChannelOpened(direction string) {
	m.openChannels.WithLabelValues(direction).Inc()
	m.channelsTotal.WithLabelValues(direction).Inc()
}

func (m *jobMetrics) RecordChannelClosed(direction string) {
	m.openChannels.WithLabelValues(direction).Dec()
}

func (m *jobMetrics) SetMounts(count int) {
	m.mounts.Set(float64(count))
}
