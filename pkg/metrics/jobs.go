package metrics

import "time"

// JobMetrics provides observability for the job dispatcher and data channels.
//
// Implementations collect job counts and latencies split by operation kind
// and execution mode, in-flight gauges, bytes moved over data channels and
// channel lifecycle counts. If no implementation is supplied to the
// dispatcher, a no-op one is used with zero overhead.
//
// Example usage:
//
//	metrics.InitRegistry()
//	d := job.NewDispatcher(cfg, prometheus.NewJobMetrics())
//
//	// Without metrics
//	d := job.NewDispatcher(cfg, nil)
type JobMetrics interface {
	// RecordJob records a finished job.
	//
	// Parameters:
	//   - kind: operation kind (e.g., "query-info", "read")
	//   - mode: "try" when the non-blocking form completed it, "run" when a
	//     worker did, "none" when it failed before reaching the backend
	//   - duration: time from submission to reply
	//   - errorCode: empty on success, the error kind otherwise
	RecordJob(kind, mode string, duration time.Duration, errorCode string)

	// RecordJobStart increments the in-flight job gauge.
	RecordJobStart(kind string)

	// RecordJobEnd decrements the in-flight job gauge.
	RecordJobEnd(kind string)

	// RecordBytesTransferred records bytes moved over a data channel.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: number of bytes
	RecordBytesTransferred(direction string, bytes uint64)

	// RecordChannelOpened increments the open channel gauge.
	RecordChannelOpened(direction string)

	// RecordChannelClosed decrements the open channel gauge.
	RecordChannelClosed(direction string)

	// SetMounts updates the number of routable mounts.
	SetMounts(count int)
}

// NewNoopJobMetrics returns a JobMetrics that discards everything.
func NewNoopJobMetrics() JobMetrics {
	return noopJobMetrics{}
}

type noopJobMetrics struct{}

func (noopJobMetrics) RecordJob(kind, mode string, duration time.Duration, errorCode string) {}
func (noopJobMetrics) RecordJobStart(kind string)                                            {}
func (noopJobMetrics) RecordJobEnd(kind string)                                              {}
func (noopJobMetrics) RecordBytesTransferred(direction string, bytes uint64)                 {}
func (noopJobMetrics) RecordChannelOpened(direction string)                                  {}
func (noopJobMetrics) RecordChannelClosed(direction string)                                  {}
func (noopJobMetrics) SetMounts(count int)                                                   {}
