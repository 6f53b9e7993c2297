// Package ratelimiter admits control requests at a bounded rate.
package ratelimiter

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by every control connection.
//
// A nil *Limiter admits everything, so callers can hold one unconditionally
// and let New decide whether limiting is enabled.
//
// All methods are safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
	waiting atomic.Int64
}

// New returns a limiter allowing requestsPerSecond sustained with bursts of
// up to burst requests. It returns nil when requestsPerSecond is 0. A zero
// burst defaults to twice the rate.
func New(requestsPerSecond, burst uint) *Limiter {
	if requestsPerSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = requestsPerSecond * 2
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst))}
}

// Wait blocks until a request may proceed or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	l.waiting.Add(1)
	defer l.waiting.Add(-1)
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}

// Delay returns how long a request arriving now would wait. No token is
// consumed.
func (l *Limiter) Delay() time.Duration {
	if l == nil {
		return 0
	}
	tokens := l.limiter.Tokens()
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(l.limiter.Limit()) * float64(time.Second))
}

// Waiting returns the number of requests blocked in Wait.
func (l *Limiter) Waiting() int64 {
	if l == nil {
		return 0
	}
	return l.waiting.Load()
}

// Burst returns the bucket size, or 0 when limiting is disabled.
func (l *Limiter) Burst() int {
	if l == nil {
		return 0
	}
	return l.limiter.Burst()
}
