package ratelimiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabled(t *testing.T) {
	l := New(0, 10)
	require.Nil(t, l)

	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow())
	}
	assert.NoError(t, l.Wait(context.Background()))
	assert.Zero(t, l.Delay())
	assert.Zero(t, l.Waiting())
	assert.Zero(t, l.Burst())
}

func TestDisabledWaitHonoursContext(t *testing.T) {
	var l *Limiter
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestBurstDefaultsToTwiceRate(t *testing.T) {
	assert.Equal(t, 20, New(10, 0).Burst())
	assert.Equal(t, 3, New(10, 3).Burst())
}

func TestAllowExhaustsBurst(t *testing.T) {
	l := New(10, 5)

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow(), "request %d within burst", i)
	}
	assert.False(t, l.Allow())
	assert.Greater(t, l.Delay(), time.Duration(0))

	time.Sleep(150 * time.Millisecond)
	assert.True(t, l.Allow())
}

func TestDelayDoesNotConsume(t *testing.T) {
	l := New(1, 1)

	assert.Zero(t, l.Delay())
	assert.Zero(t, l.Delay())
	assert.True(t, l.Allow())

	// With the bucket empty, repeated calls must not push the delay past
	// one token interval.
	for i := 0; i < 3; i++ {
		d := l.Delay()
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestWaitThrottles(t *testing.T) {
	l := New(10, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitCancelled(t *testing.T) {
	l := New(1, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
	assert.Zero(t, l.Waiting())
}

func TestWaitingCountsBlockedCallers(t *testing.T) {
	l := New(1, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Wait(ctx)
		}()
	}

	assert.Eventually(t, func() bool { return l.Waiting() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()
	assert.Zero(t, l.Waiting())
}

func BenchmarkAllow(b *testing.B) {
	l := New(1_000_000, 1_000_000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			l.Allow()
		}
	})
}
