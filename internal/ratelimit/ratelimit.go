// Package ratelimit paces calls to the social platform per endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements a fixed-window token bucket per key: each key may be used
// rate times per interval.
type Limiter struct {
	mu       sync.Mutex
	rate     int
	interval time.Duration
	buckets  map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

// New creates a limiter allowing rate calls per interval for each key.
// A non-positive rate disables limiting.
func New(rate int, interval time.Duration) *Limiter {
	return &Limiter{
		rate:     rate,
		interval: interval,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow reports whether a call for key may proceed now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.reserve(key)
	return ok
}

// Wait blocks until a call for key may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		ok, retryIn := l.reserve(key)
		if ok {
			return nil
		}
		timer := time.NewTimer(retryIn)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve consumes a token for key, or returns how long until the window resets.
func (l *Limiter) reserve(key string) (bool, time.Duration) {
	if l == nil || l.rate <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{tokens: l.rate - 1, lastReset: now}
		return true, 0
	}

	if now.Sub(b.lastReset) >= l.interval {
		b.tokens = l.rate - 1
		b.lastReset = now
		return true, 0
	}

	if b.tokens > 0 {
		b.tokens--
		return true, 0
	}

	return false, b.lastReset.Add(l.interval).Sub(now)
}
