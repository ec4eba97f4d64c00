// Package ratelimit implements a fixed-window request counter keyed by
// request origin.
//
// Each key gets a counter that starts at the first request and resets once
// its window has elapsed. Requests at or above the maximum are rejected with
// the number of whole seconds until the reset. Expired counters are swept
// opportunistically: each call has a small probability of triggering a
// sweep, so no background goroutine is needed.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrRateLimited is matched by every *Error.
var ErrRateLimited = errors.New("rate limit exceeded")

// Error is returned by Check when a key is over its limit.
type Error struct {
	// RetryAfter is the whole number of seconds until the window resets, at least 1.
	RetryAfter int
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *Error) Is(target error) bool { return target == ErrRateLimited }

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int       // seconds, only set when rejected
	ResetAt    time.Time // end of the current window
}

type counter struct {
	count   int
	resetAt time.Time
}

// Options configures a Limiter.
type Options struct {
	Max    int
	Window time.Duration

	// CleanupProbability is the chance, per call, of sweeping expired
	// counters. Zero disables sweeping.
	CleanupProbability float64

	// Now and Rand are for tests.
	Now  func() time.Time
	Rand func() float64
}

// Limiter is a fixed-window counter per key.
//
// Thread Safety: all methods are safe for concurrent use. Every
// read-modify-write of a counter happens under one mutex.
type Limiter struct {
	max     int
	window  time.Duration
	cleanup float64
	now     func() time.Time
	rand    func() float64

	mu       sync.Mutex
	counters map[string]*counter
}

// New creates a Limiter. Max and Window must be positive.
func New(opts Options) *Limiter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Limiter{
		max:      opts.Max,
		window:   opts.Window,
		cleanup:  opts.CleanupProbability,
		now:      opts.Now,
		rand:     opts.Rand,
		counters: make(map[string]*counter),
	}
}

// Allow admits or rejects one request for key.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cleanup > 0 && l.rand() < l.cleanup {
		l.sweepLocked(now)
	}

	c, ok := l.counters[key]
	switch {
	case !ok:
		c = &counter{count: 1, resetAt: now.Add(l.window)}
		l.counters[key] = c
	case !now.Before(c.resetAt):
		c.count = 1
		c.resetAt = now.Add(l.window)
	case c.count >= l.max:
		return Decision{
			Allowed:    false,
			Limit:      l.max,
			Remaining:  0,
			RetryAfter: retryAfter(c.resetAt.Sub(now)),
			ResetAt:    c.resetAt,
		}
	default:
		c.count++
	}

	return Decision{
		Allowed:   true,
		Limit:     l.max,
		Remaining: max(l.max-c.count, 0),
		ResetAt:   c.resetAt,
	}
}

// Check is Allow reporting rejection as an *Error.
func (l *Limiter) Check(key string) error {
	if d := l.Allow(key); !d.Allowed {
		return &Error{RetryAfter: d.RetryAfter}
	}
	return nil
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// Sweep removes every expired counter now.
func (l *Limiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)
}

func (l *Limiter) sweepLocked(now time.Time) {
	for key, c := range l.counters {
		if !now.Before(c.resetAt) {
			delete(l.counters, key)
		}
	}
}

// retryAfter rounds d up to whole seconds, never less than 1.
func retryAfter(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}
