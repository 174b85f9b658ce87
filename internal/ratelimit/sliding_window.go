// Package ratelimit provides an in-memory sliding-window rate limiter keyed by
// client (usually the caller's IP address).
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Limiter admits at most maxRequests per client within any trailing window.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	windows     map[string][]time.Time
	now         func() time.Time
}

// New creates a Limiter. Non-positive values fall back to 20 requests per
// 60 seconds.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		windows:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// MaxRequests returns the configured admission limit.
func (l *Limiter) MaxRequests() int { return l.maxRequests }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow prunes key's window and records the call if fewer than maxRequests
// remain in it. A rejected call is not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ts := l.prune(key, now)
	if len(ts) >= l.maxRequests {
		return false
	}
	l.windows[key] = append(ts, now)
	return true
}

// RetryAfter reports how long key must wait before Allow can succeed again.
// It returns zero when the key is currently under its limit.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ts := l.prune(key, now)
	if len(ts) < l.maxRequests {
		return 0
	}
	wait := ts[0].Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep drops every key whose window is empty after pruning and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key := range l.windows {
		if len(l.prune(key, now)) == 0 {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					slog.Debug("rate limiter sweep", "removed", n)
				}
			}
		}
	}()
}

// prune must be called with l.mu held. Timestamps are appended in order, so
// the live suffix starts at the first one still inside the window.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	ts := l.windows[key]
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= l.window {
		i++
	}
	if i > 0 {
		ts = append(ts[:0:0], ts[i:]...)
		if len(ts) == 0 {
			l.windows[key] = nil
		} else {
			l.windows[key] = ts
		}
	}
	return ts
}
