package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter(maxRequests int, window time.Duration) (*Limiter, *time.Time) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(maxRequests, window)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)
	for i := 0; i < 5; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("expected allow on request %d", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("expected the 6th request to be rejected")
	}
}

func TestRejectedCallsAreNotRecorded(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)
	l.Allow("k")
	*now = now.Add(30 * time.Second)
	l.Allow("k")
	for i := 0; i < 10; i++ {
		l.Allow("k")
	}
	// The first timestamp leaves the window; only one slot frees up.
	*now = now.Add(31 * time.Second)
	if !l.Allow("k") {
		t.Fatal("expected a slot once the oldest request left the window")
	}
	if l.Allow("k") {
		t.Fatal("rejected attempts must not have extended the window")
	}
}

func TestAllowAfterWindow(t *testing.T) {
	l, now := newTestLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		l.Allow("k")
	}
	if l.Allow("k") {
		t.Fatal("expected limit to be reached")
	}
	*now = now.Add(time.Minute)
	if !l.Allow("k") {
		t.Fatal("expected allow after the window elapsed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	if !l.Allow("a") {
		t.Fatal("expected allow for a")
	}
	if !l.Allow("b") {
		t.Fatal("expected allow for b")
	}
	if l.Allow("a") {
		t.Fatal("expected a to be limited")
	}
}

func TestRetryAfter(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)
	if got := l.RetryAfter("k"); got != 0 {
		t.Fatalf("RetryAfter on fresh key = %v, want 0", got)
	}
	l.Allow("k")
	*now = now.Add(20 * time.Second)
	l.Allow("k")

	if got := l.RetryAfter("k"); got != 40*time.Second {
		t.Fatalf("RetryAfter = %v, want 40s", got)
	}
}

func TestSweepRemovesIdleKeys(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)
	l.Allow("idle")
	*now = now.Add(45 * time.Second)
	l.Allow("active")
	*now = now.Add(30 * time.Second)

	if removed := l.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d keys, want 1", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
}

func TestStartSweeperStopsWithContext(t *testing.T) {
	l := New(5, time.Millisecond)
	l.Allow("k")

	ctx, cancel := context.WithCancel(context.Background())
	l.StartSweeper(ctx, 2*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for l.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if l.Len() != 0 {
		t.Fatalf("expected sweeper to drop the idle key, len = %d", l.Len())
	}
}

func TestDefaults(t *testing.T) {
	l := New(0, 0)
	if l.MaxRequests() != 20 || l.Window() != time.Minute {
		t.Fatalf("defaults = %d/%v, want 20/1m", l.MaxRequests(), l.Window())
	}
}
