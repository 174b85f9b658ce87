package session

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestMemory(maxHistory int, expiry time.Duration) (*Memory, *time.Time) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory(maxHistory, expiry)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestMemory_ImplementsStore(_ *testing.T) {
	var _ Store = (*Memory)(nil)
}

func TestMemory_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(10, time.Hour)

	if err := m.Append(ctx, "s1", "hi", "hello!"); err != nil {
		t.Fatal(err)
	}
	msgs, err := m.Read(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hi" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "hello!" {
		t.Errorf("second message = %+v", msgs[1])
	}
}

func TestMemory_TrimsToMostRecent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(3, time.Hour)

	for i := 0; i < 4; i++ {
		_ = m.Append(ctx, "s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	msgs, _ := m.Read(ctx, "s1")
	if len(msgs) != 6 {
		t.Fatalf("len = %d, want 6", len(msgs))
	}
	if msgs[0].Content != "q1" {
		t.Errorf("oldest kept = %q, want q1", msgs[0].Content)
	}
	if msgs[len(msgs)-1].Content != "a3" {
		t.Errorf("most recent = %q, want a3", msgs[len(msgs)-1].Content)
	}
}

func TestMemory_StaleReadDeletesSession(t *testing.T) {
	ctx := context.Background()
	m, now := newTestMemory(10, time.Hour)

	_ = m.Append(ctx, "s1", "q0", "a0")
	*now = now.Add(time.Hour + time.Second)

	msgs, _ := m.Read(ctx, "s1")
	if len(msgs) != 0 {
		t.Fatalf("expected empty history after expiry, got %d", len(msgs))
	}
	if n, _ := m.Len(ctx); n != 0 {
		t.Fatalf("stale read should delete the session, len = %d", n)
	}

	_ = m.Append(ctx, "s1", "q1", "a1")
	msgs, _ = m.Read(ctx, "s1")
	if len(msgs) != 2 || msgs[0].Content != "q1" {
		t.Fatalf("expected a fresh history, got %+v", msgs)
	}
}

func TestMemory_AppendRefreshesLastAccess(t *testing.T) {
	ctx := context.Background()
	m, now := newTestMemory(10, time.Hour)

	_ = m.Append(ctx, "s1", "q0", "a0")
	*now = now.Add(50 * time.Minute)
	_ = m.Append(ctx, "s1", "q1", "a1")
	*now = now.Add(50 * time.Minute)

	msgs, _ := m.Read(ctx, "s1")
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
}

func TestMemory_ReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(10, time.Hour)
	_ = m.Append(ctx, "s1", "q", "a")

	msgs, _ := m.Read(ctx, "s1")
	msgs[0].Content = "mutated"

	again, _ := m.Read(ctx, "s1")
	if again[0].Content != "q" {
		t.Fatal("callers must not be able to mutate stored history")
	}
}

func TestMemory_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(10, time.Hour)
	_ = m.Append(ctx, "s1", "q", "a")

	if err := m.Delete(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "s1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if msgs, _ := m.Read(ctx, "s1"); len(msgs) != 0 {
		t.Fatal("expected empty history after delete")
	}
}

func TestMemory_Sweep(t *testing.T) {
	ctx := context.Background()
	m, now := newTestMemory(10, time.Hour)
	_ = m.Append(ctx, "old", "q", "a")
	*now = now.Add(30 * time.Minute)
	_ = m.Append(ctx, "new", "q", "a")
	*now = now.Add(31 * time.Minute)

	if removed := m.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if n, _ := m.Len(ctx); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
}
