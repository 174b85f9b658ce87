package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memorySession struct {
	messages   []Message
	created    time.Time
	lastAccess time.Time
}

// Memory is the in-process Store.
type Memory struct {
	mu         sync.Mutex
	maxHistory int
	expiry     time.Duration
	sessions   map[string]*memorySession
	now        func() time.Time
}

// NewMemory creates an in-process store keeping maxHistory exchanges per
// session for expiry of idle time. Non-positive values fall back to 10
// exchanges and one hour.
func NewMemory(maxHistory int, expiry time.Duration) *Memory {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Memory{
		maxHistory: maxHistory,
		expiry:     expiry,
		sessions:   make(map[string]*memorySession),
		now:        time.Now,
	}
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, sessionID, userMsg, assistantMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s, ok := m.sessions[sessionID]
	if !ok || m.expired(s, now) {
		s = &memorySession{created: now}
		m.sessions[sessionID] = s
	}
	s.messages = append(s.messages,
		Message{Role: RoleUser, Content: userMsg},
		Message{Role: RoleAssistant, Content: assistantMsg},
	)
	s.messages = trim(s.messages, m.maxHistory)
	s.lastAccess = now
	return nil
}

// Read implements Store. A stale session is deleted.
func (m *Memory) Read(_ context.Context, sessionID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	if m.expired(s, m.now()) {
		delete(m.sessions, sessionID)
		return nil, nil
	}
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Len implements Store. Stale sessions not yet swept are counted.
func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions), nil
}

// Sweep deletes every idle session and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *Memory) StartSweeper(ctx context.Context, interval time.Duration) {
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
				if n := m.Sweep(); n > 0 {
					slog.Debug("session sweep", "removed", n)
				}
			}
		}
	}()
}

func (m *Memory) expired(s *memorySession, now time.Time) bool {
	return now.Sub(s.lastAccess) > m.expiry
}
