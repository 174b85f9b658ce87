// Package session keeps a bounded per-session conversation history with idle
// expiry.
//
// A session holds at most 2*maxHistory messages (user/assistant pairs trimmed
// from the front). Reading a session that has been idle longer than the
// expiry returns an empty history and deletes the session: Read can mutate
// the store, and the next Append starts a fresh history.
package session

import "context"

// Message is a single stored conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles written by Append.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store is implemented by every session backend.
type Store interface {
	// Append records one user/assistant exchange, creating the session when
	// it does not exist and refreshing its last-access time.
	Append(ctx context.Context, sessionID, userMsg, assistantMsg string) error
	// Read returns the session history, oldest first. Unknown or expired
	// sessions yield an empty history; expired ones are deleted.
	Read(ctx context.Context, sessionID string) ([]Message, error)
	// Delete removes the session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// Len returns the number of live sessions.
	Len(ctx context.Context) (int, error)
}

// Defaults mirror the public site configuration.
const (
	DefaultMaxHistory = 10
)

func trim(msgs []Message, maxHistory int) []Message {
	limit := 2 * maxHistory
	if len(msgs) <= limit {
		return msgs
	}
	out := make([]Message, limit)
	copy(out, msgs[len(msgs)-limit:])
	return out
}
