package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// ValkeyOptions configures DialValkey.
type ValkeyOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialValkey connects to a Valkey/Redis server and verifies it with PING.
func DialValkey(ctx context.Context, opts ValkeyOptions) (valkeylib.Client, error) {
	client, err := valkeylib.NewClient(valkeylib.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey %s: %w", opts.Addr, err)
	}
	return client, nil
}

type valkeyRecord struct {
	Messages   []Message `json:"messages"`
	Created    time.Time `json:"created"`
	LastAccess time.Time `json:"last_access"`
}

// Valkey stores each session as one JSON value whose TTL is the idle expiry,
// so the server discards idle sessions without a sweep. Append is a
// read-modify-write guarded by a process-local mutex; concurrent writers in
// other processes may interleave.
type Valkey struct {
	mu         sync.Mutex
	client     valkeylib.Client
	prefix     string
	maxHistory int
	expiry     time.Duration
}

// NewValkey wraps client. Keys are written as prefix+sessionID.
func NewValkey(client valkeylib.Client, prefix string, maxHistory int, expiry time.Duration) *Valkey {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if expiry <= 0 {
		expiry = time.Hour
	}
	if prefix == "" {
		prefix = "assistme:session:"
	}
	return &Valkey{client: client, prefix: prefix, maxHistory: maxHistory, expiry: expiry}
}

func (v *Valkey) key(sessionID string) string { return v.prefix + sessionID }

func (v *Valkey) load(ctx context.Context, sessionID string) (*valkeyRecord, error) {
	data, err := v.client.Do(ctx, v.client.B().Get().Key(v.key(sessionID)).Build()).AsBytes()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var rec valkeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

// Append implements Store.
func (v *Valkey) Append(ctx context.Context, sessionID, userMsg, assistantMsg string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, err := v.load(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rec == nil {
		rec = &valkeyRecord{Created: now}
	}
	rec.Messages = append(rec.Messages,
		Message{Role: RoleUser, Content: userMsg},
		Message{Role: RoleAssistant, Content: assistantMsg},
	)
	rec.Messages = trim(rec.Messages, v.maxHistory)
	rec.LastAccess = now

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	cmd := v.client.B().Set().Key(v.key(sessionID)).Value(string(data)).Ex(v.expiry).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Read implements Store. Expired keys have already been dropped by the server.
func (v *Valkey) Read(ctx context.Context, sessionID string) ([]Message, error) {
	rec, err := v.load(ctx, sessionID)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Messages, nil
}

// Delete implements Store.
func (v *Valkey) Delete(ctx context.Context, sessionID string) error {
	if err := v.client.Do(ctx, v.client.B().Del().Key(v.key(sessionID)).Build()).Error(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Len implements Store by scanning the key prefix.
func (v *Valkey) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		cmd := v.client.B().Scan().Cursor(cursor).Match(v.prefix + "*").Count(100).Build()
		entry, err := v.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return 0, fmt.Errorf("scan sessions: %w", err)
		}
		total += len(entry.Elements)
		cursor = entry.Cursor
		if cursor == 0 {
			return total, nil
		}
	}
}
