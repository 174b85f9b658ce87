// Package chatlog persists one row per chat turn stage for later review.
package chatlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// Entry is one logged chat event.
type Entry struct {
	ID           int64     `json:"id"`
	TraceID      string    `json:"trace_id"`
	SessionID    string    `json:"session_id"`
	Stage        string    `json:"stage"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	Source       string    `json:"source"`
	PromptChars  int       `json:"prompt_chars"`
	AnswerChars  int       `json:"answer_chars"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Writer persists chat log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// Query filters List. Zero fields match everything.
type Query struct {
	Limit     int
	Offset    int
	Stage     string
	SessionID string
	Source    string
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Data  []Entry `json:"data"`
	Total int     `json:"total"`
}

// MaintenanceQuery selects entries for deletion.
type MaintenanceQuery struct {
	Before *time.Time
}

// SQLWriter persists entries to SQLite or Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// Open picks the driver from dsn: postgres:// and postgresql:// URLs use
// Postgres, anything else is a SQLite path.
func Open(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresWriter(dsn)
	}
	return NewSQLiteWriter(dsn)
}

func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "assistme-chats.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite chat log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: dialectSQLite}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres chat log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: dialectPostgres}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s chat log writer: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS chat_logs (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	session_id TEXT,
	stage TEXT NOT NULL,
	model TEXT,
	provider TEXT,
	source TEXT,
	prompt_chars INTEGER NOT NULL,
	answer_chars INTEGER NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == dialectPostgres {
		ddl = `
CREATE TABLE IF NOT EXISTS chat_logs (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	session_id TEXT,
	stage TEXT NOT NULL,
	model TEXT,
	provider TEXT,
	source TEXT,
	prompt_chars INTEGER NOT NULL,
	answer_chars INTEGER NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize chat log schema: %w", err)
	}
	return nil
}

// bind rewrites ? placeholders to $n for Postgres.
func (w *SQLWriter) bind(query string) string {
	if w.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", argNum)
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := w.bind(`INSERT INTO chat_logs(trace_id, session_id, stage, model, provider, source, prompt_chars, answer_chars, error_message, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.SessionID,
		entry.Stage,
		entry.Model,
		entry.Provider,
		entry.Source,
		entry.PromptChars,
		entry.AnswerChars,
		entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write chat log: %w", err)
	}
	return nil
}

func (q Query) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.Stage != "" {
		clauses = append(clauses, "stage = ?")
		args = append(args, q.Stage)
	}
	if q.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, q.Source)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns entries matching q, newest first. Limit defaults to 50 and is
// capped at 500.
func (w *SQLWriter) List(ctx context.Context, q Query) (*ListResult, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	where, args := q.where()

	var total int
	if err := w.db.QueryRowContext(ctx, w.bind("SELECT COUNT(*) FROM chat_logs"+where), args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count chat logs: %w", err)
	}

	query := w.bind(`SELECT id, trace_id, session_id, stage, model, provider, source, prompt_chars, answer_chars, error_message, created_at
	FROM chat_logs` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	rows, err := w.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list chat logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &ListResult{Total: total, Data: []Entry{}}
	for rows.Next() {
		var (
			e                                                  Entry
			traceID, sessionID, model, provider, source, errMsg sql.NullString
		)
		if err := rows.Scan(&e.ID, &traceID, &sessionID, &e.Stage, &model, &provider, &source,
			&e.PromptChars, &e.AnswerChars, &errMsg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat log: %w", err)
		}
		e.TraceID = traceID.String
		e.SessionID = sessionID.String
		e.Model = model.String
		e.Provider = provider.String
		e.Source = source.String
		e.ErrorMessage = errMsg.String
		result.Data = append(result.Data, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat logs: %w", err)
	}
	return result, nil
}

// Delete removes entries selected by q and returns how many were removed. A
// query without Before is rejected.
func (w *SQLWriter) Delete(ctx context.Context, q MaintenanceQuery) (int64, error) {
	if q.Before == nil {
		return 0, fmt.Errorf("delete chat logs: before is required")
	}
	res, err := w.db.ExecContext(ctx, w.bind("DELETE FROM chat_logs WHERE created_at < ?"), q.Before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete chat logs: %w", err)
	}
	return res.RowsAffected()
}

func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
