package contact

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLStore keeps submissions in a SQLite or Postgres table.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// OpenSQLStore picks the driver from dsn the same way the chat log does:
// postgres:// URLs use Postgres, anything else is a SQLite path.
func OpenSQLStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	driver := "sqlite"
	postgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
	if postgres {
		driver = "postgres"
	} else if dsn == "" {
		dsn = "assistme-contact.db"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s contact store: %w", driver, err)
	}
	s := &SQLStore{db: db, postgres: postgres}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping contact store: %w", err)
	}
	ts := "TIMESTAMP"
	if s.postgres {
		ts = "TIMESTAMPTZ"
	}
	ddl := `
CREATE TABLE IF NOT EXISTS contact_messages (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	subject TEXT NOT NULL,
	message TEXT NOT NULL,
	user_agent TEXT,
	submitted_from TEXT,
	ip TEXT,
	created_at ` + ts + ` NOT NULL
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize contact schema: %w", err)
	}
	return nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, rec Record) (string, error) {
	id := uuid.NewString()
	query := `INSERT INTO contact_messages(id, name, email, subject, message, user_agent, submitted_from, ip, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if s.postgres {
		query = `INSERT INTO contact_messages(id, name, email, subject, message, user_agent, submitted_from, ip, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	}
	_, err := s.db.ExecContext(ctx, query,
		id, rec.Name, rec.Email, rec.Subject, rec.Message,
		rec.UserAgent, rec.SubmittedFrom, rec.IP, rec.Timestamp.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert contact message: %w", err)
	}
	return id, nil
}

// Count returns the number of stored messages.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contact_messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("count contact messages: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
