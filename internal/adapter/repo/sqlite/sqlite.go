// Package sqlite provides single-file SQLite adapters for users and
// interviews, used when DB_URL has the sqlite:// scheme.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    current_role TEXT NOT NULL DEFAULT 'Data Scientist',
    resume_text TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS interviews (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    job_role TEXT NOT NULL,
    resume_text TEXT NOT NULL DEFAULT '',
    feedback_summary TEXT NOT NULL DEFAULT '',
    score INTEGER,
    verdict TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_interviews_user_created ON interviews (user_id, created_at DESC);
`

// Open opens (creating if needed) the database at path and ensures the schema.
// Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("op=sqlite.open: %w: empty path", domain.ErrInvalidArgument)
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("op=sqlite.open: %w", err)
	}
	// SQLite serializes writers anyway; one connection also keeps :memory: a single database.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("op=sqlite.open: schema: %w", err)
	}
	return db, nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) && (se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}
