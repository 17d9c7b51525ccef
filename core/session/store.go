package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists per-session state as an opaque JSON document, replaced
// wholesale on every write. A side index of pending executions lets the
// scheduler re-arm timers after a restart without parsing every session.
type Store struct {
	db   *sql.DB
	path string
}

// Config tunes the underlying SQLite pool.
type Config struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	BusyTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxOpen:     10,
		MaxIdle:     5,
		MaxLifetime: time.Hour,
		BusyTimeout: 30 * time.Second,
	}
}

// PendingRef identifies one scheduled execution awaiting its alarm.
type PendingRef struct {
	SessionID   string
	ExecutionID string
	ScheduledAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_executions (
	execution_id TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	scheduled_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_session ON pending_executions(session_id);
`

// Open creates or opens the session database at path.
func Open(path string, config Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=1",
		path,
		int(config.BusyTimeout.Milliseconds()),
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpen)
	db.SetMaxIdleConns(config.MaxIdle)
	db.SetConnMaxLifetime(config.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Load returns the stored state document for sessionID. The second return is
// false when the session has never been written.
func (s *Store) Load(ctx context.Context, sessionID string) (json.RawMessage, bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	return json.RawMessage(state), true, nil
}

// Replace overwrites the session's state document and synchronizes its
// pending-execution index in one transaction. pending must list every
// execution still pending for this session; entries not listed are dropped.
func (s *Store) Replace(ctx context.Context, sessionID string, state json.RawMessage, pending []PendingRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		sessionID, string(state), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("replace session %s: %w", sessionID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_executions WHERE session_id = ?`, sessionID,
	); err != nil {
		return fmt.Errorf("clear pending for %s: %w", sessionID, err)
	}

	for _, ref := range pending {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending_executions (execution_id, session_id, scheduled_at) VALUES (?, ?, ?)`,
			ref.ExecutionID, sessionID, ref.ScheduledAt.UTC(),
		); err != nil {
			return fmt.Errorf("index pending %s: %w", ref.ExecutionID, err)
		}
	}

	return tx.Commit()
}

// ListPending returns every pending execution across all sessions, oldest
// first.
func (s *Store) ListPending(ctx context.Context) ([]PendingRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, session_id, scheduled_at FROM pending_executions ORDER BY scheduled_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var refs []PendingRef
	for rows.Next() {
		var ref PendingRef
		if err := rows.Scan(&ref.ExecutionID, &ref.SessionID, &ref.ScheduledAt); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// Delete removes a session and its pending index entries.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_executions WHERE session_id = ?`, sessionID,
	); err != nil {
		return fmt.Errorf("delete pending for %s: %w", sessionID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, sessionID,
	); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}

	return tx.Commit()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}
