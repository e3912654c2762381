package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS review_records (
    repo        TEXT NOT NULL,
    number      INTEGER NOT NULL,
    head_sha    TEXT NOT NULL,
    reviewed_at TEXT NOT NULL,
    PRIMARY KEY (repo, number)
);

CREATE TABLE IF NOT EXISTS sessions (
    name     TEXT PRIMARY KEY,
    saved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_messages (
    session_name TEXT NOT NULL REFERENCES sessions(name) ON DELETE CASCADE,
    seq          INTEGER NOT NULL,
    role         TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content      TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    PRIMARY KEY (session_name, seq)
);
`

// ReviewRecord is the durable dedup record for one pull request.
type ReviewRecord struct {
	Repo       string
	Number     int
	HeadSHA    string
	ReviewedAt time.Time
}

// Message is one turn of a conversation history.
type Message struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Store provides durable state backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the state database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetReviewRecord returns the record for (repo, number), or ErrNotFound.
func (s *Store) GetReviewRecord(ctx context.Context, repo string, number int) (ReviewRecord, error) {
	rec := ReviewRecord{Repo: repo, Number: number}
	var reviewedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT head_sha, reviewed_at FROM review_records WHERE repo = ? AND number = ?`,
		repo, number,
	).Scan(&rec.HeadSHA, &reviewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ReviewRecord{}, ErrNotFound
	}
	if err != nil {
		return ReviewRecord{}, fmt.Errorf("getting review record: %w", err)
	}
	rec.ReviewedAt, _ = time.Parse(time.RFC3339, reviewedAt)
	return rec, nil
}

// UpsertReviewRecord records that (repo, number) was reviewed at headSHA.
func (s *Store) UpsertReviewRecord(ctx context.Context, repo string, number int, headSHA string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_records (repo, number, head_sha, reviewed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(repo, number) DO UPDATE SET head_sha = excluded.head_sha, reviewed_at = excluded.reviewed_at`,
		repo, number, headSHA, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting review record: %w", err)
	}
	return nil
}

// SaveSession overwrites the named session with the given history.
func (s *Store) SaveSession(ctx context.Context, name string, history []Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_name = ?`, name); err != nil {
		return fmt.Errorf("clearing session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (name, saved_at) VALUES (?, ?)`,
		name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	for i, m := range history {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_messages (session_name, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			name, i, m.Role, m.Content, m.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting session message: %w", err)
		}
	}
	return tx.Commit()
}

// LoadSession returns the history saved under name, or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, name string) ([]Message, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM sessions WHERE name = ?`, name).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM session_messages WHERE session_name = ? ORDER BY seq ASC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("listing session messages: %w", err)
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning session message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		history = append(history, m)
	}
	return history, rows.Err()
}

// ListSessions returns all saved session names in lexical order.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sessions ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning session name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RemoveSession deletes the named session, or returns ErrNotFound.
func (s *Store) RemoveSession(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_name = ?`, name); err != nil {
		return fmt.Errorf("deleting session messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
