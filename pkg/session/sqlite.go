package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const DefaultName = "default"

// SQLiteStore keeps session blobs in a sqlite table, one row per session name.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// OpenSQLite opens or creates the database at path and ensures the sessions table exists.
func OpenSQLite(path string, name string) (*SQLiteStore, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open session db at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping session db at %s: %w", path, err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session schema: %w", err)
	}

	return &SQLiteStore{db: db, name: name}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE name = ?`, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", s.name, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	return data, nil
}

func (s *SQLiteStore) Save(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.name, data, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("save session %q: %w", s.name, err)
	}

	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE name = ?`, s.name); err != nil {
		return fmt.Errorf("clear session %q: %w", s.name, err)
	}

	return nil
}

// UpdatedAt reports when the session row was last written. ok is false when no row exists.
func (s *SQLiteStore) UpdatedAt(ctx context.Context) (at time.Time, ok bool, err error) {
	var unix int64
	err = s.db.QueryRowContext(ctx, `SELECT updated_at FROM sessions WHERE name = ?`, s.name).Scan(&unix)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read session %q timestamp: %w", s.name, err)
	}

	return time.Unix(unix, 0).UTC(), true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
