package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps pairs in a single sqlite table.
type SQLiteStore struct {
	db       *sql.DB
	maxBytes int64

	// mu serialises writes so the budget check and the write are consistent.
	mu sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)
var _ PrefixLister = (*SQLiteStore)(nil)
var _ Budgeted = (*SQLiteStore)(nil)

// OpenSQLiteStore opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLiteStore(path string, maxBytes int64) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS properties (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create properties table: %w", err)
	}
	return &SQLiteStore{db: db, maxBytes: maxBytes}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) MaxBytes() int64 { return s.maxBytes }

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM properties WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap(err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes > 0 {
		total, err := s.TotalBytes(ctx)
		if err != nil {
			return err
		}
		newSize := total + pairSize(key, value)
		old, ok, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			newSize -= pairSize(key, old)
		}
		if newSize > s.maxBytes {
			return budgetError(s.maxBytes, newSize)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO properties(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return s.wrap(err)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE key = ?`, key)
	return s.wrap(err)
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	return s.queryKeys(ctx, `SELECT key FROM properties`)
}

func (s *SQLiteStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return s.queryKeys(ctx,
		`SELECT key FROM properties WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
}

func (s *SQLiteStore) queryKeys(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, s.wrap(err)
		}
		keys = append(keys, k)
	}
	return keys, s.wrap(rows.Err())
}

// TotalBytes counts bytes, not characters, to match the other backends.
func (s *SQLiteStore) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(length(CAST(key AS BLOB)) + length(CAST(value AS BLOB))), 0) FROM properties`).Scan(&total)
	return total, s.wrap(err)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || err.Error() == "sql: database is closed" {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return fmt.Errorf("sqlite property store: %w", err)
}
