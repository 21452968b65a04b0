package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/beacondeck/beacon-go/internal/logging"
)

// SQLite is a durable single-file Store, for long-lived processes that
// want a local cache surviving restarts without an external service.
// Like every backend, expiry is lazy: an expired row is deleted when it
// is next read.
type SQLite struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewSQLite opens (or creates) the database at path and prepares the
// cache table.
func NewSQLite(path string, log *slog.Logger) (*SQLite, error) {
	if log == nil {
		log = logging.Discard()
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout=1000&_pragma=journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires INTEGER
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	return &SQLite{db: db, log: log, now: time.Now}, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool) {
	var (
		value   string
		expires sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expires)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("sqlite cache read failed", "key", key, "error", err)
		}
		return "", false
	}
	if expires.Valid && s.now().UnixMilli() >= expires.Int64 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			s.log.Warn("sqlite cache evict failed", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

// Set implements Store.
func (s *SQLite) Set(ctx context.Context, key, value string, ttl time.Duration) {
	var expires sql.NullInt64
	if ttl > 0 {
		expires = sql.NullInt64{Int64: s.now().Add(ttl).UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO cache_entries (key, value, expires) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires = excluded.expires`,
		key, value, expires)
	if err != nil {
		s.log.Warn("sqlite cache write failed", "key", key, "error", err)
	}
}

// Has implements Store.
func (s *SQLite) Has(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, key string) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		s.log.Warn("sqlite cache delete failed", "key", key, "error", err)
	}
}

// Clear implements Store.
func (s *SQLite) Clear(ctx context.Context) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		s.log.Warn("sqlite cache clear failed", "error", err)
	}
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
