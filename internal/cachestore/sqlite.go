package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	name       TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (name, key)
);
CREATE INDEX IF NOT EXISTS cache_entries_expires_at ON cache_entries (expires_at);`

// SQLiteStore persists entries in a single-file database so that a CLI or a
// single server instance keeps its cache across restarts.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

var _ domain.CacheStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. The caller should call Close when the store is no longer
// needed.
func NewSQLiteStore(ctx context.Context, path string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, name, key string) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE name = ? AND key = ? AND expires_at > ?`,
		name, key, s.now().UnixMilli(),
	).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query cache entry: %w", err)
	}
	return val, nil
}

func (s *SQLiteStore) Set(ctx context.Context, name, key string, val string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (name, key, value, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name, key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		name, key, val, s.now().Add(s.ttl).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Purge(ctx context.Context, name, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE name = ? AND key = ?`, name, key)
	return err
}

// DeleteExpired removes expired entries and any excess rows beyond maxRows,
// keeping the entries that expire last. Returns the number of rows deleted.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, maxRows int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired entries: %w", err)
	}
	expired, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE rowid IN (
			SELECT rowid FROM cache_entries
			ORDER BY expires_at DESC
			LIMIT -1 OFFSET ?
		)`, maxRows,
	)
	if err != nil {
		return 0, fmt.Errorf("delete excess entries: %w", err)
	}
	excess, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return expired + excess, nil
}

// StartCleanupJob runs DeleteExpired immediately and then at every interval.
// It blocks until ctx is cancelled.
func (s *SQLiteStore) StartCleanupJob(ctx context.Context, interval time.Duration, maxRows int, logger *slog.Logger) {
	s.runCleanup(ctx, maxRows, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup(ctx, maxRows, logger)
		}
	}
}

func (s *SQLiteStore) runCleanup(ctx context.Context, maxRows int, logger *slog.Logger) {
	deleted, err := s.DeleteExpired(ctx, maxRows)
	if err != nil {
		logger.Error("cache cleanup failed", "error", err)
	} else if deleted > 0 {
		logger.Info("cache cleanup complete", "deleted", deleted)
	}
}
