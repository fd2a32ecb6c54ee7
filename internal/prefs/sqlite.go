package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS prefs (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteBackend stores one row per key. Writes by other processes are
// detected by polling PRAGMA data_version.
type SQLiteBackend struct {
	db       *sql.DB
	interval time.Duration

	mu   sync.Mutex
	seen map[string][]byte
}

// NewSQLiteBackend opens (or creates) a SQLite database at dbPath.
func NewSQLiteBackend(dbPath string, interval time.Duration) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// data_version is per connection; a single connection keeps it stable
	// across polls and excludes our own commits.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring %s: %w", dbPath, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating prefs table: %w", err)
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &SQLiteBackend{db: db, interval: interval, seen: make(map[string][]byte)}, nil
}

// LoadAll returns every row.
func (s *SQLiteBackend) LoadAll(ctx context.Context) (map[string][]byte, error) {
	out, err := s.query(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.seen = maps.Clone(out)
	s.mu.Unlock()
	return out, nil
}

// Put upserts key.
func (s *SQLiteBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	s.mu.Lock()
	s.seen[key] = value
	s.mu.Unlock()
	return nil
}

// Delete removes key.
func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	s.mu.Lock()
	delete(s.seen, key)
	s.mu.Unlock()
	return nil
}

// Watch reports rows changed by other connections.
func (s *SQLiteBackend) Watch(ctx context.Context, fn func(Change)) error {
	version, err := s.dataVersion(ctx)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		v, err := s.dataVersion(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if v == version {
			continue
		}
		version = v
		rows, err := s.query(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		changes := diff(s.seen, rows)
		s.seen = rows
		s.mu.Unlock()
		for _, c := range changes {
			fn(c)
		}
	}
}

// Close closes the underlying database connection.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading data_version: %w", err)
	}
	return v, nil
}

func (s *SQLiteBackend) query(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM prefs`)
	if err != nil {
		return nil, fmt.Errorf("querying prefs: %w", err)
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = []byte(v)
	}
	return out, rows.Err()
}
