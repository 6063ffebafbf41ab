package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vk/ucdpipe/internal/ctxlog"
)

// SQLite is a persistent Store. Entries whose values are all registered with
// RegisterValue round-trip with their concrete types; anything else is stored
// as JSON and comes back as generic shapes (map[string]any, []any, float64).
type SQLite struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
}

// OpenSQLite opens (creating if needed) the cache database at dbPath.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	logger := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db: %w", err)
	}
	// Route tasks write concurrently; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		route_id TEXT,
		version TEXT,
		path TEXT,
		format TEXT,
		value BLOB,
		updated_at TEXT
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to exec schema query: %w", err)
	}

	logger.Debug("Opened cache database.", "path", dbPath)
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key Key) (Entry, bool, error) {
	var (
		raw    []byte
		format string
	)
	err := s.db.QueryRowContext(ctx, `SELECT format, value FROM cache_entries WHERE key = ?`, key.String()).Scan(&format, &raw)
	if err == sql.ErrNoRows {
		s.misses.Add(1)
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	entry, err := decodeEntry(raw, format)
	if err != nil {
		return Entry{}, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	s.hits.Add(1)
	return entry, true, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, key Key, entry Entry) error {
	raw, format, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, route_id, version, path, format, value, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.String(), key.RouteID, key.Version, key.File.Path, format, raw, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// Stats implements Store.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return Stats{}, err
	}
	return Stats{Entries: n, Hits: int(s.hits.Load()), Misses: int(s.misses.Load())}, nil
}
