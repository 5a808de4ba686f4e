// Package persistence provides the SQLite-backed node store.
// Every node is one row; the version column carries the compare-and-swap.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/talgya/fiefdom/internal/store"
)

const schemaVersion = "1"

// DB wraps a SQLite connection and implements store.Store.
type DB struct {
	conn       *sqlx.DB
	MaxRetries int
}

var _ store.Store = (*DB)(nil)

// Open opens or creates a SQLite database at the given path.
// ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = path
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is its own database.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, MaxRetries: store.DefaultMaxRetries}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := db.SaveMeta("schema_version", schemaVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("save meta: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		path TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type nodeRow struct {
	Path    string `db:"path"`
	Value   []byte `db:"value"`
	Version uint64 `db:"version"`
}

// Get implements store.Store.
func (db *DB) Get(ctx context.Context, path string) ([]byte, error) {
	path = store.Clean(path)
	var row nodeRow
	err := db.conn.GetContext(ctx, &row, "SELECT path, value, version FROM nodes WHERE path = ?", path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return row.Value, nil
}

// List implements store.Store. '0' sorts directly after '/', so the range
// covers exactly the paths that start with prefix + "/".
func (db *DB) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	prefix = store.Clean(prefix)
	var rows []nodeRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT path, value, version FROM nodes WHERE path >= ? AND path < ?",
		prefix+"/", prefix+"0",
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		out[r.Path] = r.Value
	}
	return out, nil
}

// Transact implements store.Store. The commit is a conditional UPDATE on the
// version read before fn ran (or a conflict-ignoring INSERT for new nodes);
// zero affected rows means another writer won and fn is re-run.
func (db *DB) Transact(ctx context.Context, path string, fn store.TxFunc) ([]byte, error) {
	path = store.Clean(path)
	retries := db.MaxRetries
	if retries <= 0 {
		retries = store.DefaultMaxRetries
	}

	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Millisecond)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var row nodeRow
		exists := true
		err := db.conn.GetContext(ctx, &row, "SELECT path, value, version FROM nodes WHERE path = ?", path)
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
		} else if isBusy(err) {
			slog.Debug("node read busy", "path", path, "attempt", attempt)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var cur []byte
		if exists {
			cur = row.Value
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return cur, nil
		}

		now := time.Now().UnixMilli()
		var res sql.Result
		if exists {
			res, err = db.conn.ExecContext(ctx,
				"UPDATE nodes SET value = ?, version = version + 1, updated_at = ? WHERE path = ? AND version = ?",
				next, now, path, row.Version,
			)
		} else {
			res, err = db.conn.ExecContext(ctx,
				"INSERT INTO nodes (path, value, version, updated_at) VALUES (?, ?, 1, ?) ON CONFLICT(path) DO NOTHING",
				path, next, now,
			)
		}
		if isBusy(err) {
			slog.Debug("node write busy", "path", path, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		if n == 1 {
			return next, nil
		}
		slog.Debug("node write conflict", "path", path, "attempt", attempt)
	}
	return nil, fmt.Errorf("%s: %w", path, store.ErrTxFailed)
}

// isBusy reports whether err is a lock conflict with another connection.
// Those are retried like a lost compare-and-swap.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// NodeCount returns the number of stored nodes.
func (db *DB) NodeCount(ctx context.Context) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM nodes")
	return n, err
}
