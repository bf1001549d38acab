// Package db provides database connection management and operations.
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/indianbuild/passport-core/internal/errors"
)

// DB wraps sql.DB with passport-core specific configuration.
type DB struct {
	*sql.DB
}

// Open opens the local SQLite database with:
// - WAL mode for concurrent reads alongside the single writer
// - foreign key constraints enabled
// - a busy timeout so concurrent access waits instead of failing
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
// Failures surface as STORAGE_UNAVAILABLE.
func Open(dataDir string) (*DB, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to create data directory", err)
		}
		dsn = filepath.Join(dataDir, "passport.db")
	}

	// modernc.org/sqlite is pure Go, no CGO
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to open database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to ping database", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to set busy timeout", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to enable WAL mode", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to enable foreign keys", err)
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
