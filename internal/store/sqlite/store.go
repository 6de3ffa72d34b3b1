// Package sqlite implements the storage engine (C5): a per-embedding-profile
// SQLite database holding the metadata table, its paired vector table, an
// append-only history log, and checkpoints.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a lookup by id finds no row.
	ErrNotFound = errors.New("sqlite: not found")
	// ErrInvalidInput is returned for caller mistakes (nil memory, empty id).
	ErrInvalidInput = errors.New("sqlite: invalid input")
)

// Store is a single embedding-profile's database: one SQLite file holding
// both the metadata table and its paired vector table.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the SQLite database at path, enables
// WAL mode, and applies the schema. If the initial open fails because a
// crashed process left stale -shm/-wal files behind, it verifies no other
// process holds them and retries once after removing them.
func Open(path string) (*Store, error) {
	store, err := open(path)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) || path == "" || path == ":memory:" {
		return nil, err
	}
	if !isWALStale(path) {
		return nil, err
	}
	removeStaleWAL(path)

	store, retryErr := open(path)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: open failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Printf("sqlite: recovered from stale WAL files for %s", path)
	return store, nil
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite allows only one concurrent writer; a single open connection
	// serializes writes and sidesteps SQLITE_BUSY under concurrent callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to set %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}
	if _, err := db.Exec(
		"INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		SchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to record schema version: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for packages (search, decay, ranking)
// that need direct read access without widening this package's surface.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which it re-raises after rollback).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlite: rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}
	return dsn
}

func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist for dbPath and no other
// process currently holds them open (checked via lsof, when available).
func isWALStale(dbPath string) bool {
	path := dbPathFromDSN(dbPath)
	if path == "" {
		return false
	}
	shmPath := path + "-shm"
	walPath := path + "-wal"
	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	out, err := exec.Command(lsofPath, path, shmPath, walPath).CombinedOutput()
	if err == nil && len(out) > 0 {
		// lsof exits 0 with output when something has a handle open.
		return false
	}
	return true
}

func removeStaleWAL(dbPath string) {
	path := dbPathFromDSN(dbPath)
	for _, suffix := range []string{"-shm", "-wal"} {
		p := path + suffix
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", p, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
