// Package postgres implements the optional second storage backend (C5)
// named by the domain stack: a shared, multi-process-safe store behind the
// same Insert/Get/Update/Delete/FindByContentHash/FindMostSimilar surface
// internal/store/sqlite exposes, for deployments that would rather point
// every process at one Postgres instance than manage per-profile SQLite
// files. Vector similarity is delegated to the pgvector extension instead
// of the in-process cosine-similarity loop sqlite falls back to.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

var (
	// ErrNotFound mirrors sqlite.ErrNotFound so callers can type-switch the
	// same way regardless of backend.
	ErrNotFound = errors.New("postgres: not found")
	// ErrInvalidInput mirrors sqlite.ErrInvalidInput.
	ErrInvalidInput = errors.New("postgres: invalid input")
)

// Store is a connection to one shared Postgres database holding every
// profile's memories, distinguished by embedding dimension at the
// application layer rather than one file per profile.
type Store struct {
	db *sql.DB
}

// Open connects to dsn (a standard "postgres://" URL or libpq keyword
// string) and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for callers that need a raw query the Store's
// method set doesn't cover, mirroring sqlite.Store.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EnsureVectorIndex builds the ivfflat cosine-distance index once the
// memories table holds at least one embedded row. ivfflat construction
// fails against an empty table, so this is safe to call repeatedly (e.g.
// once per successful Insert) until it succeeds.
func (s *Store) EnsureVectorIndex(ctx context.Context) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM memories WHERE embedding_vec IS NOT NULL LIMIT 1)`).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: failed to check embedding rows: %w", err)
	}
	if !exists {
		return nil
	}
	_, err := s.db.ExecContext(ctx, ivfflatIndexSQL)
	return err
}
