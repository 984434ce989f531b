// Package sqlite is the embedded relational store: one modernc.org/sqlite
// database with write-ahead journaling, FTS5 full-text search over the
// memory table, and an optional chromem-go vector shadow.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	chromem "github.com/philippgille/chromem-go"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/conductor/internal/errs"
	"github.com/nextlevelbuilder/conductor/internal/store"
)

// Options configures optional subsystems of the embedded store. The zero
// value disables the vector shadow entirely.
type Options struct {
	// VectorDir, when non-empty together with EmbeddingFunc, enables the
	// chromem-go semantic-search shadow for memory search.
	VectorDir     string
	EmbeddingFunc chromem.EmbeddingFunc
}

// Store implements store.Store backed by a single SQLite file. All
// blocking SQL work is serialised by database/sql's own connection pool,
// pinned to size 1 since SQLite only tolerates one writer at a time and
// batching is not attempted.
type Store struct {
	db     *sql.DB
	pool   chan struct{} // size-1 semaphore: caller-visible serialisation point
	vector *vectorShadow
}

// Open creates (if needed) and opens the database at path, applies pragmas,
// and runs migrations in order.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single embedded writer

	if err := configurePragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, pool: make(chan struct{}, 1)}
	s.pool <- struct{}{}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if opts.VectorDir != "" && opts.EmbeddingFunc != nil {
		vs, err := newVectorShadow(opts.VectorDir, opts.EmbeddingFunc)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("vector shadow: %w", err)
		}
		s.vector = vs
	} else {
		s.vector = &vectorShadow{}
	}

	return s, nil
}

func configurePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := db.ExecContext(pctx, p)
		cancel()
		if err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// rawDB exposes the raw handle for the FTS/cron/etc. sub-implementations in
// this package; not exported outside it.
func (s *Store) rawDB() *sql.DB { return s.db }

// acquire serialises blocking SQL work behind a size-1 semaphore. Callers
// already on the cooperative runtime suspend here instead of blocking a
// worker.
func (s *Store) acquire(ctx context.Context) error {
	select {
	case <-s.pool:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	s.pool <- struct{}{}
}

// withConn runs fn while holding the store's single-writer slot. Every SQL
// failure leaves here tagged with the persistence category.
func (s *Store) withConn(ctx context.Context, fn func(*sql.DB) error) error {
	if err := s.acquire(ctx); err != nil {
		return fmt.Errorf("%w: acquire db slot", err)
	}
	defer s.release()
	return errs.Wrap(errs.Persistence, fn(s.db))
}

// Stores builds a store.Store from an opened Store, wiring every
// sub-implementation in this package.
func (s *Store) Stores() *store.Store {
	return &store.Store{
		Tape:    &tapeStore{s},
		Queue:   &queueStore{s},
		Memory:  newMemoryStore(s, s.vector),
		Audit:   &auditStore{s},
		Cron:    &cronStore{s},
		State:   &stateStore{s},
		Workers: &workerStore{s},
		Closer:  s,
	}
}

// SyncExec runs fn against the live *sql.DB from a synchronous callback
// context. It still serialises through the size-1 pool, so callers inside
// the cooperative runtime must not call this directly; only code already
// running on the blocking pool, or a true synchronous LLM-turn hook, may
// use it.
func (s *Store) SyncExec(fn func(*sql.DB) error) error {
	<-s.pool
	defer func() { s.pool <- struct{}{} }()
	return errs.Wrap(errs.Persistence, fn(s.db))
}

func logSQLError(op string, err error) {
	if err != nil {
		slog.Error("persistence operation failed", "op", op, "error", err)
	}
}
