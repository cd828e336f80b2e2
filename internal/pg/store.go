// Package pg implements the note tree store on PostgreSQL.
//
// Mutations run in READ COMMITTED transactions. Sibling sets are serialized
// with a transaction-scoped advisory lock keyed on (organization, parent)
// plus row locks, so concurrent inserts into an empty sibling set also queue
// behind each other. Serialization failures and deadlocks surface as
// tree.ErrConflict for the caller to retry.
package pg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mycelica/notetree/internal/tree"
)

var (
	_ tree.Store    = (*Store)(nil)
	_ tree.Searcher = (*Store)(nil)
	_ tree.RefStore = (*Store)(nil)
)

// Store is a tree.Store over a pgx connection pool.
type Store struct {
	repo
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Tx is the repository view of one open transaction.
type Tx struct {
	repo
	tx pgx.Tx
}

// Option configures Open.
type Option func(*Store)

// WithLogger sets the logger used for schema messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting: %w", err)
	}

	s := &Store{
		repo:   repo{q: pool},
		pool:   pool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool returns the underlying pool for custom queries.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		id text PRIMARY KEY,
		organization_id text NOT NULL,
		parent_id text REFERENCES notes(id) DEFERRABLE INITIALLY DEFERRED,
		title text NOT NULL,
		content text NOT NULL DEFAULT '',
		created_by text NOT NULL DEFAULT '',
		path text COLLATE "C" NOT NULL,
		depth integer NOT NULL DEFAULT 0,
		children_count integer NOT NULL DEFAULT 0,
		position integer NOT NULL,
		created_at bigint NOT NULL,
		updated_at bigint NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS notes_siblings_idx ON notes (organization_id, parent_id, position)`,
	`CREATE INDEX IF NOT EXISTS notes_path_idx ON notes (organization_id, path)`,
	`CREATE INDEX IF NOT EXISTS notes_parent_idx ON notes (parent_id)`,
	`CREATE TABLE IF NOT EXISTS note_refs (
		owner_id text NOT NULL,
		note_id text NOT NULL REFERENCES notes(id) DEFERRABLE INITIALLY DEFERRED,
		organization_id text NOT NULL,
		kind text NOT NULL CHECK (kind IN ('reference', 'modified')),
		created_at bigint NOT NULL,
		PRIMARY KEY (owner_id, note_id, kind)
	)`,
	`CREATE INDEX IF NOT EXISTS note_refs_note_idx ON note_refs (note_id)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	s.logger.Debug("schema applied", "statements", len(schema))
	return nil
}

// InTx runs fn in one transaction, committing when it returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx tree.Repository) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr(fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = pgTx.Rollback(context.Background()) }()

	if err := fn(&Tx{repo: repo{q: pgTx}, tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return mapErr(fmt.Errorf("committing: %w", err))
	}
	return nil
}

// queryer is satisfied by *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repo struct {
	q queryer
}

// SQLSTATE codes that mean another transaction won a race.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", tree.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %w", tree.ErrConflict, err)
		}
	}
	return err
}
