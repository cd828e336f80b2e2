package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"mycelica/notetree/internal/tree"
)

// DefaultBusyTimeout is how long a writer waits for the database lock before
// the mutation fails with tree.ErrConflict.
const DefaultBusyTimeout = 5 * time.Second

// DB wraps a SQLite database connection and implements tree.Store.
type DB struct {
	repo
	conn   *sql.DB
	Path   string
	logger *slog.Logger
}

// Tx is the repository view of one open transaction.
type Tx struct {
	repo
	tx *sql.Tx
}

var (
	_ tree.Store    = (*DB)(nil)
	_ tree.Searcher = (*DB)(nil)
	_ tree.RefStore = (*DB)(nil)
)

type config struct {
	busyTimeout time.Duration
	logger      *slog.Logger
}

// Option configures OpenDB.
type Option func(*config)

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) { c.busyTimeout = d }
}

// WithLogger sets the logger used for schema and fallback messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// OpenDB opens a SQLite database with WAL mode, foreign keys and immediate
// transactions enabled, and applies the schema. path may be ":memory:".
func OpenDB(path string, opts ...Option) (*DB, error) {
	cfg := config{
		busyTimeout: DefaultBusyTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	memory := path == ":memory:"
	pragmas := fmt.Sprintf("_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate",
		cfg.busyTimeout.Milliseconds())
	if !memory {
		pragmas += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	conn, err := sql.Open("sqlite", "file:"+path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}

	d := &DB{conn: conn, Path: path, logger: cfg.logger}
	d.repo = repo{q: conn}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying sql.DB for custom queries
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// HasFTS reports whether the full-text index is available.
func (d *DB) HasFTS() bool {
	return d.fts
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		parent_id TEXT REFERENCES notes(id) DEFERRABLE INITIALLY DEFERRED,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL,
		depth INTEGER NOT NULL DEFAULT 0,
		children_count INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_siblings ON notes(organization_id, parent_id, position)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_path ON notes(organization_id, path)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent_id)`,
	`CREATE TABLE IF NOT EXISTS note_refs (
		owner_id TEXT NOT NULL,
		note_id TEXT NOT NULL REFERENCES notes(id) DEFERRABLE INITIALLY DEFERRED,
		organization_id TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('reference', 'modified')),
		created_at INTEGER NOT NULL,
		PRIMARY KEY (owner_id, note_id, kind)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_note_refs_note ON note_refs(note_id)`,
}

var ftsSchema = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
		title, content, content='notes', content_rowid='rowid'
	)`,
	`CREATE TRIGGER IF NOT EXISTS notes_fts_insert AFTER INSERT ON notes BEGIN
		INSERT INTO notes_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS notes_fts_delete AFTER DELETE ON notes BEGIN
		INSERT INTO notes_fts(notes_fts, rowid, title, content) VALUES ('delete', old.rowid, old.title, old.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS notes_fts_update AFTER UPDATE OF title, content ON notes BEGIN
		INSERT INTO notes_fts(notes_fts, rowid, title, content) VALUES ('delete', old.rowid, old.title, old.content);
		INSERT INTO notes_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
	END`,
}

func (d *DB) migrate() error {
	for _, stmt := range schema {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	for _, stmt := range ftsSchema {
		if _, err := d.conn.Exec(stmt); err != nil {
			d.logger.Warn("full-text index unavailable, search falls back to LIKE", "err", err)
			return nil
		}
	}
	d.fts = true
	return nil
}

// InTx runs fn inside one BEGIN IMMEDIATE transaction. Taking the write lock
// up front serializes every mutation, so LockSiblings and LockSubtree have
// nothing left to do.
func (d *DB) InTx(ctx context.Context, fn func(tx tree.Repository) error) error {
	sqlTx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(fmt.Errorf("beginning transaction: %w", err))
	}
	defer sqlTx.Rollback()

	tx := &Tx{repo: repo{q: sqlTx, fts: d.fts}, tx: sqlTx}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapErr(fmt.Errorf("committing: %w", err))
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo implements tree.Repository over a queryer.
type repo struct {
	q   queryer
	fts bool
}

// mapErr translates driver errors into the tree error taxonomy. A busy or
// locked database after the busy timeout means a concurrent writer won.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", tree.ErrNotFound, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", tree.ErrConflict, err)
		}
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%w: %w", tree.ErrConflict, err)
	}
	return err
}
