package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/storage"

	_ "modernc.org/sqlite"
)

const busyTimeout = 10 * time.Second

var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		entity_id    TEXT PRIMARY KEY,
		last_seen_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		entity_id    TEXT NOT NULL,
		artifact_key TEXT NOT NULL,
		last_seen_at TEXT NOT NULL,
		PRIMARY KEY (entity_id, artifact_key)
	)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		entity_id       TEXT NOT NULL,
		artifact_key    TEXT NOT NULL,
		last_updated_at TEXT NOT NULL,
		status          TEXT,
		PRIMARY KEY (entity_id, artifact_key)
	)`,
}

// Store is a State Store and Resolver backed by one SQLite file.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// Open opens or creates the database at path. The parent directory is
// created when missing. The schema is not touched; call EnsureSchema.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, storage.ErrPathRequired
	}
	s := &Store{path: path, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "state-store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state store dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(DELETE)&_txlock=immediate",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite db: %w", err)
	}
	s.db = db
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	return nil
}

// EnsureSchema creates missing tables and adds the status column to
// embeddings tables created before it existed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", storage.ErrSchemaFailed, err)
		}
	}
	added, err := ensureColumnExists(ctx, s.db, storage.TableEmbeddings, "status", "TEXT")
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSchemaFailed, err)
	}
	if added {
		s.logger.Info("migrated embeddings table", "column", "status")
	}
	return nil
}

func ensureColumnExists(ctx context.Context, db *sql.DB, table, column, definition string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	var (
		cid       int
		name      string
		colType   string
		notNull   int
		dfltValue sql.NullString
		pk        int
	)
	for rows.Next() {
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scan table info(%s): %w", table, err)
		}
		if strings.EqualFold(name, column) {
			return false, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate table info(%s): %w", table, err)
	}
	rows.Close()

	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return false, fmt.Errorf("alter table add column %s.%s: %w", table, column, err)
	}
	return true, nil
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpsertEntities inserts or replaces entity rows.
func (s *Store) UpsertEntities(ctx context.Context, ids []string, seenAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	ts := formatTime(seenAt)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO entities (entity_id, last_seen_at) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare entity upsert: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id, ts); err != nil {
				return fmt.Errorf("upsert entity %s: %w", id, err)
			}
		}
		return nil
	})
}

// UpsertArtifacts inserts or replaces artifact rows.
func (s *Store) UpsertArtifacts(ctx context.Context, refs []core.ArtifactRef, seenAt time.Time) error {
	if len(refs) == 0 {
		return nil
	}
	ts := formatTime(seenAt)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO artifacts (entity_id, artifact_key, last_seen_at) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare artifact upsert: %w", err)
		}
		defer stmt.Close()
		for _, ref := range refs {
			if _, err := stmt.ExecContext(ctx, ref.EntityID, ref.Key, ts); err != nil {
				return fmt.Errorf("upsert artifact %s: %w", ref, err)
			}
		}
		return nil
	})
}

const upsertEmbedding = `INSERT OR REPLACE INTO embeddings
	(entity_id, artifact_key, last_updated_at, status) VALUES (?, ?, ?, ?)`

// RecordEmbeddingOutcome inserts or replaces one embedding record.
func (s *Store) RecordEmbeddingOutcome(ctx context.Context, ref core.ArtifactRef, at time.Time, status core.Status) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return recordOutcome(ctx, s.db, ref, at, status)
}

// MarkPlanned records every ref as planned.
func (s *Store) MarkPlanned(ctx context.Context, refs []core.ArtifactRef, at time.Time) error {
	if len(refs) == 0 {
		return nil
	}
	ts := formatTime(at)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertEmbedding)
		if err != nil {
			return fmt.Errorf("prepare planned upsert: %w", err)
		}
		defer stmt.Close()
		for _, ref := range refs {
			if _, err := stmt.ExecContext(ctx, ref.EntityID, ref.Key, ts, string(core.StatusPlanned)); err != nil {
				return fmt.Errorf("mark planned %s: %w", ref, err)
			}
		}
		return nil
	})
}

// CountByTable returns row counts for the named tables.
func (s *Store) CountByTable(ctx context.Context, names ...string) (storage.Counts, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = storage.Tables
	}
	counts := make(storage.Counts, len(names))
	for _, name := range names {
		if !knownTable(name) {
			return nil, fmt.Errorf("%w: %q", storage.ErrUnknownTable, name)
		}
		var n int
		// name is checked against the fixed table list above
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}

func knownTable(name string) bool {
	for _, t := range storage.Tables {
		if t == name {
			return true
		}
	}
	return false
}

// StatusCounts groups embedding records by status.
func (s *Store) StatusCounts(ctx context.Context) (map[core.Status]int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(status, ''), COUNT(*) FROM embeddings GROUP BY COALESCE(status, '')`)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()

	out := make(map[core.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[core.Status(status)] = n
	}
	return out, rows.Err()
}

// OpenSession reserves a dedicated connection for one worker.
func (s *Store) OpenSession(ctx context.Context) (storage.Session, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &session{conn: conn}, nil
}

// execer is satisfied by *sql.DB and *sql.Conn.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordOutcome(ctx context.Context, db execer, ref core.ArtifactRef, at time.Time, status core.Status) error {
	if err := core.ValidateArtifactRef(ref); err != nil {
		return err
	}
	if err := core.ValidateStatus(status); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, upsertEmbedding, ref.EntityID, ref.Key, formatTime(at), string(status)); err != nil {
		return fmt.Errorf("record outcome %s: %w", ref, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
