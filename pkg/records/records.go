// Package records stores teams, projects, banners and their review trail in
// SQL. Turso is used when credentials are configured, a local SQLite file
// otherwise.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	_ "github.com/mattn/go-sqlite3"                      // SQLite driver
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("records: not found")

// ErrInvalid is returned when a record fails validation.
var ErrInvalid = errors.New("records: invalid")

// Backend names.
const (
	BackendTurso  = "turso"
	BackendSQLite = "sqlite"
)

// Config selects the database.
type Config struct {
	SQLitePath string
	TursoURL   string
	TursoToken string
}

// Store is the records database.
type Store struct {
	db      *sql.DB
	backend string
	log     *slog.Logger
	now     func() time.Time
}

// Open connects to Turso when cfg carries a URL and token and the server
// answers; otherwise it opens the SQLite file, creating its directory. The
// schema is migrated before Open returns.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var conn *sql.DB
	backend := BackendSQLite

	if cfg.TursoURL != "" && cfg.TursoToken != "" {
		c, err := sql.Open("libsql", cfg.TursoURL+"?authToken="+cfg.TursoToken)
		if err == nil {
			if pingErr := c.PingContext(ctx); pingErr == nil {
				conn = c
				backend = BackendTurso
			} else {
				logger.Warn("records: turso unreachable, falling back to sqlite", "error", pingErr)
				c.Close()
			}
		}
	}

	if conn == nil {
		if cfg.SQLitePath == "" {
			return nil, errors.New("records: no sqlite path configured")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("records: create database directory: %w", err)
		}
		c, err := sql.Open("sqlite3", cfg.SQLitePath+"?_foreign_keys=on&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("records: open sqlite: %w", err)
		}
		if err := c.PingContext(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("records: sqlite ping: %w", err)
		}
		conn = c
	}

	s := &Store{db: conn, backend: backend, log: logger, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("records: database ready", "backend", backend)
	return s, nil
}

// Backend reports which database is in use.
func (s *Store) Backend() string {
	return s.backend
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS teams (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		team_id     TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		manager     TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'active',
		created_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS banners (
		id                   TEXT PRIMARY KEY,
		project_id           TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		title                TEXT NOT NULL,
		description          TEXT NOT NULL DEFAULT '',
		banner_type          TEXT NOT NULL,
		device_type          TEXT NOT NULL,
		status               TEXT NOT NULL DEFAULT 'draft',
		background_image_url TEXT NOT NULL DEFAULT '',
		logo_url             TEXT NOT NULL DEFAULT '',
		logo_urls            TEXT NOT NULL DEFAULT '[]',
		final_banner_url     TEXT NOT NULL DEFAULT '',
		thumbnail_url        TEXT NOT NULL DEFAULT '',
		text_elements        TEXT NOT NULL DEFAULT '[]',
		canvas_width         INTEGER NOT NULL,
		canvas_height        INTEGER NOT NULL,
		approved_by          TEXT NOT NULL DEFAULT '',
		approved_at          INTEGER NOT NULL DEFAULT 0,
		created_at           INTEGER NOT NULL,
		updated_at           INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_banners_project ON banners(project_id)`,
	`CREATE TABLE IF NOT EXISTS banner_history (
		id                   TEXT PRIMARY KEY,
		banner_id            TEXT NOT NULL REFERENCES banners(id) ON DELETE CASCADE,
		version              INTEGER NOT NULL,
		background_image_url TEXT NOT NULL DEFAULT '',
		text_elements        TEXT NOT NULL DEFAULT '[]',
		change_note          TEXT NOT NULL DEFAULT '',
		created_at           INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_banner ON banner_history(banner_id)`,
	`CREATE TABLE IF NOT EXISTS banner_comments (
		id         TEXT PRIMARY KEY,
		banner_id  TEXT NOT NULL REFERENCES banners(id) ON DELETE CASCADE,
		comment    TEXT NOT NULL,
		x_position REAL,
		y_position REAL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_banner ON banner_comments(banner_id)`,
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("records: migrate: %w", err)
		}
	}
	return nil
}

func newID() string {
	return ulid.Make().String()
}

func (s *Store) stamp() int64 {
	return s.now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// rowsAffected turns a zero-row change into ErrNotFound.
func rowsAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("records: %s %s: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return nil
}

// withTx runs fn inside a transaction.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("records: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("records: commit: %w", err)
	}
	return nil
}
