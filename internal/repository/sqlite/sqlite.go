// Package sqlite implements the repository interfaces on top of SQLite,
// using the pure-Go modernc.org/sqlite driver (no cgo).
//
// A World and its children are written in one transaction, and the child
// tables reference worlds(id) with ON DELETE CASCADE. Timestamps are always
// stored in UTC so that comparisons on the DATETIME columns order correctly.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	moderncsqlite "modernc.org/sqlite" // registers the "sqlite" driver
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/profileworld.db" → file-based database
//   - ":memory:"             → in-memory database, used by tests
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is its own empty database, and SQLite
	// allows a single writer anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS worlds (
			id                TEXT PRIMARY KEY,
			username          TEXT NOT NULL,
			username_lower    TEXT NOT NULL,
			github_url        TEXT NOT NULL DEFAULT '',
			avatar_url        TEXT NOT NULL DEFAULT '',
			followers         INTEGER NOT NULL DEFAULT 0,
			following         INTEGER NOT NULL DEFAULT 0,
			public_repos      INTEGER NOT NULL DEFAULT 0,
			total_stars       INTEGER NOT NULL DEFAULT 0,
			total_forks       INTEGER NOT NULL DEFAULT 0,
			total_watchers    INTEGER NOT NULL DEFAULT 0,
			repo_count        INTEGER NOT NULL DEFAULT 0,
			source_hash       TEXT NOT NULL DEFAULT '',
			generation_status TEXT NOT NULL DEFAULT 'processing',
			error_message     TEXT NOT NULL DEFAULT '',
			created_at        DATETIME NOT NULL,
			updated_at        DATETIME NOT NULL,
			expires_at        DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_worlds_lookup
			ON worlds(username_lower, generation_status, expires_at);
		CREATE INDEX IF NOT EXISTS idx_worlds_created_at ON worlds(username_lower, created_at);
		CREATE INDEX IF NOT EXISTS idx_worlds_expires_at ON worlds(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("creating worlds table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS repo_snapshots (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			world_id           TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
			position           INTEGER NOT NULL,
			repo_id            INTEGER NOT NULL,
			name               TEXT NOT NULL,
			full_name          TEXT NOT NULL,
			html_url           TEXT NOT NULL DEFAULT '',
			description        TEXT NOT NULL DEFAULT '',
			primary_language   TEXT NOT NULL DEFAULT '',
			language_breakdown TEXT NOT NULL DEFAULT '{}',
			stars              INTEGER NOT NULL DEFAULT 0,
			forks              INTEGER NOT NULL DEFAULT 0,
			open_issues        INTEGER NOT NULL DEFAULT 0,
			watchers           INTEGER NOT NULL DEFAULT 0,
			size_kb            INTEGER NOT NULL DEFAULT 0,
			commits_30d        INTEGER NOT NULL DEFAULT 0,
			activity_score     REAL NOT NULL DEFAULT 0,
			last_activity_at   DATETIME,
			is_fork            INTEGER NOT NULL DEFAULT 0,
			pos_x              REAL NOT NULL DEFAULT 0,
			pos_y              REAL NOT NULL DEFAULT 0,
			pos_z              REAL NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_repo_snapshots_world ON repo_snapshots(world_id);
		CREATE INDEX IF NOT EXISTS idx_repo_snapshots_language ON repo_snapshots(primary_language);
	`)
	if err != nil {
		return fmt.Errorf("creating repo_snapshots table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS language_stats (
			world_id    TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
			position    INTEGER NOT NULL,
			language    TEXT NOT NULL,
			percent     REAL NOT NULL DEFAULT 0,
			color_token TEXT NOT NULL DEFAULT 'text-300',
			UNIQUE (world_id, language)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating language_stats table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS render_configs (
			world_id         TEXT PRIMARY KEY REFERENCES worlds(id) ON DELETE CASCADE,
			seed             INTEGER NOT NULL DEFAULT 1,
			layout_version   TEXT NOT NULL DEFAULT 'v1',
			density_level    REAL NOT NULL DEFAULT 1.0,
			lighting_profile TEXT NOT NULL DEFAULT 'neo_city',
			enable_particles INTEGER NOT NULL DEFAULT 1
		);
	`)
	if err != nil {
		return fmt.Errorf("creating render_configs table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS share_tokens (
			world_id   TEXT PRIMARY KEY REFERENCES worlds(id) ON DELETE CASCADE,
			token      TEXT NOT NULL UNIQUE,
			is_public  INTEGER NOT NULL DEFAULT 1,
			poster_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			expires_at DATETIME
		);
	`)
	if err != nil {
		return fmt.Errorf("creating share_tokens table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var serr *moderncsqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
