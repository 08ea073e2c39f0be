// Package store provides persistent server state backed by an embedded
// SQLite database. It owns the database lifecycle and exposes typed
// accessors for users, friend edges, messages and conversation heads —
// the store gateway, C2 in the component design.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// migrations holds the ordered list of DDL statements that bring the
// schema up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — users
	`CREATE TABLE IF NOT EXISTS users (
		username    TEXT PRIMARY KEY,
		password    TEXT NOT NULL,
		nickname    TEXT NOT NULL DEFAULT '',
		signature   TEXT NOT NULL DEFAULT '',
		avatar_id   TEXT NOT NULL DEFAULT '',
		avatar_path TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — friends (directed edges; symmetric closure enforced by the caller)
	`CREATE TABLE IF NOT EXISTS friends (
		username TEXT NOT NULL,
		friend   TEXT NOT NULL,
		remark   TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (username, friend)
	)`,
	// v3 — messages
	`CREATE TABLE IF NOT EXISTS messages (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		sender             TEXT NOT NULL,
		receiver           TEXT NOT NULL,
		message            TEXT NOT NULL DEFAULT '',
		write_time         TEXT NOT NULL,
		attachment_type    TEXT NOT NULL DEFAULT '',
		attachment_path    TEXT NOT NULL DEFAULT '',
		original_file_name TEXT NOT NULL DEFAULT '',
		thumbnail_path     TEXT NOT NULL DEFAULT '',
		file_size          INTEGER NOT NULL DEFAULT 0,
		duration           REAL NOT NULL DEFAULT 0,
		reply_to           INTEGER,
		reply_preview      TEXT NOT NULL DEFAULT '',
		file_id            TEXT NOT NULL DEFAULT ''
	)`,
	// v4 — conversation heads, keyed by the canonical (sorted) pair
	`CREATE TABLE IF NOT EXISTS conversations (
		username        TEXT NOT NULL,
		friend          TEXT NOT NULL,
		lastmessageid   INTEGER,
		lastupdatetime  TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (username, friend)
	)`,
	// v5 — settings key/value store (ambient; CLI settings subcommand)
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	// v6, v7 — indexes for pairwise history and attachment lookups
	`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender, receiver, write_time DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_file_id ON messages(file_id)`,
	// v8 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database and exposes server-state operations.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Allow multiple read connections but serialise writes.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Printf("[store] WAL mode: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[store] busy_timeout: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		log.Printf("[store] foreign_keys: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[store] applied migration v%d", v)
	}
	return nil
}

// GetSetting returns the value stored under key. The second return value is
// false when the key does not exist; an error is only returned for real I/O
// failures.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetSetting upserts key → value in the settings table.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Optimize runs SQLite's query-planner optimizer; intended to be called
// periodically from a background ticker.
func (s *Store) Optimize() error {
	_, err := s.db.Exec(`PRAGMA optimize`)
	return err
}

// Backup writes a consistent snapshot of the database to outPath using
// SQLite's VACUUM INTO.
func (s *Store) Backup(outPath string) error {
	_, err := s.db.Exec(fmt.Sprintf("VACUUM INTO %q", outPath))
	return err
}

// UserCount and MessageCount back the CLI status subcommand.
func (s *Store) UserCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) MessageCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
