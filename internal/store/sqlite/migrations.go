package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"log/slog"
)

// migration is one ordered schema step, tracked in schema_version.
// golang-migrate's file-based driver isn't used because its SQLite backend
// requires cgo (mattn/go-sqlite3), which would reintroduce the dependency
// that modernc.org/sqlite avoids.
type migration struct {
	version     int
	description string
	stmts       []string
}

var migrations = []migration{
	{
		version:     1,
		description: "initial schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at DATETIME NOT NULL,
				description TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS tape (
				session_id TEXT PRIMARY KEY,
				messages TEXT NOT NULL,
				message_count INTEGER NOT NULL DEFAULT 0,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS queue (
				id TEXT PRIMARY KEY,
				channel TEXT NOT NULL,
				sender_id TEXT NOT NULL,
				sender_name TEXT,
				session_id TEXT NOT NULL,
				content TEXT NOT NULL,
				reply_to TEXT,
				status TEXT NOT NULL,
				error TEXT,
				created_at DATETIME NOT NULL,
				processed_at DATETIME
			)`,
			`CREATE INDEX IF NOT EXISTS idx_queue_status_created ON queue(status, created_at)`,
			`CREATE TABLE IF NOT EXISTS memory (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				key TEXT UNIQUE,
				content TEXT NOT NULL,
				tags TEXT,
				source TEXT,
				category TEXT NOT NULL,
				importance INTEGER NOT NULL DEFAULT 5,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				last_accessed DATETIME,
				access_count INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
				content, tags, content='memory', content_rowid='id', tokenize='unicode61'
			)`,
			`CREATE TRIGGER IF NOT EXISTS memory_ai AFTER INSERT ON memory BEGIN
				INSERT INTO memory_fts(rowid, content, tags) VALUES (new.id, new.content, coalesce(new.tags, ''));
			END`,
			`CREATE TRIGGER IF NOT EXISTS memory_ad AFTER DELETE ON memory BEGIN
				INSERT INTO memory_fts(memory_fts, rowid, content, tags) VALUES ('delete', old.id, old.content, coalesce(old.tags, ''));
			END`,
			`CREATE TRIGGER IF NOT EXISTS memory_au AFTER UPDATE ON memory BEGIN
				INSERT INTO memory_fts(memory_fts, rowid, content, tags) VALUES ('delete', old.id, old.content, coalesce(old.tags, ''));
				INSERT INTO memory_fts(rowid, content, tags) VALUES (new.id, new.content, coalesce(new.tags, ''));
			END`,
			`CREATE TABLE IF NOT EXISTS audit (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT,
				event_type TEXT NOT NULL,
				tool_name TEXT,
				detail TEXT,
				tokens_used INTEGER NOT NULL DEFAULT 0,
				timestamp DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_session ON audit(session_id)`,
			`CREATE TABLE IF NOT EXISTS state (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS cron_jobs (
				name TEXT PRIMARY KEY,
				schedule TEXT NOT NULL,
				prompt TEXT NOT NULL,
				target_channel TEXT,
				session_mode TEXT NOT NULL DEFAULT 'isolated',
				enabled INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS cron_runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				job_name TEXT NOT NULL,
				started_at DATETIME NOT NULL,
				ended_at DATETIME,
				ok INTEGER,
				error TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS saved_workers (
				name TEXT PRIMARY KEY,
				system_prompt TEXT NOT NULL,
				model TEXT,
				created_at DATETIME NOT NULL
			)`,
		},
	},
}

func (s *Store) migrate(ctx context.Context) error {
	return s.withConn(ctx, func(db *sql.DB) error {
		// schema_version may not exist yet on a brand new database; the
		// first migration creates it, so bootstrap with a raw check.
		var exists int
		err := db.QueryRowContext(ctx,
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check schema_version: %w", err)
		}

		current := 0
		if exists > 0 {
			if err := db.QueryRowContext(ctx, `SELECT coalesce(max(version), 0) FROM schema_version`).Scan(&current); err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
		}

		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", m.version, err)
			}
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					tx.Rollback()
					return fmt.Errorf("migration %d: %w", m.version, err)
				}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_version (version, applied_at, description) VALUES (?, datetime('now'), ?)`,
				m.version, m.description); err != nil {
				tx.Rollback()
				return fmt.Errorf("record migration %d: %w", m.version, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit migration %d: %w", m.version, err)
			}
			slog.Info("applied migration", "version", m.version, "description", m.description)
		}
		return nil
	})
}
