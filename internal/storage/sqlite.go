package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open creates the SQLite database, applies pragmas and runs migrations.
// The single connection plus immediate transactions gives the bind path its
// mutual-exclusion boundary: two transactions can never both observe "no
// active assignment" for the same channel and both commit one.
func Open(path string) (*sql.DB, error) {
	// _time_format=sqlite stores time.Time as SQLite datetime text so the
	// date() and ORDER BY timestamp queries work on the stored values.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_time_format=sqlite&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			link TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT 'medium',
			credibility_score REAL NOT NULL DEFAULT 0,
			total_members INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS assignments (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			assigned_at DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			last_fetch_at DATETIME,
			messages_fetched_total INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (account_id) REFERENCES accounts(id),
			FOREIGN KEY (channel_id) REFERENCES channels(id)
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_channel
			ON assignments(channel_id) WHERE status = 'active';`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_account_status
			ON assignments(account_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_assigned_at
			ON assignments(assigned_at);`,
		`CREATE TABLE IF NOT EXISTS quota_counters (
			account_id TEXT NOT NULL,
			day TEXT NOT NULL,
			acquired_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (account_id, day)
		);`,
		`CREATE TABLE IF NOT EXISTS assignment_history (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			action TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			reason TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_channel
			ON assignment_history(channel_id, timestamp);`,
		`CREATE TABLE IF NOT EXISTS messages (
			channel_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			sender TEXT NOT NULL DEFAULT '',
			message_text TEXT NOT NULL,
			timestamp DATETIME,
			is_signal INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			fetched_by_account TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (channel_id, message_id)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
