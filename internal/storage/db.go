package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL mode for better concurrency; immediate transactions take the
	// write lock up front so check-then-act sequences inside a transaction
	// cannot interleave
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite doesn't handle concurrent writes well; a single connection
	// also serializes transactions against each other
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &DB{db}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationBudgetUsage,
		migrationJobStatus,
		migrationIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

const migrationBudgetUsage = `
CREATE TABLE IF NOT EXISTS budget_usage (
	day TEXT NOT NULL,
	service TEXT NOT NULL,
	calls INTEGER NOT NULL DEFAULT 0,
	cost REAL NOT NULL DEFAULT 0,

	-- Fine-grained usage for services with tiered pricing
	output_tokens INTEGER NOT NULL DEFAULT 0,
	reasoning_tokens INTEGER NOT NULL DEFAULT 0,
	search_requests INTEGER NOT NULL DEFAULT 0,

	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

	PRIMARY KEY (day, service)
);
`

const migrationJobStatus = `
CREATE TABLE IF NOT EXISTS job_status (
	day TEXT NOT NULL,
	job TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'not_run',
	started_at DATETIME,
	finished_at DATETIME,
	error TEXT,

	PRIMARY KEY (day, job)
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_budget_usage_service ON budget_usage(service);
CREATE INDEX IF NOT EXISTS idx_job_status_day ON job_status(day);
`
