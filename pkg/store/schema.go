package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is shared between PostgreSQL and SQLite. Types are kept to the
// portable subset; timestamps are stored in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		signing_secret TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		hashed_key TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS targets (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT 'stripe',
		headers TEXT,
		UNIQUE (tenant_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		fingerprint TEXT NOT NULL,
		payload TEXT NOT NULL,
		duplicate BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (tenant_id, fingerprint)
	)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		attempts INTEGER NOT NULL,
		status INTEGER NOT NULL,
		response TEXT NOT NULL,
		next_run TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_tenant_created ON events (tenant_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_event_attempts ON deliveries (event_id, attempts)`,
}

// Init creates the relay tables if they do not exist.
func Init(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema init: %w", err)
		}
	}
	return nil
}
