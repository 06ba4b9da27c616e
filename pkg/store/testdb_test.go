package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// newTestDB opens an in-memory SQLite database with the relay schema.
// A single connection keeps the in-memory database alive and serializes
// access the way the production pool does under contention.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`PRAGMA foreign_keys = ON`)
	require.NoError(t, err)
	require.NoError(t, Init(context.Background(), db))
	return db
}

// seedTenant inserts a tenant and returns its id.
func seedTenant(t *testing.T, db *sql.DB, name, token string) string {
	t.Helper()
	ts := NewSQLTenantStore(db)
	tenant, err := ts.Create(context.Background(), name)
	require.NoError(t, err)
	if token != "" {
		_, err = db.Exec(`UPDATE tenants SET token = $1 WHERE id = $2`, token, tenant.ID)
		require.NoError(t, err)
	}
	return tenant.ID
}
