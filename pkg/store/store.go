// Package store persists relay state in a relational database. The SQL is
// written for both PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite, the
// Lite Mode fallback): $N placeholders, explicit UTC timestamps, and
// ON CONFLICT clauses work identically on both.
//
// The events table carries UNIQUE(tenant_id, fingerprint); the database is
// the single source of truth for deduplication and serializes concurrent
// duplicate admissions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Mindburn-Labs/relay/pkg/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// TenantStore manages tenant accounts.
type TenantStore interface {
	Create(ctx context.Context, name string) (*model.Tenant, error)
	ByToken(ctx context.Context, token string) (*model.Tenant, error)
	ByID(ctx context.Context, id string) (*model.Tenant, error)
	// SetSigningSecret updates the webhook signing secret of the tenant
	// identified by its ingress token.
	SetSigningSecret(ctx context.Context, token, secret string) error
}

// APIKeyStore issues and verifies bearer credentials. Only salted hashes are
// stored; verification is constant-time.
type APIKeyStore interface {
	Issue(ctx context.Context, tenantID string) (string, error)
	Verify(ctx context.Context, raw string) (*model.Tenant, error)
}

// TargetStore manages the single outbound destination per tenant.
type TargetStore interface {
	Upsert(ctx context.Context, t *model.Target) (*model.Target, error)
	ByTenant(ctx context.Context, tenantID string) (*model.Target, error)
}

// EventStore persists ingested events with at-most-one row per
// (tenant_id, fingerprint).
type EventStore interface {
	// Insert persists the event if its fingerprint is new for the tenant.
	// On a duplicate it returns the existing row with created=false and
	// writes nothing.
	Insert(ctx context.Context, tenantID, fingerprint string, payload json.RawMessage, now time.Time) (ev *model.Event, created bool, err error)
	ByID(ctx context.Context, id string) (*model.Event, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*model.Event, error)
}

// DeliveryStore is the append-only attempt log per event.
type DeliveryStore interface {
	Append(ctx context.Context, d *model.Delivery) error
	ListByEvent(ctx context.Context, eventID string) ([]*model.Delivery, error)
}

func scanTenant(row *sql.Row) (*model.Tenant, error) {
	var t model.Tenant
	var secret sql.NullString
	err := row.Scan(&t.ID, &t.Name, &t.Token, &secret, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.SigningSecret = secret.String
	return &t, nil
}
