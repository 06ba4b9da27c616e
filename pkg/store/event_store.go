package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/relay/pkg/model"
)

// SQLEventStore is the relational EventStore. The UNIQUE(tenant_id,
// fingerprint) constraint makes Insert safe under concurrent duplicates:
// whichever insert loses the race sees zero affected rows and re-reads the
// winner.
type SQLEventStore struct {
	db *sql.DB
}

func NewSQLEventStore(db *sql.DB) *SQLEventStore {
	return &SQLEventStore{db: db}
}

const eventColumns = `id, tenant_id, fingerprint, payload, duplicate, created_at`

func (s *SQLEventStore) Insert(ctx context.Context, tenantID, fingerprint string, payload json.RawMessage, now time.Time) (*model.Event, bool, error) {
	ev := &model.Event{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Fingerprint: fingerprint,
		Payload:     payload,
		CreatedAt:   now.UTC(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, tenant_id, fingerprint, payload, duplicate, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT (tenant_id, fingerprint) DO NOTHING`,
		ev.ID, ev.TenantID, ev.Fingerprint, string(ev.Payload), ev.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		return ev, true, nil
	}

	// Lost the race (or a straight duplicate): the constraint guarantees the
	// existing row is the one and only admission for this fingerprint.
	existing, err := s.byTenantFingerprint(ctx, tenantID, fingerprint)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *SQLEventStore) ByID(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (s *SQLEventStore) byTenantFingerprint(ctx context.Context, tenantID, fingerprint string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE tenant_id = $1 AND fingerprint = $2`,
		tenantID, fingerprint)
	return scanEvent(row)
}

func (s *SQLEventStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*model.Event
	for rows.Next() {
		var ev model.Event
		var payload string
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.Fingerprint, &payload, &ev.Duplicate, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Payload = json.RawMessage(payload)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func scanEvent(row *sql.Row) (*model.Event, error) {
	var ev model.Event
	var payload string
	err := row.Scan(&ev.ID, &ev.TenantID, &ev.Fingerprint, &payload, &ev.Duplicate, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ev.Payload = json.RawMessage(payload)
	return &ev, nil
}
