package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/relay/pkg/model"
)

// SQLTargetStore is the relational TargetStore. One target per
// (tenant, provider); Upsert replaces the URL and headers in place.
type SQLTargetStore struct {
	db *sql.DB
}

func NewSQLTargetStore(db *sql.DB) *SQLTargetStore {
	return &SQLTargetStore{db: db}
}

func (s *SQLTargetStore) Upsert(ctx context.Context, t *model.Target) (*model.Target, error) {
	if t.Provider == "" {
		t.Provider = "stripe"
	}
	headersJSON, err := marshalHeaders(t.Headers)
	if err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO targets (id, tenant_id, url, provider, headers)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET url = $3, headers = $5`,
		t.ID, t.TenantID, t.URL, t.Provider, headersJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert target: %w", err)
	}
	// Re-read so the caller sees the surviving row id on updates.
	return s.ByTenant(ctx, t.TenantID)
}

func (s *SQLTargetStore) ByTenant(ctx context.Context, tenantID string) (*model.Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, url, provider, headers FROM targets WHERE tenant_id = $1`,
		tenantID)

	var t model.Target
	var headersJSON sql.NullString
	err := row.Scan(&t.ID, &t.TenantID, &t.URL, &t.Provider, &headersJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if headersJSON.Valid && headersJSON.String != "" {
		if err := json.Unmarshal([]byte(headersJSON.String), &t.Headers); err != nil {
			return nil, fmt.Errorf("corrupt headers JSON for target %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

func marshalHeaders(h map[string]string) (sql.NullString, error) {
	if len(h) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal headers: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
