package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/relay/pkg/model"
)

// SQLTenantStore is the relational TenantStore.
type SQLTenantStore struct {
	db *sql.DB
}

func NewSQLTenantStore(db *sql.DB) *SQLTenantStore {
	return &SQLTenantStore{db: db}
}

const tenantColumns = `id, name, token, signing_secret, created_at`

// Create inserts a tenant with a fresh URL-safe ingress token.
// The token identifies the tenant on /in/{token}; it is not a secret.
func (s *SQLTenantStore) Create(ctx context.Context, name string) (*model.Tenant, error) {
	t := &model.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		Token:     newURLSafeToken(16),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, token, created_at) VALUES ($1, $2, $3, $4)`,
		t.ID, t.Name, t.Token, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

func (s *SQLTenantStore) ByToken(ctx context.Context, token string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE token = $1`, token)
	return scanTenant(row)
}

func (s *SQLTenantStore) ByID(ctx context.Context, id string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func (s *SQLTenantStore) SetSigningSecret(ctx context.Context, token, secret string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET signing_secret = $1 WHERE token = $2`, secret, token)
	if err != nil {
		return fmt.Errorf("set signing secret: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// newURLSafeToken returns nBytes of randomness, base64url-encoded without
// padding (same shape as the source's token_urlsafe).
func newURLSafeToken(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
