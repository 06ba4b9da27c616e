package store

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/relay/pkg/model"
)

// SQLAPIKeyStore stores salted HMAC-SHA256 hashes of issued API keys.
// The deterministic hash allows an indexed lookup; the fetched hash is still
// compared in constant time before the key is accepted.
type SQLAPIKeyStore struct {
	db   *sql.DB
	salt []byte
}

func NewSQLAPIKeyStore(db *sql.DB, salt string) *SQLAPIKeyStore {
	return &SQLAPIKeyStore{db: db, salt: []byte(salt)}
}

// Issue creates a new API key for the tenant and returns the raw secret.
// The raw value is never stored and cannot be recovered.
func (s *SQLAPIKeyStore) Issue(ctx context.Context, tenantID string) (string, error) {
	raw := "rk_" + newURLSafeToken(24)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, tenant_id, hashed_key, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), tenantID, s.hash(raw), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("issue api key: %w", err)
	}
	return raw, nil
}

// Verify resolves a submitted bearer token to its tenant.
// Returns ErrNotFound for unknown or revoked keys.
func (s *SQLAPIKeyStore) Verify(ctx context.Context, raw string) (*model.Tenant, error) {
	hashed := s.hash(raw)
	row := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.name, t.token, t.signing_secret, t.created_at, k.hashed_key
		FROM api_keys k
		JOIN tenants t ON t.id = k.tenant_id
		WHERE k.hashed_key = $1`, hashed)

	var t model.Tenant
	var secret sql.NullString
	var storedHash string
	err := row.Scan(&t.ID, &t.Name, &t.Token, &secret, &t.CreatedAt, &storedHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !hmac.Equal([]byte(storedHash), []byte(hashed)) {
		return nil, ErrNotFound
	}
	t.SigningSecret = secret.String
	return &t, nil
}

func (s *SQLAPIKeyStore) hash(raw string) string {
	mac := hmac.New(sha256.New, s.salt)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
