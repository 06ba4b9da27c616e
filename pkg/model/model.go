// Package model defines the persisted records of the relay: tenants, their
// credentials and targets, ingested events and delivery attempts.
package model

import (
	"encoding/json"
	"time"
)

// Tenant is a customer account. It owns one ingress token, zero or more API
// keys, one delivery target and many events.
type Tenant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Token         string `json:"token"`
	SigningSecret string `json:"-"`
	CreatedAt     time.Time
}

// APIKey is a bearer credential for the management endpoints. Only the
// salted hash of the issued secret is stored.
type APIKey struct {
	ID        string
	TenantID  string
	HashedKey string
	CreatedAt time.Time
}

// Target is the single outbound destination of a tenant. Headers are merged
// into every delivery request.
type Target struct {
	ID       string            `json:"id"`
	TenantID string            `json:"-"`
	URL      string            `json:"url"`
	Provider string            `json:"provider"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Event is an ingested webhook event. Immutable once persisted.
// (TenantID, Fingerprint) is unique: the ingress never creates a second row
// for the same raw body.
type Event struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
	Duplicate   bool            `json:"duplicate"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BlobKey returns the deterministic object key of the event's raw payload.
func (e *Event) BlobKey() string {
	return e.TenantID + "/" + e.Fingerprint + ".json"
}

// Delivery is one outbound attempt, recorded as an immutable row.
// Attempts is the 1-indexed attempt number of this row; a manual replay is
// logged with Attempts=0 as an audit marker. Status is the HTTP response
// code, or 0 for transport errors. NextRun is non-nil iff a retry is
// scheduled.
type Delivery struct {
	ID        string     `json:"id"`
	EventID   string     `json:"event_id"`
	Attempts  int        `json:"attempts"`
	Status    int        `json:"status"`
	Response  string     `json:"response"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
