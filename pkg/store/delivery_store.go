package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/relay/pkg/model"
)

// SQLDeliveryStore is the append-only delivery attempt log.
type SQLDeliveryStore struct {
	db *sql.DB
}

func NewSQLDeliveryStore(db *sql.DB) *SQLDeliveryStore {
	return &SQLDeliveryStore{db: db}
}

func (s *SQLDeliveryStore) Append(ctx context.Context, d *model.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	var nextRun sql.NullTime
	if d.NextRun != nil {
		nextRun = sql.NullTime{Time: d.NextRun.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, event_id, attempts, status, response, next_run, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.EventID, d.Attempts, d.Status, d.Response, nextRun, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append delivery: %w", err)
	}
	return nil
}

// ListByEvent returns the attempt log in ascending attempts order.
func (s *SQLDeliveryStore) ListByEvent(ctx context.Context, eventID string) ([]*model.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, attempts, status, response, next_run, created_at
		FROM deliveries
		WHERE event_id = $1
		ORDER BY attempts ASC, created_at ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var deliveries []*model.Delivery
	for rows.Next() {
		var d model.Delivery
		var nextRun sql.NullTime
		if err := rows.Scan(&d.ID, &d.EventID, &d.Attempts, &d.Status, &d.Response, &nextRun, &d.CreatedAt); err != nil {
			return nil, err
		}
		if nextRun.Valid {
			t := nextRun.Time
			d.NextRun = &t
		}
		deliveries = append(deliveries, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}
