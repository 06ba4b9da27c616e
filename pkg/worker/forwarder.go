// Package worker drains the delivery queue and forwards events to tenant
// targets with exponential backoff.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/relay/pkg/model"
	"github.com/Mindburn-Labs/relay/pkg/observability"
	"github.com/Mindburn-Labs/relay/pkg/queue"
	"github.com/Mindburn-Labs/relay/pkg/store"
)

const (
	// BaseDelay is the wait before the second attempt; it doubles per attempt.
	BaseDelay = 30 * time.Second
	// MaxAttempts bounds the attempt counter. The row for the final attempt
	// carries no next_run.
	MaxAttempts = 5

	requestTimeout     = 10 * time.Second
	maxResponseExcerpt = 2048
)

// Forwarder performs one delivery attempt per claimed job.
type Forwarder struct {
	events     store.EventStore
	targets    store.TargetStore
	deliveries store.DeliveryStore
	queue      queue.Queue
	client     *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewForwarder(
	events store.EventStore,
	targets store.TargetStore,
	deliveries store.DeliveryStore,
	q queue.Queue,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		events:     events,
		targets:    targets,
		deliveries: deliveries,
		queue:      q,
		client:     &http.Client{Timeout: requestTimeout},
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Deliver executes one attempt for the job. The attempt number travels on the
// job itself, never derived from stored rows, so a replayed event restarts
// cleanly at attempt 1.
//
// A missing event or a tenant without a target is terminal: the job is
// acknowledged without writing an attempt row.
func (f *Forwarder) Deliver(ctx context.Context, job *queue.Job) error {
	ev, err := f.events.ByID(ctx, job.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			f.logger.Warn("delivery dropped, event missing", "event_id", job.EventID)
			return nil
		}
		return fmt.Errorf("load event %s: %w", job.EventID, err)
	}

	target, err := f.targets.ByTenant(ctx, ev.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			f.logger.Warn("delivery dropped, tenant has no target",
				"event_id", ev.ID, "tenant_id", ev.TenantID)
			return nil
		}
		return fmt.Errorf("load target for tenant %s: %w", ev.TenantID, err)
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	status, excerpt := f.post(ctx, target, ev)
	now := f.now().UTC()
	succeeded := status >= 200 && status < 300

	d := &model.Delivery{
		EventID:   ev.ID,
		Attempts:  attempt,
		Status:    status,
		Response:  excerpt,
		CreatedAt: now,
	}
	if !succeeded && attempt < MaxAttempts {
		next := now.Add(backoff(attempt))
		d.NextRun = &next
	}
	if err := f.deliveries.Append(ctx, d); err != nil {
		return fmt.Errorf("record attempt %d for event %s: %w", attempt, ev.ID, err)
	}

	switch {
	case succeeded:
		f.metrics.DeliveryAttempt(ctx, "delivered")
		f.logger.Info("event delivered",
			"event_id", ev.ID, "attempt", attempt, "status", status)
	case d.NextRun != nil:
		f.metrics.DeliveryAttempt(ctx, "retry_scheduled")
		f.logger.Info("delivery failed, retry scheduled",
			"event_id", ev.ID, "attempt", attempt, "status", status, "next_run", *d.NextRun)
		if err := f.queue.Enqueue(ctx, queue.Job{EventID: ev.ID, Attempt: attempt + 1}, *d.NextRun); err != nil {
			return fmt.Errorf("schedule retry for event %s: %w", ev.ID, err)
		}
	default:
		f.metrics.DeliveryAttempt(ctx, "abandoned")
		f.logger.Error("delivery abandoned",
			"event_id", ev.ID, "attempt", attempt, "status", status)
	}
	return nil
}

// post sends the event payload to the target. Transport failures map to
// status 0 with the error text as the response excerpt.
func (f *Forwarder) post(ctx context.Context, target *model.Target, ev *model.Event) (int, string) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(ev.Payload))
	if err != nil {
		return 0, truncate(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, truncate(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseExcerpt))
	return resp.StatusCode, string(body)
}

// backoff returns BaseDelay * 2^(attempt-1).
func backoff(attempt int) time.Duration {
	return BaseDelay << (attempt - 1)
}

func truncate(s string) string {
	if len(s) > maxResponseExcerpt {
		return s[:maxResponseExcerpt]
	}
	return s
}
