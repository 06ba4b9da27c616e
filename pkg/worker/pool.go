package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/relay/pkg/queue"
)

const defaultPollInterval = 500 * time.Millisecond

// Pool runs N workers that claim due jobs from the queue and hand them to the
// forwarder.
type Pool struct {
	queue     queue.Queue
	forwarder *Forwarder
	workers   int
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewPool(q queue.Queue, f *Forwarder, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:     q,
		forwarder: f,
		workers:   workers,
		interval:  defaultPollInterval,
		logger:    logger,
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("delivery workers started", "count", p.workers)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
	p.logger.Info("delivery workers stopped")
}

func (p *Pool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.now().UTC())
		if err != nil {
			p.logger.Error("dequeue failed", "error", err)
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}
		if err := p.forwarder.Deliver(ctx, job); err != nil {
			p.logger.Error("delivery attempt failed",
				"event_id", job.EventID, "attempt", job.Attempt, "error", err)
			// The attempt never made it into the log, so put the job back
			// with the same attempt number rather than losing it.
			requeueCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if reqErr := p.queue.Enqueue(requeueCtx, *job, p.now().Add(BaseDelay)); reqErr != nil {
				p.logger.Error("requeue failed, job lost",
					"event_id", job.EventID, "attempt", job.Attempt, "error", reqErr)
			}
			cancel()
		}
	}
}

func (p *Pool) sleep(ctx context.Context) {
	t := time.NewTimer(p.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
