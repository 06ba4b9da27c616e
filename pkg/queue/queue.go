// Package queue provides the delivery job queue: at-least-once, with delayed
// execution via a per-job eta. The attempt number travels on the job payload,
// never derived from counting delivery rows, so a crashed worker resumes the
// chain at the right attempt as long as queue state survives.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one delivery attempt to execute.
type Job struct {
	// ID makes concurrently queued jobs for the same (event, attempt)
	// distinct entries; consumers treat duplicate execution as benign.
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Attempt int    `json:"attempt"`
}

// Queue is the job queue capability.
type Queue interface {
	// Enqueue schedules a job for execution at or after eta.
	Enqueue(ctx context.Context, job Job, eta time.Time) error
	// Dequeue claims the next due job, or returns nil when none is due.
	Dequeue(ctx context.Context, now time.Time) (*Job, error)
}

// MemoryQueue is an in-process Queue for tests and Lite Mode.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []scheduledJob
}

type scheduledJob struct {
	job Job
	eta time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job, eta time.Time) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, scheduledJob{job: job, eta: eta})
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context, now time.Time) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Earliest due job wins; approximate FIFO modulo eta.
	best := -1
	for i, s := range q.jobs {
		if s.eta.After(now) {
			continue
		}
		if best == -1 || s.eta.Before(q.jobs[best].eta) {
			best = i
		}
	}
	if best == -1 {
		return nil, nil
	}
	job := q.jobs[best].job
	q.jobs = append(q.jobs[:best], q.jobs[best+1:]...)
	return &job, nil
}

// Len returns the number of queued (not yet claimed) jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
