// Package ratelimit enforces the two ingress limits: a global per-source-IP
// bucket and a tighter per-tenant bucket keyed by ingress token. The shared
// implementation is a Redis token bucket; a per-process fallback exists for
// single-instance deployments without Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit is a token-bucket policy: Requests per Window, with burst capacity
// equal to Requests.
type Limit struct {
	Requests int
	Window   time.Duration
}

// The ingress limits.
var (
	GlobalIPLimit = Limit{Requests: 100, Window: time.Minute}
	PerTokenLimit = Limit{Requests: 30, Window: time.Minute}
)

// Limiter answers whether a request under the given key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (bool, error)
}

// LocalLimiter is the in-process fallback. Acceptable only for
// single-instance deployments; counters are not shared.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter() *LocalLimiter {
	l := &LocalLimiter{buckets: make(map[string]*localBucket)}
	go l.cleanup()
	return l
}

func (l *LocalLimiter) Allow(_ context.Context, key string, limit Limit) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		perSec := rate.Limit(float64(limit.Requests) / limit.Window.Seconds())
		b = &localBucket{limiter: rate.NewLimiter(perSec, limit.Requests)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow(), nil
}

// cleanup removes stale buckets to prevent unbounded growth.
// Checks every minute, removes entries idle longer than 3 minutes.
func (l *LocalLimiter) cleanup() {
	for {
		time.Sleep(1 * time.Minute)
		l.mu.Lock()
		for key, b := range l.buckets {
			if time.Since(b.lastSeen) > 3*time.Minute {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}
