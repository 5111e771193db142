// Package ratelimit bounds how many relay requests per minute reach a given
// upstream endpoint. Limits are keyed by endpoint so one misbehaving client
// cannot burn a shared provider quota. Both an in-memory backend (single
// instance) and a Redis backend (multi-instance) are provided.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter reports whether a request against key may proceed, how much of
// the per-minute quota remains and when the current window resets.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt time.Time, err error)
}

// InMemoryRateLimiter counts requests in fixed one-minute windows. State is
// process-local, so limits multiply by the number of replicas.
type InMemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		windows: make(map[string]*window),
	}
}

func (r *InMemoryRateLimiter) Allow(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	w, ok := r.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(time.Minute)}
		r.windows[key] = w
	}

	if w.count >= limit {
		return false, 0, w.resetAt, nil
	}

	w.count++
	return true, limit - w.count, w.resetAt, nil
}
