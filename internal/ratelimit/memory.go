package ratelimit

import (
	"sync"
	"time"
)

// memoryLimiter is the in-process fallback used when Redis is
// unreachable. It implements the same fixed-window semantics as the
// Redis path so a bucket's guarantee (P7) still holds per-replica
// during an outage.
type memoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count     int
	expiresAt time.Time
}

func newMemoryLimiter() *memoryLimiter {
	return &memoryLimiter{windows: make(map[string]*window)}
}

func (m *memoryLimiter) check(bucket, key string, cfg BucketConfig) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	windowKey := bucket + ":" + key
	now := time.Now()

	w, ok := m.windows[windowKey]
	if !ok || now.After(w.expiresAt) {
		w = &window{count: 0, expiresAt: now.Add(cfg.Window)}
		m.windows[windowKey] = w
	}

	w.count++

	if w.count > cfg.MaxRequests {
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    w.expiresAt,
			RetryAfter: w.expiresAt.Sub(now),
		}
	}

	remaining := cfg.MaxRequests - w.count
	return Result{Allowed: true, Remaining: remaining, ResetAt: w.expiresAt}
}

// Sweep removes expired windows; call periodically (~60s per §4.2).
func (m *memoryLimiter) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for k, w := range m.windows {
		if now.After(w.expiresAt) {
			delete(m.windows, k)
		}
	}
}
