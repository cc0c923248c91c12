package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of a sliding-window check, carrying everything
// needed to populate the §6 rate-limit response headers.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store is the sliding-window rate-limit backend contract (§4.9, §5).
// A real deployment backs this with the same hot store used by C3,
// keyed under "ratelimit:<id>", using a single pipelined
// zremrangebyscore+zcard+zadd+expire round trip for atomicity. Store
// implementations MUST fail open: a backend error must never block a
// request (§5 "Fail-open vs fail-closed").
type Store interface {
	// Allow records one hit for key and reports whether it is within
	// limit hits per window. An error means the backend is unreachable;
	// callers MUST treat that as Allowed=true (fail open).
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// MemoryStore is an in-process sliding-window counter, keyed by id, using
// a timestamp log per key pruned to the current window on every hit —
// the in-memory equivalent of the Redis zset pipeline described above.
// No third-party sliding-window or Redis client exists anywhere in the
// retrieved example corpus (grep confirms zero go-redis/redis.Client
// imports), so this is implemented directly against the standard
// library; the Store interface is the seam a Redis-backed
// implementation would satisfy in a multi-process deployment.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	maxKeys int
}

// NewMemoryStore creates a sliding-window store bounded to maxKeys
// distinct identifiers, dropping one key when the bound is exceeded: an
// empty entry if there is one, otherwise an arbitrary key.
func NewMemoryStore(maxKeys int) *MemoryStore {
	if maxKeys <= 0 {
		maxKeys = 100000
	}
	return &MemoryStore{windows: make(map[string][]time.Time), maxKeys: maxKeys}
}

func (s *MemoryStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := time.Now()
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	hits := s.windows[key]
	pruned := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	allowed := len(pruned) < limit
	if allowed {
		pruned = append(pruned, now)
	}
	s.windows[key] = pruned

	if len(s.windows) > s.maxKeys {
		s.evictOne()
	}

	remaining := limit - len(pruned)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now.Add(window)
	if len(pruned) > 0 {
		resetAt = pruned[0].Add(window)
	}

	return Result{Allowed: allowed, Limit: limit, Remaining: remaining, ResetAt: resetAt}, nil
}

// evictOne removes an empty entry if one exists, otherwise an arbitrary
// entry; called with mu held.
func (s *MemoryStore) evictOne() {
	for k, v := range s.windows {
		if len(v) == 0 {
			delete(s.windows, k)
			return
		}
	}
	for k := range s.windows {
		delete(s.windows, k)
		return
	}
}
