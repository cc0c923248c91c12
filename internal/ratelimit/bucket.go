// Package ratelimit provides the two rate-limiting primitives the
// platform needs: a token bucket for per-adapter vendor throttling
// (§4.5, "5 req/s" note) and a sliding-window counter for ingress
// limiting (§4.9, §5).
package ratelimit

import (
	"sync"
	"time"
)

// BucketConfig configures a token bucket.
type BucketConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// Bucket implements token-bucket rate limiting for a single key (one per
// CRM adapter instance, per §9's "uses a monotonic clock and a single
// mutex" guidance).
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// NewBucket creates a token bucket. Zero-value fields fall back to
// 10 req/s with a burst of 20.
func NewBucket(cfg BucketConfig) *Bucket {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = int(cfg.RequestsPerSecond * 2)
	}
	return &Bucket{
		tokens:     float64(cfg.BurstSize),
		maxTokens:  float64(cfg.BurstSize),
		refillRate: cfg.RequestsPerSecond,
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks, respecting ctx cancellation, until a token is available.
func (b *Bucket) Wait(done <-chan struct{}) bool {
	for {
		if b.Allow() {
			return true
		}
		select {
		case <-done:
			return false
		case <-time.After(b.waitTime()):
		}
	}
}

func (b *Bucket) waitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		return 0
	}
	needed := 1 - b.tokens
	return time.Duration(needed / b.refillRate * float64(time.Second))
}

func (b *Bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}
