package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreEnforcesLimit(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	allowedCount := 0
	for i := 0; i < 105; i++ {
		res, err := s.Allow(ctx, "ip:1.2.3.4", 100, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if res.Allowed {
			allowedCount++
		}
	}
	if allowedCount != 100 {
		t.Fatalf("expected exactly 100 allowed hits in window, got %d", allowedCount)
	}
}

func TestMemoryStoreWindowExpires(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if res, err := s.Allow(ctx, "k", 5, 10*time.Millisecond); err != nil || !res.Allowed {
			t.Fatalf("expected allowed, got %v err %v", res, err)
		}
	}
	res, _ := s.Allow(ctx, "k", 5, 10*time.Millisecond)
	if res.Allowed {
		t.Fatal("expected the 6th hit within the window to be rejected")
	}

	time.Sleep(20 * time.Millisecond)
	res, err := s.Allow(ctx, "k", 5, 10*time.Millisecond)
	if err != nil || !res.Allowed {
		t.Fatalf("expected allowed after window elapsed, got %v err %v", res, err)
	}
}

func TestBucketAllow(t *testing.T) {
	b := NewBucket(BucketConfig{RequestsPerSecond: 5, BurstSize: 2})
	if !b.Allow() || !b.Allow() {
		t.Fatal("expected first two requests within burst to be allowed")
	}
	if b.Allow() {
		t.Fatal("expected third immediate request to be denied")
	}
}
