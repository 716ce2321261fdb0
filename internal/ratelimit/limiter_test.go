package ratelimit

import (
	"testing"
	"time"

	"github.com/tulumbak/courierhook/internal/config"
)

func TestLimiter_Allow(t *testing.T) {
	rule := config.RateLimitRule{
		Max:    3,
		Window: 1 * time.Second,
	}

	l := NewLimiter(rule)
	defer l.Stop()

	key := "203.0.113.9_muditakurye"

	for i := 0; i < 3; i++ {
		if !l.Allow(key) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if l.Allow(key) {
		t.Error("4th request should be blocked")
	}

	time.Sleep(1100 * time.Millisecond)

	if !l.Allow(key) {
		t.Error("Request after window should be allowed")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	rule := config.RateLimitRule{
		Max:    2,
		Window: 1 * time.Second,
	}

	l := NewLimiter(rule)
	defer l.Stop()

	if !l.Allow("origin1_platform") || !l.Allow("origin1_platform") {
		t.Error("origin1 should allow 2 requests")
	}

	if !l.Allow("origin2_platform") || !l.Allow("origin2_platform") {
		t.Error("origin2 should allow 2 requests")
	}

	if l.Allow("origin1_platform") {
		t.Error("origin1 should be blocked")
	}
	if l.Allow("origin2_platform") {
		t.Error("origin2 should be blocked")
	}
}

func TestLimiter_RetryAfter(t *testing.T) {
	rule := config.RateLimitRule{
		Max:    1,
		Window: time.Minute,
	}

	l := NewLimiter(rule)
	defer l.Stop()

	if l.RetryAfter("unseen") != 0 {
		t.Error("unseen key should have zero retry-after")
	}

	l.Allow("key")
	if l.Allow("key") {
		t.Fatal("2nd request should be blocked")
	}

	retryAfter := l.RetryAfter("key")
	if retryAfter < 0 || retryAfter > 60 {
		t.Errorf("retry-after should be in [0,60], got %d", retryAfter)
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	rule := config.RateLimitRule{
		Max:    5,
		Window: 100 * time.Millisecond,
	}

	l := NewLimiter(rule)
	defer l.Stop()

	l.Allow("key1")
	l.Allow("key2")

	l.mu.RLock()
	initialCount := len(l.buckets)
	l.mu.RUnlock()

	if initialCount != 2 {
		t.Errorf("Expected 2 buckets, got %d", initialCount)
	}

	time.Sleep(300 * time.Millisecond)

	l.mu.RLock()
	finalCount := len(l.buckets)
	l.mu.RUnlock()

	if finalCount != 0 {
		t.Errorf("Expected 0 buckets after cleanup, got %d", finalCount)
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	rule := config.RateLimitRule{
		Max:    100,
		Window: 1 * time.Second,
	}

	l := NewLimiter(rule)
	defer l.Stop()

	done := make(chan bool)
	key := "concurrent-key"

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				l.Allow(key)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	l.mu.RLock()
	b := l.buckets[key]
	l.mu.RUnlock()

	if b == nil {
		t.Fatal("Bucket should exist")
	}

	b.mu.Lock()
	tokens := b.tokens
	b.mu.Unlock()

	if tokens != 0 {
		t.Errorf("Expected 0 tokens remaining, got %d", tokens)
	}
}
