// Package ratelimit bounds inbound webhook traffic before any expensive
// verification work happens.
package ratelimit

import (
	"sync"
	"time"

	"github.com/tulumbak/courierhook/internal/config"
)

// Limiter implements a token bucket per key with a fixed refill window.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	rule    config.RateLimitRule
	cleanup *time.Ticker
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	mu         sync.Mutex
}

// NewLimiter creates a limiter with the given rule.
func NewLimiter(rule config.RateLimitRule) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rule:    rule,
		cleanup: time.NewTicker(rule.Window * 2),
		stopCh:  make(chan struct{}),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.cleanupLoop()
	}()

	return l
}

// Allow checks if a request from the given key is allowed.
func (l *Limiter) Allow(key string) bool {
	b := l.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Sub(b.lastRefill) >= l.rule.Window {
		b.tokens = l.rule.Max
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// RetryAfter returns the seconds until the key's window resets, for 429
// responses. Always in [0, window].
func (l *Limiter) RetryAfter(key string) int {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if !exists {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := l.rule.Window - time.Since(b.lastRefill)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds() + 0.5)
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if exists {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists = l.buckets[key]; !exists {
		b = &bucket{
			tokens:     l.rule.Max,
			lastRefill: time.Now(),
		}
		l.buckets[key] = b
	}
	return b
}

func (l *Limiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanup.C:
			l.mu.Lock()
			now := time.Now()
			for key, b := range l.buckets {
				b.mu.Lock()
				if now.Sub(b.lastRefill) > l.rule.Window*2 {
					delete(l.buckets, key)
				}
				b.mu.Unlock()
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stopCh)
	l.cleanup.Stop()
	l.wg.Wait()
}
