package ratelimit

import (
	"sync"
	"time"
)

// FailureTracker counts failed signature-verification attempts per network
// origin and blocks origins that exceed the threshold. Successful requests
// never count against this budget; it exists purely to slow down
// brute-force signature guessing.
type FailureTracker struct {
	mu        sync.RWMutex
	attempts  map[string]*attemptRecord
	threshold int
	window    time.Duration
	cleanup   *time.Ticker
	wg        sync.WaitGroup
	stopCh    chan struct{}
}

type attemptRecord struct {
	count        int
	firstAttempt time.Time
	mu           sync.Mutex
}

// NewFailureTracker creates a tracker with the given threshold and window.
func NewFailureTracker(threshold int, window time.Duration) *FailureTracker {
	ft := &FailureTracker{
		attempts:  make(map[string]*attemptRecord),
		threshold: threshold,
		window:    window,
		cleanup:   time.NewTicker(window * 2),
		stopCh:    make(chan struct{}),
	}

	ft.wg.Add(1)
	go func() {
		defer ft.wg.Done()
		ft.cleanupLoop()
	}()

	return ft
}

// RecordFailure increments the failed attempt counter for the given origin.
func (ft *FailureTracker) RecordFailure(origin string) {
	ft.mu.RLock()
	record, exists := ft.attempts[origin]
	ft.mu.RUnlock()

	if !exists {
		ft.mu.Lock()
		// Double-check after acquiring write lock
		record, exists = ft.attempts[origin]
		if !exists {
			record = &attemptRecord{
				firstAttempt: time.Now(),
			}
			ft.attempts[origin] = record
		}
		ft.mu.Unlock()
	}

	record.mu.Lock()
	defer record.mu.Unlock()

	now := time.Now()
	if now.Sub(record.firstAttempt) >= ft.window {
		record.count = 1
		record.firstAttempt = now
	} else {
		record.count++
	}
}

// IsBlocked checks if the origin has exceeded the failure threshold within
// the current window.
func (ft *FailureTracker) IsBlocked(origin string) bool {
	ft.mu.RLock()
	record, exists := ft.attempts[origin]
	ft.mu.RUnlock()

	if !exists {
		return false
	}

	record.mu.Lock()
	defer record.mu.Unlock()

	if time.Since(record.firstAttempt) >= ft.window {
		return false
	}

	return record.count >= ft.threshold
}

// RetryAfter returns the seconds until the origin's failure window expires.
func (ft *FailureTracker) RetryAfter(origin string) int {
	ft.mu.RLock()
	record, exists := ft.attempts[origin]
	ft.mu.RUnlock()

	if !exists {
		return 0
	}

	record.mu.Lock()
	defer record.mu.Unlock()

	remaining := ft.window - time.Since(record.firstAttempt)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds() + 0.5)
}

// Clear resets the failure counter for an origin.
func (ft *FailureTracker) Clear(origin string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	delete(ft.attempts, origin)
}

func (ft *FailureTracker) cleanupLoop() {
	for {
		select {
		case <-ft.cleanup.C:
			ft.mu.Lock()
			now := time.Now()
			for origin, record := range ft.attempts {
				record.mu.Lock()
				if now.Sub(record.firstAttempt) > ft.window*2 {
					delete(ft.attempts, origin)
				}
				record.mu.Unlock()
			}
			ft.mu.Unlock()
		case <-ft.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (ft *FailureTracker) Stop() {
	close(ft.stopCh)
	ft.cleanup.Stop()
	ft.wg.Wait()
}
