package ratelimit

import (
	"testing"
	"time"
)

func TestFailureTracker_BlocksAfterThreshold(t *testing.T) {
	ft := NewFailureTracker(3, time.Minute)
	defer ft.Stop()

	origin := "198.51.100.7"

	for i := 0; i < 2; i++ {
		ft.RecordFailure(origin)
		if ft.IsBlocked(origin) {
			t.Errorf("origin should not be blocked after %d failures", i+1)
		}
	}

	ft.RecordFailure(origin)
	if !ft.IsBlocked(origin) {
		t.Error("origin should be blocked at the threshold")
	}
}

func TestFailureTracker_WindowExpiry(t *testing.T) {
	ft := NewFailureTracker(2, 200*time.Millisecond)
	defer ft.Stop()

	origin := "198.51.100.8"

	ft.RecordFailure(origin)
	ft.RecordFailure(origin)

	if !ft.IsBlocked(origin) {
		t.Fatal("origin should be blocked")
	}

	time.Sleep(250 * time.Millisecond)

	if ft.IsBlocked(origin) {
		t.Error("block should expire with the window")
	}

	// A failure after expiry starts a fresh window.
	ft.RecordFailure(origin)
	if ft.IsBlocked(origin) {
		t.Error("single failure in a new window should not block")
	}
}

func TestFailureTracker_Clear(t *testing.T) {
	ft := NewFailureTracker(1, time.Minute)
	defer ft.Stop()

	origin := "198.51.100.9"

	ft.RecordFailure(origin)
	if !ft.IsBlocked(origin) {
		t.Fatal("origin should be blocked")
	}

	ft.Clear(origin)
	if ft.IsBlocked(origin) {
		t.Error("cleared origin should not be blocked")
	}
}

func TestFailureTracker_OriginsAreIndependent(t *testing.T) {
	ft := NewFailureTracker(1, time.Minute)
	defer ft.Stop()

	ft.RecordFailure("origin-a")

	if ft.IsBlocked("origin-b") {
		t.Error("an unrelated origin should not be blocked")
	}
}

func TestFailureTracker_RetryAfter(t *testing.T) {
	ft := NewFailureTracker(1, time.Minute)
	defer ft.Stop()

	if ft.RetryAfter("unseen") != 0 {
		t.Error("unseen origin should have zero retry-after")
	}

	ft.RecordFailure("origin-c")

	retryAfter := ft.RetryAfter("origin-c")
	if retryAfter < 0 || retryAfter > 60 {
		t.Errorf("retry-after should be in [0,60], got %d", retryAfter)
	}
}
