// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time) {
	t.Helper()
	l := New("test", cfg)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxRequests: 3, Window: time.Minute, BlockDuration: 5 * time.Minute})
	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	r.RemoteAddr = "10.0.0.1:1234"

	for i := 0; i < 3; i++ {
		result := l.Check(r, "")
		if !result.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
		if result.Remaining != 3-(i+1) {
			t.Errorf("request %d: remaining = %d, want %d", i+1, result.Remaining, 3-(i+1))
		}
	}

	result := l.Check(r, "")
	if result.Allowed {
		t.Fatal("4th request allowed, want denied")
	}
	if !result.Blocked {
		t.Error("4th request not blocked, want blocked")
	}
	if result.Remaining != 0 {
		t.Errorf("denied remaining = %d, want 0", result.Remaining)
	}
}

func TestWindowResetClearsCount(t *testing.T) {
	l, now := newTestLimiter(t, Config{MaxRequests: 2, Window: time.Minute, BlockDuration: 5 * time.Minute})
	r := httptest.NewRequest("GET", "/api/news", nil)
	r.RemoteAddr = "10.0.0.2:1234"

	l.Check(r, "")
	l.Check(r, "")

	*now = now.Add(time.Minute + time.Second)

	result := l.Check(r, "")
	if !result.Allowed {
		t.Fatal("request after window reset denied, want allowed")
	}
	if result.Remaining != 1 {
		t.Errorf("remaining after reset = %d, want 1 (counter restarted at 1)", result.Remaining)
	}
}

func TestBlockOutlivesWindowReset(t *testing.T) {
	l, now := newTestLimiter(t, Config{MaxRequests: 1, Window: time.Minute, BlockDuration: 10 * time.Minute})
	r := httptest.NewRequest("GET", "/api/news", nil)
	r.RemoteAddr = "10.0.0.3:1234"

	l.Check(r, "")
	result := l.Check(r, "")
	if result.Allowed {
		t.Fatal("over-limit request allowed, want blocked")
	}

	// Past the window but inside the block.
	*now = now.Add(2 * time.Minute)
	result = l.Check(r, "")
	if result.Allowed {
		t.Fatal("request during block allowed, want denied")
	}
	if !result.Blocked {
		t.Error("result not marked blocked during block period")
	}

	// Past the block: full reset, fresh window.
	*now = now.Add(10 * time.Minute)
	result = l.Check(r, "")
	if !result.Allowed {
		t.Fatal("request after block expiry denied, want allowed")
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0 (limit 1, count 1)", result.Remaining)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Minute})

	r1 := httptest.NewRequest("GET", "/api/news", nil)
	r1.RemoteAddr = "10.0.0.4:1234"
	r2 := httptest.NewRequest("GET", "/api/news", nil)
	r2.RemoteAddr = "10.0.0.5:1234"

	l.Check(r1, "")
	if result := l.Check(r1, ""); result.Allowed {
		t.Fatal("over-limit request for first IP allowed")
	}
	if result := l.Check(r2, ""); !result.Allowed {
		t.Fatal("request from second IP denied, want allowed")
	}
}

func TestExplicitIdentifierOverridesKey(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Minute})
	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	r.RemoteAddr = "10.0.0.6:1234"

	l.Check(r, "user@example.com")
	if result := l.Check(r, "user@example.com"); result.Allowed {
		t.Fatal("over-limit identifier check allowed")
	}
	// The IP:path key is untouched.
	if result := l.Check(r, ""); !result.Allowed {
		t.Fatal("request keyed by IP denied, want allowed")
	}
}

func TestResetDeletesEntry(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Minute})
	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	r.RemoteAddr = "10.0.0.7:1234"

	l.Check(r, "")
	l.Check(r, "")
	l.Reset(r, "")

	if result := l.Check(r, ""); !result.Allowed {
		t.Fatal("request after reset denied, want allowed")
	}
}

func TestSnapshotDoesNotCount(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxRequests: 2, Window: time.Minute, BlockDuration: time.Minute})
	r := httptest.NewRequest("GET", "/api/news", nil)
	r.RemoteAddr = "10.0.0.8:1234"

	l.Check(r, "")
	before := l.Snapshot(r, "")
	after := l.Snapshot(r, "")

	if before.Remaining != 1 || after.Remaining != 1 {
		t.Errorf("snapshot remaining = %d then %d, want 1 and 1", before.Remaining, after.Remaining)
	}
}

func TestCleanupExpiredEvictsLapsedEntries(t *testing.T) {
	l, now := newTestLimiter(t, Config{MaxRequests: 1, Window: time.Minute, BlockDuration: 2 * time.Minute})

	r1 := httptest.NewRequest("GET", "/a", nil)
	r1.RemoteAddr = "10.0.1.1:1"
	r2 := httptest.NewRequest("GET", "/b", nil)
	r2.RemoteAddr = "10.0.1.2:1"

	l.Check(r1, "")
	l.Check(r2, "")
	l.Check(r2, "") // blocks r2's key

	*now = now.Add(90 * time.Second)
	// r1's window lapsed; r2 is still blocked.
	if evicted := l.CleanupExpired(); evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if l.Len() != 1 {
		t.Errorf("len = %d, want 1", l.Len())
	}

	*now = now.Add(5 * time.Minute)
	if evicted := l.CleanupExpired(); evicted != 1 {
		t.Fatalf("evicted after block lapse = %d, want 1", evicted)
	}
	if l.Len() != 0 {
		t.Errorf("len = %d, want 0", l.Len())
	}
}

func TestRetryAfterNeverBelowOneSecond(t *testing.T) {
	now := time.Now()
	result := Result{ResetAt: now.Add(100 * time.Millisecond)}
	if got := result.RetryAfter(now); got != 1 {
		t.Errorf("RetryAfter = %d, want 1", got)
	}

	result = Result{Blocked: true, BlockedUntil: now.Add(30 * time.Second)}
	if got := result.RetryAfter(now); got != 30 {
		t.Errorf("RetryAfter = %d, want 30", got)
	}
}
