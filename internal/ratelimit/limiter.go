// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Package ratelimit implements fixed-window request counting with an
// escalating block once a window's quota is exceeded.
//
// A fixed window was chosen over sliding-window or token-bucket schemes
// for O(1) memory and check cost per key; the burst-at-window-boundary
// tradeoff is accepted. Once a key exceeds its quota it is blocked for
// the configured block duration regardless of window resets.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/mediadesk/internal/credentials"
	"github.com/tomtom215/mediadesk/internal/logging"
)

// Config holds limiter parameters.
type Config struct {
	// MaxRequests is the number of requests allowed per window.
	MaxRequests int

	// Window is the fixed counting window.
	Window time.Duration

	// BlockDuration is how long a key stays blocked after exceeding
	// the quota.
	BlockDuration time.Duration
}

// LoginConfig is the strict preset for login and auth endpoints.
func LoginConfig() Config {
	return Config{
		MaxRequests:   5,
		Window:        15 * time.Minute,
		BlockDuration: 30 * time.Minute,
	}
}

// APIConfig is the general preset for API traffic.
func APIConfig() Config {
	return Config{
		MaxRequests:   100,
		Window:        time.Minute,
		BlockDuration: 5 * time.Minute,
	}
}

// Result reports the outcome of a limiter check.
type Result struct {
	// Allowed is false when the request must be denied.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// Limit echoes the configured maximum, for response headers.
	Limit int

	// ResetAt is when the current window resets.
	ResetAt time.Time

	// Blocked is true when the key is in its block period.
	Blocked bool

	// BlockedUntil is when the block lifts (zero if not blocked).
	BlockedUntil time.Time
}

// RetryAfter returns the seconds a denied client should wait, at least 1.
func (r Result) RetryAfter(now time.Time) int {
	until := r.ResetAt
	if r.Blocked {
		until = r.BlockedUntil
	}
	secs := int(until.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// entry is the per-key fixed-window state.
type entry struct {
	count        int
	windowReset  time.Time
	blocked      bool
	blockedUntil time.Time
}

// Limiter is a fixed-window rate limiter keyed by (client IP, path) or
// an explicit identifier.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  Config
	name    string

	// now is injectable for window/block expiry tests.
	now func() time.Time
}

// New creates a limiter with the given configuration. The name tags log
// output and metrics.
func New(name string, config Config) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		config:  config,
		name:    name,
		now:     time.Now,
	}
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() Config {
	return l.config
}

// key resolves the limiter key for a request: the explicit identifier if
// given, else clientIP:path.
func (l *Limiter) key(r *http.Request, identifier string) string {
	if identifier != "" {
		return identifier
	}
	info := credentials.ExtractClientInfo(r)
	return info.IP + ":" + r.URL.Path
}

// Check counts a request against its key and reports whether it is
// allowed. The check-then-increment sequence is atomic under the
// limiter's lock so concurrent requests cannot slip past the quota.
func (l *Limiter) Check(r *http.Request, identifier string) Result {
	key := l.key(r, identifier)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{windowReset: now.Add(l.config.Window)}
		l.entries[key] = e
	}

	if e.blocked {
		if now.Before(e.blockedUntil) {
			return Result{
				Allowed:      false,
				Remaining:    0,
				Limit:        l.config.MaxRequests,
				ResetAt:      e.windowReset,
				Blocked:      true,
				BlockedUntil: e.blockedUntil,
			}
		}
		// Block lapsed: fresh window.
		*e = entry{windowReset: now.Add(l.config.Window)}
	}

	if now.After(e.windowReset) {
		e.count = 0
		e.windowReset = now.Add(l.config.Window)
	}

	e.count++

	if e.count > l.config.MaxRequests {
		e.blocked = true
		e.blockedUntil = now.Add(l.config.BlockDuration)
		logging.Warn().
			Str("limiter", l.name).
			Str("key", key).
			Time("blocked_until", e.blockedUntil).
			Msg("Rate limit exceeded, key blocked")
		return Result{
			Allowed:      false,
			Remaining:    0,
			Limit:        l.config.MaxRequests,
			ResetAt:      e.windowReset,
			Blocked:      true,
			BlockedUntil: e.blockedUntil,
		}
	}

	return Result{
		Allowed:   true,
		Remaining: l.config.MaxRequests - e.count,
		Limit:     l.config.MaxRequests,
		ResetAt:   e.windowReset,
	}
}

// Reset deletes the entry for a key outright. Used after a successful
// login to clear attempt history.
func (l *Limiter) Reset(r *http.Request, identifier string) {
	key := l.key(r, identifier)

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Snapshot returns the current result for a key without counting a
// request. Missing keys report a full window.
func (l *Limiter) Snapshot(r *http.Request, identifier string) Result {
	key := l.key(r, identifier)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || (!e.blocked && now.After(e.windowReset)) {
		return Result{
			Allowed:   true,
			Remaining: l.config.MaxRequests,
			Limit:     l.config.MaxRequests,
			ResetAt:   now.Add(l.config.Window),
		}
	}

	if e.blocked && now.Before(e.blockedUntil) {
		return Result{
			Limit:        l.config.MaxRequests,
			ResetAt:      e.windowReset,
			Blocked:      true,
			BlockedUntil: e.blockedUntil,
		}
	}

	remaining := l.config.MaxRequests - e.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   true,
		Remaining: remaining,
		Limit:     l.config.MaxRequests,
		ResetAt:   e.windowReset,
	}
}

// CleanupExpired evicts entries whose window and block have both lapsed,
// bounding memory under sustained traffic from many distinct keys.
func (l *Limiter) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	count := 0
	for key, e := range l.entries {
		if now.After(e.windowReset) && (!e.blocked || now.After(e.blockedUntil)) {
			delete(l.entries, key)
			count++
		}
	}

	if count > 0 {
		logging.Debug().
			Str("limiter", l.name).
			Int("count", count).
			Msg("Evicted expired rate-limit entries")
	}
	return count
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
