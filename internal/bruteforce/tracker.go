// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Package bruteforce tracks failed login attempts per logical identifier
// (normalized email or IP) and locks the identifier out after repeated
// failures.
//
// This is separate from the generic route-keyed rate limiter: the
// keyspace is semantic identity rather than (IP, path), and a single
// successful attempt deletes all history for the identifier, whereas the
// rate limiter only decays by time.
package bruteforce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/mediadesk/internal/logging"
)

// ErrEntryNotFound is returned when no tracking state exists for an identifier.
var ErrEntryNotFound = errors.New("brute-force entry not found")

// Config holds tracker parameters.
type Config struct {
	// MaxAttempts is the cumulative failure count that triggers a block.
	MaxAttempts int

	// Window is the rolling window within which failures accumulate.
	// Failures older than this reset the count.
	Window time.Duration

	// BlockDuration is how long an identifier stays blocked.
	BlockDuration time.Duration
}

// DefaultConfig returns the production defaults: 5 failures within
// 15 minutes blocks for 30 minutes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: 30 * time.Minute,
	}
}

// Entry tracks failed attempts for one identifier.
type Entry struct {
	Identifier   string    `json:"identifier"`
	FailureCount int       `json:"failure_count"`
	LastAttempt  time.Time `json:"last_attempt"`
	Blocked      bool      `json:"blocked"`
	BlockedUntil time.Time `json:"blocked_until"`
}

// Store defines the interface for tracker state persistence.
type Store interface {
	// GetEntry retrieves an entry by identifier.
	GetEntry(ctx context.Context, identifier string) (*Entry, error)

	// SaveEntry persists an entry.
	SaveEntry(ctx context.Context, entry *Entry) error

	// DeleteEntry removes an entry. Returns ErrEntryNotFound if absent.
	DeleteEntry(ctx context.Context, identifier string) error

	// CleanupExpired removes entries whose window and block have lapsed.
	CleanupExpired(ctx context.Context, window time.Duration) (int, error)
}

// Status reports the tracking state for an identifier.
type Status struct {
	// Allowed is false while the identifier is blocked.
	Allowed bool

	// AttemptsRemaining is how many more failures are tolerated.
	AttemptsRemaining int

	// Blocked is true when the identifier is in its block period.
	Blocked bool

	// BlockedUntil is when the block lifts (zero if not blocked).
	BlockedUntil time.Time
}

// Tracker applies the lockout policy on top of a Store.
type Tracker struct {
	config Config
	store  Store

	mu        sync.RWMutex
	onBlocked func(identifier string, entry *Entry)

	// now is injectable for rolling-window tests.
	now func() time.Time
}

// NewTracker creates a tracker with the given store and config.
func NewTracker(store Store, config Config) *Tracker {
	if config.MaxAttempts <= 0 {
		config = DefaultConfig()
	}
	return &Tracker{
		config: config,
		store:  store,
		now:    time.Now,
	}
}

// SetOnBlocked sets a callback fired when an identifier becomes blocked,
// for audit integration.
func (t *Tracker) SetOnBlocked(fn func(identifier string, entry *Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onBlocked = fn
}

// CheckAttempt is a read-only precheck before accepting a login attempt.
func (t *Tracker) CheckAttempt(ctx context.Context, identifier string) (Status, error) {
	entry, err := t.store.GetEntry(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return Status{Allowed: true, AttemptsRemaining: t.config.MaxAttempts}, nil
		}
		return Status{}, fmt.Errorf("check attempt: %w", err)
	}

	now := t.now()

	if entry.Blocked && now.Before(entry.BlockedUntil) {
		return Status{
			Allowed:      false,
			Blocked:      true,
			BlockedUntil: entry.BlockedUntil,
		}, nil
	}

	count := entry.FailureCount
	if entry.Blocked || now.Sub(entry.LastAttempt) > t.config.Window {
		// Stale block or stale window: next failure starts fresh.
		count = 0
	}

	return Status{
		Allowed:           true,
		AttemptsRemaining: t.config.MaxAttempts - count,
	}, nil
}

// RecordFailedAttempt increments the failure count and blocks the
// identifier once the configured maximum is reached within the window.
func (t *Tracker) RecordFailedAttempt(ctx context.Context, identifier string) (Status, error) {
	entry, err := t.getOrCreateEntry(ctx, identifier)
	if err != nil {
		return Status{}, fmt.Errorf("record failed attempt: %w", err)
	}

	now := t.now()

	if entry.Blocked {
		if now.Before(entry.BlockedUntil) {
			return Status{
				Allowed:      false,
				Blocked:      true,
				BlockedUntil: entry.BlockedUntil,
			}, nil
		}
		// Block lapsed: full reset before counting this failure.
		entry.Blocked = false
		entry.BlockedUntil = time.Time{}
		entry.FailureCount = 0
	}

	if !entry.LastAttempt.IsZero() && now.Sub(entry.LastAttempt) > t.config.Window {
		entry.FailureCount = 0
	}

	entry.FailureCount++
	entry.LastAttempt = now

	if entry.FailureCount >= t.config.MaxAttempts {
		entry.Blocked = true
		entry.BlockedUntil = now.Add(t.config.BlockDuration)

		logging.Warn().
			Str("identifier", identifier).
			Int("failures", entry.FailureCount).
			Time("blocked_until", entry.BlockedUntil).
			Msg("Identifier blocked after repeated failures")

		t.mu.RLock()
		onBlocked := t.onBlocked
		t.mu.RUnlock()
		if onBlocked != nil {
			onBlocked(identifier, entry)
		}

		if err := t.store.SaveEntry(ctx, entry); err != nil {
			return Status{}, fmt.Errorf("save blocked entry: %w", err)
		}
		return Status{
			Allowed:      false,
			Blocked:      true,
			BlockedUntil: entry.BlockedUntil,
		}, nil
	}

	if err := t.store.SaveEntry(ctx, entry); err != nil {
		return Status{}, fmt.Errorf("save entry: %w", err)
	}

	return Status{
		Allowed:           true,
		AttemptsRemaining: t.config.MaxAttempts - entry.FailureCount,
	}, nil
}

// RecordSuccessfulAttempt deletes tracking state entirely. A single
// correct login clears all history for the identifier.
func (t *Tracker) RecordSuccessfulAttempt(ctx context.Context, identifier string) error {
	err := t.store.DeleteEntry(ctx, identifier)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}

// IsBlocked reports whether the identifier is currently blocked. A stale
// block is expired as a side effect of being queried.
func (t *Tracker) IsBlocked(ctx context.Context, identifier string) bool {
	entry, err := t.store.GetEntry(ctx, identifier)
	if err != nil {
		return false
	}

	if !entry.Blocked {
		return false
	}

	if t.now().Before(entry.BlockedUntil) {
		return true
	}

	// Lazy expiry of the stale block.
	entry.Blocked = false
	entry.BlockedUntil = time.Time{}
	entry.FailureCount = 0
	if err := t.store.SaveEntry(ctx, entry); err != nil {
		logging.Error().Err(err).Str("identifier", identifier).Msg("Failed to expire stale block")
	}
	return false
}

// CleanupExpired evicts entries whose window and block have lapsed.
func (t *Tracker) CleanupExpired(ctx context.Context) (int, error) {
	return t.store.CleanupExpired(ctx, t.config.Window)
}

// getOrCreateEntry retrieves an existing entry or creates a new one.
func (t *Tracker) getOrCreateEntry(ctx context.Context, identifier string) (*Entry, error) {
	entry, err := t.store.GetEntry(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrEntryNotFound) {
			return nil, err
		}
		entry = &Entry{Identifier: identifier}
	}
	return entry, nil
}
