// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Package twofactor issues short-lived numeric one-time codes with
// bounded verification attempts and a resend cooldown.
//
// Per user the state machine is NONE -> ISSUED -> {VERIFIED | EXPIRED |
// EXHAUSTED}, with NONE reachable again after expiry or invalidation.
// The resend cooldown outlives the code's own lifetime: a fresh code
// cannot be requested inside the cooldown even if the previous code was
// consumed or invalidated.
package twofactor

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/mediadesk/internal/credentials"
	"github.com/tomtom215/mediadesk/internal/logging"
)

// Verification errors. Each carries a user-facing message; none are
// fatal to the process.
var (
	// ErrCodeNotFound is returned when no active code exists for the user.
	ErrCodeNotFound = errors.New("verification code not found")

	// ErrCodeExpired is returned when the code's validity window has passed.
	ErrCodeExpired = errors.New("verification code expired")

	// ErrCodeExhausted is returned when the attempt limit is reached.
	ErrCodeExhausted = errors.New("too many verification attempts")

	// ErrCodeMismatch is returned when the submitted code is wrong.
	ErrCodeMismatch = errors.New("verification code does not match")

	// ErrResendCooldown is returned when a new code is requested too soon.
	ErrResendCooldown = errors.New("verification code requested too soon")
)

// Config holds code issuance parameters.
type Config struct {
	// CodeLength is the digit count of issued codes.
	CodeLength int

	// CodeTTL is how long an issued code stays valid.
	CodeTTL time.Duration

	// MaxAttempts bounds verification attempts per code.
	MaxAttempts int

	// ResendCooldown throttles regeneration per user, independent of
	// the code's own expiry.
	ResendCooldown time.Duration
}

// DefaultConfig returns the production defaults: 6-digit codes valid for
// 10 minutes, 3 attempts, 1-minute resend cooldown.
func DefaultConfig() Config {
	return Config{
		CodeLength:     6,
		CodeTTL:        10 * time.Minute,
		MaxAttempts:    3,
		ResendCooldown: time.Minute,
	}
}

// code is the per-user pending verification state.
type code struct {
	value     string
	userID    string
	email     string
	createdAt time.Time
	expiresAt time.Time
	attempts  int
	verified  bool
}

// Issued describes a freshly generated code.
type Issued struct {
	Code      string
	ExpiresAt time.Time
}

// Status is a non-mutating view of a user's verification state.
type Status struct {
	Exists        bool
	Verified      bool
	ExpiresAt     time.Time
	AttemptsUsed  int
	MaxAttempts   int
	CooldownUntil time.Time
}

// Manager owns the per-user code and cooldown state.
type Manager struct {
	mu        sync.Mutex
	codes     map[string]*code
	cooldowns map[string]time.Time
	config    Config

	// now is injectable for expiry tests.
	now func() time.Time
}

// NewManager creates a manager with the given configuration.
func NewManager(config Config) *Manager {
	if config.CodeLength <= 0 {
		config = DefaultConfig()
	}
	return &Manager{
		codes:     make(map[string]*code),
		cooldowns: make(map[string]time.Time),
		config:    config,
		now:       time.Now,
	}
}

// GenerateCode issues a new code for the user, overwriting any previous
// one. It refuses with ErrResendCooldown (and the cooldown expiry) while
// the resend cooldown from the previous issuance is active, regardless
// of whether that code has been consumed.
func (m *Manager) GenerateCode(userID, email string) (Issued, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if until, ok := m.cooldowns[userID]; ok && now.Before(until) {
		return Issued{}, until, ErrResendCooldown
	}

	value, err := credentials.GenerateNumericCode(m.config.CodeLength)
	if err != nil {
		return Issued{}, time.Time{}, err
	}

	expiresAt := now.Add(m.config.CodeTTL)
	m.codes[userID] = &code{
		value:     value,
		userID:    userID,
		email:     email,
		createdAt: now,
		expiresAt: expiresAt,
	}
	m.cooldowns[userID] = now.Add(m.config.ResendCooldown)

	logging.Debug().
		Str("user_id", logging.SanitizeUserID(userID)).
		Time("expires_at", expiresAt).
		Msg("One-time code issued")

	return Issued{Code: value, ExpiresAt: expiresAt}, time.Time{}, nil
}

// VerifyResult reports the outcome of a verification attempt.
type VerifyResult struct {
	Verified          bool
	AttemptsRemaining int
}

// VerifyCode checks a submitted code. An expired code is deleted and
// reported as expired; the attempt that reaches the limit reports
// exhaustion (not a generic mismatch) and deletes the code; an already
// verified code short-circuits to success so callers can re-check
// verification state within the validity window.
func (m *Manager) VerifyCode(userID, input string) (VerifyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.codes[userID]
	if !ok {
		return VerifyResult{}, ErrCodeNotFound
	}

	now := m.now()

	if now.After(c.expiresAt) {
		delete(m.codes, userID)
		return VerifyResult{}, ErrCodeExpired
	}

	if c.verified {
		return VerifyResult{Verified: true}, nil
	}

	c.attempts++

	if codesEqual(c.value, input) {
		c.verified = true
		return VerifyResult{Verified: true}, nil
	}

	if c.attempts >= m.config.MaxAttempts {
		delete(m.codes, userID)
		return VerifyResult{}, ErrCodeExhausted
	}

	return VerifyResult{
		AttemptsRemaining: m.config.MaxAttempts - c.attempts,
	}, ErrCodeMismatch
}

// codesEqual compares codes in constant time. The length check comes
// first because the constant-time primitive requires equal-length
// buffers and the input length is attacker-controlled; a length mismatch
// is simply a wrong code.
func codesEqual(expected, input string) bool {
	if len(expected) != len(input) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(input)) == 1
}

// IsCodeVerified reports whether the user's code has been verified and
// is still within its validity window.
func (m *Manager) IsCodeVerified(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.codes[userID]
	if !ok {
		return false
	}
	if m.now().After(c.expiresAt) {
		delete(m.codes, userID)
		return false
	}
	return c.verified
}

// InvalidateCode removes the user's active code. Returns false if no
// code existed. The resend cooldown is left in place.
func (m *Manager) InvalidateCode(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.codes[userID]; !ok {
		return false
	}
	delete(m.codes, userID)
	return true
}

// GetCodeStatus returns the user's verification state without mutating
// the attempt count.
func (m *Manager) GetCodeStatus(userID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{MaxAttempts: m.config.MaxAttempts}
	if until, ok := m.cooldowns[userID]; ok && m.now().Before(until) {
		status.CooldownUntil = until
	}

	c, ok := m.codes[userID]
	if !ok {
		return status
	}

	status.Exists = true
	status.Verified = c.verified
	status.ExpiresAt = c.expiresAt
	status.AttemptsUsed = c.attempts
	return status
}

// CleanupExpired purges expired codes and expired cooldowns
// independently of each other.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count := 0
	for userID, c := range m.codes {
		if now.After(c.expiresAt) {
			delete(m.codes, userID)
			count++
		}
	}
	for userID, until := range m.cooldowns {
		if now.After(until) {
			delete(m.cooldowns, userID)
		}
	}
	return count
}
