// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Package session manages server-side session records bound to a client
// fingerprint.
//
// A session is bound to the (IP address, user-agent) pair captured at
// creation and is never re-bindable: any subsequent request presenting
// the session ID with a different fingerprint destroys the session as a
// hijack signal. Sessions also expire after an idle timeout; expiry is
// enforced lazily on access and by a periodic sweep.
package session

import (
	"context"
	"errors"
	"time"
)

// Session-related errors.
var (
	// ErrSessionNotFound is returned when a session is not in the store.
	ErrSessionNotFound = errors.New("session not found")
)

// LoginMethod records how a session was established.
type LoginMethod string

const (
	// LoginMethodPassword marks a password-only login.
	LoginMethodPassword LoginMethod = "password"

	// LoginMethodTwoFactor marks a login completed with a one-time code.
	LoginMethodTwoFactor LoginMethod = "two_factor"
)

// Session represents one authenticated client binding.
type Session struct {
	// ID is the opaque, unguessable session identifier.
	ID string

	// UserID is the authenticated user's unique identifier.
	UserID string

	// Email is the authenticated user's email address.
	Email string

	// Role is the user's role for authorization.
	Role string

	// CSRFToken is the per-session CSRF token.
	CSRFToken string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// LastActivity advances on every validated request.
	LastActivity time.Time

	// IPAddress and UserAgent form the binding fingerprint captured at
	// creation time.
	IPAddress string
	UserAgent string

	// TwoFactorVerified is true when a one-time code confirmed the login.
	TwoFactorVerified bool

	// LoginMethod records how the session was established.
	LoginMethod LoginMethod
}

// IdleExpired reports whether the session's idle timeout has passed.
func (s *Session) IdleExpired(maxAge time.Duration, now time.Time) bool {
	return now.After(s.LastActivity.Add(maxAge))
}

// Store defines the interface for session storage backends. The bundled
// MemoryStore is process-local; a shared external store can replace it
// behind this interface for multi-instance deployments.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID. Returns ErrSessionNotFound if absent.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session by ID. Reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteByUserID removes all sessions for a user atomically,
	// returning the count removed.
	DeleteByUserID(ctx context.Context, userID string) (int, error)

	// GetByUserID returns all sessions for a user.
	GetByUserID(ctx context.Context, userID string) ([]*Session, error)

	// Touch advances the session's last-activity timestamp.
	Touch(ctx context.Context, id string, at time.Time) error

	// CleanupExpired removes sessions idle longer than maxAge,
	// returning the count removed.
	CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error)
}
