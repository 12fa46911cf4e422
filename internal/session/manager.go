// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/mediadesk/internal/credentials"
	"github.com/tomtom215/mediadesk/internal/logging"
)

// CookieName is the session cookie name.
const CookieName = "session-id"

// Validation failure reasons. These are retained internally for audit
// logs; the HTTP surface stays uniform.
const (
	ReasonNotFound   = "Session not found or expired"
	ReasonIPMismatch = "IP address mismatch"
	ReasonUAMismatch = "User agent mismatch"
)

// ManagerConfig holds session manager parameters.
type ManagerConfig struct {
	// MaxAge is the idle timeout; it also sets the cookie max-age.
	MaxAge time.Duration

	// Production gates the Secure cookie attribute.
	Production bool
}

// DefaultManagerConfig returns the production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxAge: time.Hour,
	}
}

// ValidationResult reports the outcome of validating a session against a
// request.
type ValidationResult struct {
	Valid   bool
	Session *Session
	Reason  string
}

// Manager creates, validates, refreshes, and destroys sessions.
type Manager struct {
	store    Store
	config   ManagerConfig
	security *logging.SecurityLogger

	// now is injectable for idle-expiry tests.
	now func() time.Time
}

// NewManager creates a session manager over the given store.
func NewManager(store Store, config ManagerConfig) *Manager {
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultManagerConfig().MaxAge
	}
	return &Manager{
		store:    store,
		config:   config,
		security: logging.NewSecurityLogger(),
		now:      time.Now,
	}
}

// MaxAge returns the configured idle timeout.
func (m *Manager) MaxAge() time.Duration {
	return m.config.MaxAge
}

// CreateSession creates a session bound to the request's client
// fingerprint. The login method is derived from twoFactorVerified.
func (m *Manager) CreateSession(ctx context.Context, userID, email, role string, r *http.Request, twoFactorVerified bool) (*Session, error) {
	id, err := credentials.GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	csrfToken, err := credentials.GenerateCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	info := credentials.ExtractClientInfo(r)
	method := LoginMethodPassword
	if twoFactorVerified {
		method = LoginMethodTwoFactor
	}

	now := m.now()
	session := &Session{
		ID:                id,
		UserID:            userID,
		Email:             email,
		Role:              role,
		CSRFToken:         csrfToken,
		CreatedAt:         now,
		LastActivity:      now,
		IPAddress:         info.IP,
		UserAgent:         info.UserAgent,
		TwoFactorVerified: twoFactorVerified,
		LoginMethod:       method,
	}

	if err := m.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	m.security.LogEvent(&logging.SecurityEvent{
		Event:     "session_created",
		UserID:    userID,
		Email:     email,
		SessionID: id,
		IPAddress: info.IP,
		UserAgent: info.UserAgent,
		Success:   true,
	})

	return session, nil
}

// GetSession returns the session by ID, or nil if it does not exist or
// its idle timeout has passed. An expired session is evicted lazily.
func (m *Manager) GetSession(ctx context.Context, id string) (*Session, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.IdleExpired(m.config.MaxAge, m.now()) {
		if _, err := m.store.Delete(ctx, id); err != nil {
			logging.Error().Err(err).Msg("Failed to evict expired session")
		}
		return nil, nil
	}

	return session, nil
}

// ValidateSession is the canonical entry point used by the middleware.
// Checks run in order: existence/expiry, IP match, user-agent match; a
// fingerprint mismatch destroys the session immediately (no grace state)
// and the reason is reported for audit. On success the session's
// last-activity timestamp advances.
func (m *Manager) ValidateSession(ctx context.Context, id string, r *http.Request) ValidationResult {
	session, err := m.GetSession(ctx, id)
	if err != nil || session == nil {
		return ValidationResult{Reason: ReasonNotFound}
	}

	info := credentials.ExtractClientInfo(r)

	if session.IPAddress != info.IP {
		m.destroyHijacked(ctx, session, info, ReasonIPMismatch)
		return ValidationResult{Reason: ReasonIPMismatch}
	}

	if session.UserAgent != info.UserAgent {
		m.destroyHijacked(ctx, session, info, ReasonUAMismatch)
		return ValidationResult{Reason: ReasonUAMismatch}
	}

	now := m.now()
	if err := m.store.Touch(ctx, id, now); err != nil && !errors.Is(err, ErrSessionNotFound) {
		logging.Error().Err(err).Msg("Failed to touch session")
	}
	session.LastActivity = now

	return ValidationResult{Valid: true, Session: session}
}

// destroyHijacked destroys a session whose fingerprint no longer matches
// and logs the hijack signal.
func (m *Manager) destroyHijacked(ctx context.Context, session *Session, info credentials.ClientInfo, reason string) {
	if _, err := m.store.Delete(ctx, session.ID); err != nil {
		logging.Error().Err(err).Msg("Failed to destroy hijacked session")
	}

	m.security.LogEvent(&logging.SecurityEvent{
		Event:     "session_hijack",
		UserID:    session.UserID,
		SessionID: session.ID,
		IPAddress: info.IP,
		UserAgent: info.UserAgent,
		Success:   false,
		Error:     reason,
		Details: map[string]string{
			"bound_ip": session.IPAddress,
		},
	})
}

// DestroySession removes a session. Reports whether it existed.
func (m *Manager) DestroySession(ctx context.Context, id string) bool {
	existed, err := m.store.Delete(ctx, id)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to destroy session")
		return false
	}
	return existed
}

// DestroyAllUserSessions removes every session for the user ("log out
// everywhere"), returning the count removed.
func (m *Manager) DestroyAllUserSessions(ctx context.Context, userID string) int {
	count, err := m.store.DeleteByUserID(ctx, userID)
	if err != nil {
		logging.Error().Err(err).Str("user_id", logging.SanitizeUserID(userID)).Msg("Failed to destroy user sessions")
		return 0
	}

	if count > 0 {
		m.security.LogEvent(&logging.SecurityEvent{
			Event:   "logout_all",
			UserID:  userID,
			Success: true,
			Details: map[string]string{
				"sessions_destroyed": fmt.Sprintf("%d", count),
			},
		})
	}
	return count
}

// CleanupExpired removes sessions whose idle timeout has lapsed,
// independent of access-triggered lazy eviction.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	return m.store.CleanupExpired(ctx, m.config.MaxAge)
}

// SetSessionCookie sets the session cookie: HttpOnly always, Secure in
// production, SameSite=Strict, expiry matching the idle timeout.
func (m *Manager) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(m.config.MaxAge.Seconds()),
		Secure:   m.config.Production,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie.
func (m *Manager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   m.config.Production,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
