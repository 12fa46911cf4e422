// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with a secondary index from user ID
// to session IDs to support destroy-all-for-user.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

// Create stores a new session.
func (s *MemoryStore) Create(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = copySession(session)

	ids, ok := s.byUser[session.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[session.UserID] = ids
	}
	ids[session.ID] = struct{}{}
	return nil
}

// Get retrieves a session by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(session), nil
}

// Delete removes a session by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id), nil
}

// deleteLocked removes a session and its index entry (mu must be held).
func (s *MemoryStore) deleteLocked(id string) bool {
	session, ok := s.sessions[id]
	if !ok {
		return false
	}

	delete(s.sessions, id)
	if ids, ok := s.byUser[session.UserID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, session.UserID)
		}
	}
	return true
}

// DeleteByUserID removes every session in the user's index atomically.
func (s *MemoryStore) DeleteByUserID(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id := range s.byUser[userID] {
		delete(s.sessions, id)
		count++
	}
	delete(s.byUser, userID)
	return count, nil
}

// GetByUserID returns all sessions for a user.
func (s *MemoryStore) GetByUserID(_ context.Context, userID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*Session
	for id := range s.byUser[userID] {
		if session, ok := s.sessions[id]; ok {
			sessions = append(sessions, copySession(session))
		}
	}
	return sessions, nil
}

// Touch advances the session's last-activity timestamp. Last-activity is
// strictly monotonic; an older timestamp is ignored.
func (s *MemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if at.After(session.LastActivity) {
		session.LastActivity = at
	}
	return nil
}

// CleanupExpired removes sessions idle longer than maxAge.
func (s *MemoryStore) CleanupExpired(_ context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for id, session := range s.sessions {
		if session.IdleExpired(maxAge, now) {
			s.deleteLocked(id)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// copySession creates a copy of a session to prevent external mutation.
func copySession(session *Session) *Session {
	copied := *session
	return &copied
}
