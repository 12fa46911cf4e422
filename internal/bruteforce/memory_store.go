// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package bruteforce

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage. State is
// process-local and lost on restart; multi-instance deployments need a
// shared store behind the same interface.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates a new in-memory tracker store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// GetEntry retrieves an entry by identifier.
func (s *MemoryStore) GetEntry(_ context.Context, identifier string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[identifier]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return copyEntry(entry), nil
}

// SaveEntry persists an entry.
func (s *MemoryStore) SaveEntry(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Identifier] = copyEntry(entry)
	return nil
}

// DeleteEntry removes an entry.
func (s *MemoryStore) DeleteEntry(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[identifier]; !ok {
		return ErrEntryNotFound
	}
	delete(s.entries, identifier)
	return nil
}

// CleanupExpired removes entries whose window and block have both lapsed.
func (s *MemoryStore) CleanupExpired(_ context.Context, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for identifier, entry := range s.entries {
		windowLapsed := now.Sub(entry.LastAttempt) > window
		blockLapsed := !entry.Blocked || now.After(entry.BlockedUntil)
		if windowLapsed && blockLapsed {
			delete(s.entries, identifier)
			count++
		}
	}
	return count, nil
}

// copyEntry creates a copy of an entry.
func copyEntry(entry *Entry) *Entry {
	copied := *entry
	return &copied
}
