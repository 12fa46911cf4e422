// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package session

import (
	"context"
	"testing"
	"time"
)

func storeSession(t *testing.T, s *MemoryStore, id, userID string) *Session {
	t.Helper()
	sess := &Session{
		ID:           id,
		UserID:       userID,
		Email:        userID + "@example.com",
		Role:         "editor",
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		IPAddress:    "10.0.0.1",
		UserAgent:    "test-agent",
	}
	if err := s.Create(context.Background(), sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sess
}

func TestCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	storeSession(t, s, "s1", "u1")

	got, err := s.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", got.UserID)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "missing"); err != ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	storeSession(t, s, "s1", "u1")

	got, _ := s.Get(context.Background(), "s1")
	got.Role = "admin"

	again, _ := s.Get(context.Background(), "s1")
	if again.Role != "editor" {
		t.Errorf("stored session mutated through returned copy: role = %q", again.Role)
	}
}

func TestDeleteMaintainsUserIndex(t *testing.T) {
	s := NewMemoryStore()
	storeSession(t, s, "s1", "u1")
	storeSession(t, s, "s2", "u1")

	existed, err := s.Delete(context.Background(), "s1")
	if err != nil || !existed {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", existed, err)
	}

	sessions, err := s.GetByUserID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetByUserID: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s2" {
		t.Errorf("sessions after delete = %v, want only s2", sessions)
	}
}

func TestDeleteByUserIDRemovesAll(t *testing.T) {
	s := NewMemoryStore()
	storeSession(t, s, "s1", "u1")
	storeSession(t, s, "s2", "u1")
	storeSession(t, s, "s3", "u2")

	count, err := s.DeleteByUserID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("DeleteByUserID: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
	if _, err := s.Get(context.Background(), "s3"); err != nil {
		t.Error("unrelated user's session removed")
	}
}

func TestTouchIsMonotonic(t *testing.T) {
	s := NewMemoryStore()
	sess := storeSession(t, s, "s1", "u1")

	later := sess.LastActivity.Add(time.Minute)
	if err := s.Touch(context.Background(), "s1", later); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	// An older timestamp must not move last-activity backwards.
	if err := s.Touch(context.Background(), "s1", sess.LastActivity); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	got, _ := s.Get(context.Background(), "s1")
	if !got.LastActivity.Equal(later) {
		t.Errorf("LastActivity = %v, want %v", got.LastActivity, later)
	}
}

func TestCleanupExpiredRemovesIdleSessions(t *testing.T) {
	s := NewMemoryStore()
	stale := storeSession(t, s, "stale", "u1")
	stale.LastActivity = time.Now().Add(-2 * time.Hour)
	if err := s.Create(context.Background(), stale); err != nil {
		t.Fatalf("Create: %v", err)
	}
	storeSession(t, s, "fresh", "u2")

	count, err := s.CleanupExpired(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if count != 1 {
		t.Errorf("evicted = %d, want 1", count)
	}
	if _, err := s.Get(context.Background(), "fresh"); err != nil {
		t.Error("fresh session evicted")
	}
}
