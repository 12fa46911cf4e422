// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package credentials

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/mediadesk/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokenManager(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(&config.SecurityConfig{JWTSecret: testSecret})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return m
}

func TestTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager(&config.SecurityConfig{}); err == nil {
		t.Fatal("missing secret accepted")
	}
}

func TestCreateAndVerifyToken(t *testing.T) {
	m := newTestTokenManager(t)

	token, err := m.CreateToken("u1", "u1@example.com", "admin", time.Hour)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "u1@example.com" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("jti claim empty")
	}
}

func TestVerifyFailuresAreUniform(t *testing.T) {
	m := newTestTokenManager(t)

	expired, err := m.CreateToken("u1", "u1@example.com", "admin", -time.Minute)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	other, _ := NewTokenManager(&config.SecurityConfig{JWTSecret: "ffffffffffffffffffffffffffffffff"})
	tampered, err := other.CreateToken("u1", "u1@example.com", "admin", time.Hour)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	// Expired, tampered, and garbage all yield the same error so the
	// response cannot be used as an oracle.
	for _, token := range []string{expired, tampered, "not.a.token"} {
		if _, err := m.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyToken(%.12s...) = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestTokenJTIsAreUnique(t *testing.T) {
	m := newTestTokenManager(t)

	t1, _ := m.CreateToken("u1", "u1@example.com", "admin", time.Hour)
	t2, _ := m.CreateToken("u1", "u1@example.com", "admin", time.Hour)

	c1, err := m.VerifyToken(t1)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	c2, err := m.VerifyToken(t2)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if c1.ID == c2.ID {
		t.Error("two tokens share a jti")
	}
}
