// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package api

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/mediadesk/internal/credentials"
)

// User is one entry in the in-memory user directory. The production
// user store lives in the CMS host application; this directory is the
// boundary the auth handlers need.
type User struct {
	ID               string
	Username         string
	Email            string
	Role             string
	PasswordHash     string
	TwoFactorEnabled bool
}

// Directory is a small read-mostly user directory seeded at startup.
type Directory struct {
	mu      sync.RWMutex
	byLogin map[string]*User
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{byLogin: make(map[string]*User)}
}

// SeedAdmin adds the built-in admin account from configuration. The
// password is hashed before storage; the plaintext is never retained.
func (d *Directory) SeedAdmin(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("admin credentials not configured")
	}

	hash, err := credentials.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	d.Add(&User{
		ID:               uuid.New().String(),
		Username:         username,
		Email:            username + "@mediadesk.local",
		Role:             "admin",
		PasswordHash:     hash,
		TwoFactorEnabled: true,
	})
	return nil
}

// Add registers a user, indexed by lowercased username and email.
func (d *Directory) Add(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byLogin[strings.ToLower(u.Username)] = u
	if u.Email != "" {
		d.byLogin[strings.ToLower(u.Email)] = u
	}
}

// Lookup finds a user by username or email, case-insensitive.
func (d *Directory) Lookup(login string) (*User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byLogin[strings.ToLower(login)]
	return u, ok
}

// Authenticate verifies the login and password. The bcrypt comparison
// dominates the cost, so missing users take a different code path;
// callers present a uniform error either way.
func (d *Directory) Authenticate(login, password string) (*User, bool) {
	u, ok := d.Lookup(login)
	if !ok {
		return nil, false
	}
	if !credentials.VerifyPassword(password, u.PasswordHash) {
		return nil, false
	}
	return u, true
}
