// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Package credentials provides password hashing, secure token generation,
// JWT issuance/verification, and client fingerprint extraction. All
// functions here are stateless; shared state lives in the manager
// packages that consume them.
package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is deliberately above the library default so hashing stays
// slow enough to resist offline attacks.
const bcryptCost = 12

// HashPassword hashes a password with bcrypt. Password strength is not
// validated here; any non-empty input is accepted as-is (product
// decision).
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a password against a bcrypt hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateSessionID returns a cryptographically secure hex-encoded
// session identifier with 256 bits of entropy.
func GenerateSessionID() (string, error) {
	return randomHex(32)
}

// GenerateCSRFToken returns a cryptographically secure hex-encoded CSRF
// token with 256 bits of entropy.
func GenerateCSRFToken() (string, error) {
	return randomHex(32)
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateNumericCode returns a cryptographically secure numeric string
// of the given length, used for one-time codes.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive")
	}

	var sb strings.Builder
	sb.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("read random digit: %w", err)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

// ClientInfo is the per-request client fingerprint material.
type ClientInfo struct {
	IP        string
	UserAgent string
	Origin    string
	Referer   string
}

// ExtractClientInfo resolves the client's IP and identifying headers.
// The IP is taken from the first entry of a comma-separated
// X-Forwarded-For chain, then X-Real-IP, then the connection's remote
// address, then "unknown".
func ExtractClientInfo(r *http.Request) ClientInfo {
	return ClientInfo{
		IP:        resolveClientIP(r),
		UserAgent: r.UserAgent(),
		Origin:    r.Header.Get("Origin"),
		Referer:   r.Header.Get("Referer"),
	}
}

// resolveClientIP extracts the client IP from proxy headers or the
// connection.
func resolveClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}

	return "unknown"
}
