// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package credentials

import (
	"net/http/httptest"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("correct horse battery staple", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordRejectsEmptyOnly(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("empty password accepted")
	}
	// No strength validation: a one-character password is accepted.
	if _, err := HashPassword("x"); err != nil {
		t.Errorf("weak password rejected: %v", err)
	}
}

func TestGenerateSessionIDEntropy(t *testing.T) {
	a, err := GenerateSessionID()
	if err != nil {
		t.Fatalf("GenerateSessionID: %v", err)
	}
	b, err := GenerateSessionID()
	if err != nil {
		t.Fatalf("GenerateSessionID: %v", err)
	}

	if len(a) != 64 {
		t.Errorf("session ID length = %d, want 64 hex chars (256 bits)", len(a))
	}
	if a == b {
		t.Error("two session IDs collided")
	}
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	if err != nil {
		t.Fatalf("GenerateNumericCode: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Errorf("non-digit %q in code %q", c, code)
		}
	}

	if _, err := GenerateNumericCode(0); err == nil {
		t.Error("zero length accepted")
	}
}

func TestExtractClientInfoIPResolution(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"forwarded chain", "203.0.113.9, 10.0.0.1", "", "10.0.0.2:80", "203.0.113.9"},
		{"real ip fallback", "", "203.0.113.7", "10.0.0.2:80", "203.0.113.7"},
		{"remote addr fallback", "", "", "10.0.0.2:80", "10.0.0.2"},
		{"no source", "", "", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := ExtractClientInfo(r).IP; got != tt.want {
				t.Errorf("IP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIPAllowlistEmptyAllowsAll(t *testing.T) {
	list, err := NewIPAllowlist(nil)
	if err != nil {
		t.Fatalf("NewIPAllowlist: %v", err)
	}
	if !list.Allowed("203.0.113.9") {
		t.Error("empty allowlist denied an IP")
	}
	if !list.Allowed("garbage") {
		t.Error("empty allowlist denied unparseable input")
	}
}

func TestIPAllowlistExactAndCIDR(t *testing.T) {
	list, err := NewIPAllowlist([]string{"203.0.113.9", "10.1.0.0/16"})
	if err != nil {
		t.Fatalf("NewIPAllowlist: %v", err)
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"203.0.113.9", true},
		{"203.0.113.10", false},
		{"10.1.200.7", true},
		{"10.2.0.1", false},
		// String-prefix matching would wrongly allow this.
		{"10.10.0.1", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := list.Allowed(tt.ip); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestIPAllowlistRejectsBadEntries(t *testing.T) {
	if _, err := NewIPAllowlist([]string{"not-an-ip"}); err == nil {
		t.Error("bad address accepted")
	}
	if _, err := NewIPAllowlist([]string{"10.0.0.0/99"}); err == nil {
		t.Error("bad CIDR accepted")
	}
}
