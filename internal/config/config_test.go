// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestDefaultsRejectedWithoutSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadFromFile("")
	if err == nil {
		t.Fatal("configuration without JWT secret accepted")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("error = %v, want JWT_SECRET mention", err)
	}
}

func TestBareEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Security.JWTSecret != testSecret {
		t.Error("bare JWT_SECRET not applied")
	}
	if !cfg.Server.IsProduction() {
		t.Error("bare ENVIRONMENT not applied")
	}
}

func TestPrefixedEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("MEDIADESK_SERVER_PORT", "8080")
	t.Setenv("MEDIADESK_LOGGING_LEVEL", "debug")

	cfg, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
}

func TestConfigFileLayer(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
security:
  session_timeout: 30m
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Security.SessionTimeout != 30*time.Minute {
		t.Errorf("session timeout = %v, want 30m", cfg.Security.SessionTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.Security.TwoFactorCodeLength != 6 {
		t.Errorf("code length = %d, want default 6", cfg.Security.TwoFactorCodeLength)
	}
}

func TestShortSecretRejected(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")

	if _, err := LoadFromFile(""); err == nil {
		t.Fatal("short JWT secret accepted")
	}
}

func TestDefaultPublicPaths(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	want := map[string]bool{"/api/auth/login": true, "/health": true, "/metrics": true}
	found := 0
	for _, p := range cfg.Security.PublicPaths {
		if want[p] {
			found++
		}
	}
	if found != len(want) {
		t.Errorf("public paths = %v, missing expected defaults", cfg.Security.PublicPaths)
	}
}
