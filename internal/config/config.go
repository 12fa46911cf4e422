// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Package config provides layered configuration for Mediadesk.
//
// Configuration is resolved in order of increasing priority:
// struct defaults, then an optional YAML config file, then environment
// variables prefixed with MEDIADESK_ (MEDIADESK_SECURITY_JWT_SECRET
// overrides security.jwt_secret). The bare JWT_SECRET and ENVIRONMENT
// variables are also honored for deployment convenience.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar is the environment variable that overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths lists the paths where config files are searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mediadesk/config.yaml",
}

// Config is the root configuration for the server.
type Config struct {
	Server   ServerConfig   `koanf:"server" json:"server"`
	Security SecurityConfig `koanf:"security" json:"security"`
	Logging  LoggingConfig  `koanf:"logging" json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host" json:"host"`
	Port        int           `koanf:"port" json:"port" validate:"min=1,max=65535"`
	Timeout     time.Duration `koanf:"timeout" json:"timeout"`
	Environment string        `koanf:"environment" json:"environment" validate:"oneof=development production"`
}

// IsProduction reports whether the server runs with production hardening
// (Secure cookies, HSTS).
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// SecurityConfig holds settings for the request-security pipeline.
type SecurityConfig struct {
	// JWTSecret signs tokens issued by the credentials package.
	// Required; there is deliberately no fallback value.
	JWTSecret string `koanf:"jwt_secret" json:"-" validate:"required,min=32"`

	// SessionTimeout is the idle timeout for sessions and the session
	// cookie max-age.
	SessionTimeout time.Duration `koanf:"session_timeout" json:"session_timeout"`

	// AdminUsername and AdminPassword seed the built-in user directory.
	AdminUsername string `koanf:"admin_username" json:"admin_username"`
	AdminPassword string `koanf:"admin_password" json:"-"`

	// AdminIPAllowlist restricts admin paths to these IPs/CIDRs when
	// non-empty. Empty means allow all.
	AdminIPAllowlist []string `koanf:"admin_ip_allowlist" json:"admin_ip_allowlist"`

	// PublicPaths skip session validation and CSRF, never rate limiting.
	PublicPaths []string `koanf:"public_paths" json:"public_paths"`

	// AdminPaths are classified as admin for IP allow-listing and audit
	// categorization.
	AdminPaths []string `koanf:"admin_paths" json:"admin_paths"`

	// Stage toggles for the pipeline.
	RateLimitEnabled   bool `koanf:"rate_limit_enabled" json:"rate_limit_enabled"`
	SessionEnabled     bool `koanf:"session_enabled" json:"session_enabled"`
	CSRFEnabled        bool `koanf:"csrf_enabled" json:"csrf_enabled"`
	IPAllowlistEnabled bool `koanf:"ip_allowlist_enabled" json:"ip_allowlist_enabled"`
	AuditEnabled       bool `koanf:"audit_enabled" json:"audit_enabled"`

	// AuditMaxEntries caps the in-memory audit log (ring buffer).
	AuditMaxEntries int `koanf:"audit_max_entries" json:"audit_max_entries" validate:"min=1"`

	// TwoFactorCodeLength is the digit count of issued one-time codes.
	TwoFactorCodeLength int `koanf:"two_factor_code_length" json:"two_factor_code_length" validate:"min=4,max=10"`

	// TwoFactorCodeTTL is how long an issued code stays valid.
	TwoFactorCodeTTL time.Duration `koanf:"two_factor_code_ttl" json:"two_factor_code_ttl"`

	// TwoFactorResendCooldown throttles code regeneration per user.
	TwoFactorResendCooldown time.Duration `koanf:"two_factor_resend_cooldown" json:"two_factor_resend_cooldown"`

	// CleanupInterval is the period of all background sweeps.
	CleanupInterval time.Duration `koanf:"cleanup_interval" json:"cleanup_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" json:"format" validate:"oneof=json console"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3000,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Security: SecurityConfig{
			JWTSecret:      "",
			SessionTimeout: time.Hour,
			PublicPaths: []string{
				"/api/auth/login",
				"/api/auth/2fa",
				"/login",
				"/health",
				"/metrics",
				"/static",
			},
			AdminPaths: []string{
				"/api/admin",
				"/api/dashboard",
			},
			RateLimitEnabled:        true,
			SessionEnabled:          true,
			CSRFEnabled:             true,
			IPAllowlistEnabled:      false,
			AuditEnabled:            true,
			AuditMaxEntries:         10000,
			TwoFactorCodeLength:     6,
			TwoFactorCodeTTL:        10 * time.Minute,
			TwoFactorResendCooldown: time.Minute,
			CleanupInterval:         5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load resolves configuration from defaults, the config file (if any),
// and environment variables, then validates the result.
func Load() (*Config, error) {
	return LoadFromFile(resolveConfigPath())
}

// LoadFromFile loads configuration using the given config file path.
// An empty path skips the file layer.
func LoadFromFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("MEDIADESK_", ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyBareEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveConfigPath returns the first existing config file path, or "".
func resolveConfigPath() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envKeyTransform maps MEDIADESK_SECURITY_JWT_SECRET to security.jwt_secret.
// Only the first underscore separates the section from the key; the rest
// of the key keeps its underscores.
func envKeyTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "MEDIADESK_"))
	return strings.Replace(s, "_", ".", 1)
}

// applyBareEnvOverrides honors the conventional unprefixed variables.
func applyBareEnvOverrides(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Server.Environment = v
	}
}

// Validate checks the configuration for errors. A missing or short JWT
// secret is a hard error, never silently defaulted.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, ve := range verrs {
				if ve.Namespace() == "Config.Security.JWTSecret" {
					return fmt.Errorf("configuration error: JWT_SECRET is required (min 32 characters)")
				}
			}
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
