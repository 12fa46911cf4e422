// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Command server runs the Mediadesk security gateway: the request
// pipeline, the authentication boundary, and the audit admin surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/tomtom215/mediadesk/internal/api"
	"github.com/tomtom215/mediadesk/internal/audit"
	"github.com/tomtom215/mediadesk/internal/bruteforce"
	"github.com/tomtom215/mediadesk/internal/config"
	"github.com/tomtom215/mediadesk/internal/credentials"
	"github.com/tomtom215/mediadesk/internal/logging"
	"github.com/tomtom215/mediadesk/internal/middleware"
	"github.com/tomtom215/mediadesk/internal/ratelimit"
	"github.com/tomtom215/mediadesk/internal/session"
	"github.com/tomtom215/mediadesk/internal/supervisor"
	"github.com/tomtom215/mediadesk/internal/twofactor"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logFormat := cfg.Logging.Format
	if !cfg.Server.IsProduction() {
		logFormat = "console"
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: logFormat,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("Starting Mediadesk")

	// Credential and token services.
	tokens, err := credentials.NewTokenManager(&cfg.Security)
	if err != nil {
		return err
	}
	allowlist, err := credentials.NewIPAllowlist(cfg.Security.AdminIPAllowlist)
	if err != nil {
		return fmt.Errorf("parse admin IP allowlist: %w", err)
	}

	// Stateful security services, all process-local.
	auditLog := audit.NewLogger(audit.Config{
		MaxEntries:            cfg.Security.AuditMaxEntries,
		AlertWindow:           audit.DefaultConfig().AlertWindow,
		FailedLoginThreshold:  audit.DefaultConfig().FailedLoginThreshold,
		HighSeverityThreshold: audit.DefaultConfig().HighSeverityThreshold,
	})

	sessions := session.NewManager(session.NewMemoryStore(), session.ManagerConfig{
		MaxAge:     cfg.Security.SessionTimeout,
		Production: cfg.Server.IsProduction(),
	})

	tracker := bruteforce.NewTracker(bruteforce.NewMemoryStore(), bruteforce.DefaultConfig())
	tracker.SetOnBlocked(func(identifier string, entry *bruteforce.Entry) {
		auditLog.LogSecurityEvent(audit.EventBruteForceDetected, nil, audit.Options{
			ErrorMessage: "Identifier locked out after repeated failures",
			Metadata: map[string]interface{}{
				"identifier":    logging.SanitizeEmail(identifier),
				"blocked_until": entry.BlockedUntil,
			},
		})
	})

	twoFactor := twofactor.NewManager(twofactor.Config{
		CodeLength:     cfg.Security.TwoFactorCodeLength,
		CodeTTL:        cfg.Security.TwoFactorCodeTTL,
		MaxAttempts:    3,
		ResendCooldown: cfg.Security.TwoFactorResendCooldown,
	})

	loginLimiter := ratelimit.New("login", ratelimit.LoginConfig())
	apiLimiter := ratelimit.New("api", ratelimit.APIConfig())

	users := api.NewDirectory()
	if err := users.SeedAdmin(cfg.Security.AdminUsername, cfg.Security.AdminPassword); err != nil {
		return err
	}

	// Pipeline and HTTP surface.
	pipeline := middleware.NewSecurityPipeline(
		middleware.PipelineConfig{
			PublicPaths:        cfg.Security.PublicPaths,
			AdminPaths:         cfg.Security.AdminPaths,
			RateLimitEnabled:   cfg.Security.RateLimitEnabled,
			SessionEnabled:     cfg.Security.SessionEnabled,
			CSRFEnabled:        cfg.Security.CSRFEnabled,
			IPAllowlistEnabled: cfg.Security.IPAllowlistEnabled,
			AuditEnabled:       cfg.Security.AuditEnabled,
		},
		sessions, loginLimiter, apiLimiter, auditLog, allowlist,
	)

	authHandlers := api.NewAuthHandlers(users, sessions, tracker, twoFactor, loginLimiter, auditLog, tokens)
	auditHandlers := api.NewAuditHandlers(auditLog)
	router := api.NewRouter(authHandlers, auditHandlers, pipeline, cfg.Server.IsProduction())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Supervisor tree: cleanup sweeps and the HTTP server.
	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	interval := cfg.Security.CleanupInterval

	tree.AddMaintenanceService(supervisor.NewSweepService("sessions", interval,
		func(ctx context.Context) (int, error) { return sessions.CleanupExpired(ctx) }))
	tree.AddMaintenanceService(supervisor.NewSweepService("bruteforce", interval,
		func(ctx context.Context) (int, error) { return tracker.CleanupExpired(ctx) }))
	tree.AddMaintenanceService(supervisor.NewSweepService("twofactor", interval,
		func(_ context.Context) (int, error) { return twoFactor.CleanupExpired(), nil }))
	tree.AddMaintenanceService(supervisor.NewSweepService("ratelimit-login", interval,
		func(_ context.Context) (int, error) { return loginLimiter.CleanupExpired(), nil }))
	tree.AddMaintenanceService(supervisor.NewSweepService("ratelimit-api", interval,
		func(_ context.Context) (int, error) { return apiLimiter.CleanupExpired(), nil }))

	tree.AddAPIService(supervisor.NewHTTPService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
