// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mediadesk/internal/middleware"
)

// Router assembles the HTTP surface: the security pipeline plus the
// auth and audit admin endpoints.
type Router struct {
	auth       *AuthHandlers
	audit      *AuditHandlers
	pipeline   *middleware.SecurityPipeline
	production bool
}

// NewRouter creates the router.
func NewRouter(auth *AuthHandlers, auditHandlers *AuditHandlers, pipeline *middleware.SecurityPipeline, production bool) *Router {
	return &Router{
		auth:       auth,
		audit:      auditHandlers,
		pipeline:   pipeline,
		production: production,
	}
}

// Setup configures all routes.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.SecurityHeaders(rt.production))

	// Unauthenticated operational endpoints sit outside the security
	// pipeline with a coarse per-IP limit.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/health", rt.health)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	// Everything else runs through the security pipeline.
	r.Group(func(r chi.Router) {
		r.Use(rt.pipeline.Handler)

		r.Route("/api/auth", func(r chi.Router) {
			r.Post("/login", rt.auth.Login)
			r.Post("/2fa/verify", rt.auth.VerifyTwoFactor)
			r.Post("/2fa/resend", rt.auth.ResendTwoFactor)
			r.Post("/logout", rt.auth.Logout)
			r.Post("/logout-all", rt.auth.LogoutAll)
		})

		r.Route("/api/admin/audit", func(r chi.Router) {
			r.Get("/", rt.audit.ListLogs)
			r.Get("/export", rt.audit.Export)
			r.Get("/stats", rt.audit.Stats)
		})
	})

	return r
}

// health is a minimal liveness endpoint.
func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
