// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Package middleware hosts the request-security pipeline and the
// supporting HTTP middlewares (security headers, request IDs, metrics).
//
// The pipeline runs a strict ordered stage sequence per request; the
// first stage that denies short-circuits the rest. Every denial writes
// an audit entry before the response is sent.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/mediadesk/internal/audit"
	"github.com/tomtom215/mediadesk/internal/credentials"
	"github.com/tomtom215/mediadesk/internal/ratelimit"
	"github.com/tomtom215/mediadesk/internal/session"
)

// sessionContextKey carries the validated session through the request
// context.
const sessionContextKey contextKey = "security_session"

// authPathPrefix routes requests to the strict login limiter.
const authPathPrefix = "/api/auth/"

// timeNow is swappable in tests for Retry-After assertions.
var timeNow = time.Now

// errorBody is the stable JSON error shape.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// PipelineConfig controls stage enablement and path classification.
type PipelineConfig struct {
	// PublicPaths skip session validation and CSRF, never rate limiting.
	PublicPaths []string

	// AdminPaths are gated by the IP allowlist and audited as admin.
	AdminPaths []string

	RateLimitEnabled   bool
	SessionEnabled     bool
	CSRFEnabled        bool
	IPAllowlistEnabled bool
	AuditEnabled       bool
}

// SecurityPipeline orchestrates the per-request guard stages. All
// collaborators are injected; the pipeline owns no background state of
// its own.
type SecurityPipeline struct {
	config       PipelineConfig
	sessions     *session.Manager
	loginLimiter *ratelimit.Limiter
	apiLimiter   *ratelimit.Limiter
	audit        *audit.Logger
	allowlist    *credentials.IPAllowlist
}

// NewSecurityPipeline assembles the pipeline from its collaborators.
// A nil allowlist behaves as allow-all.
func NewSecurityPipeline(
	config PipelineConfig,
	sessions *session.Manager,
	loginLimiter, apiLimiter *ratelimit.Limiter,
	auditLog *audit.Logger,
	allowlist *credentials.IPAllowlist,
) *SecurityPipeline {
	return &SecurityPipeline{
		config:       config,
		sessions:     sessions,
		loginLimiter: loginLimiter,
		apiLimiter:   apiLimiter,
		audit:        auditLog,
		allowlist:    allowlist,
	}
}

// Handler returns the pipeline as a chi-compatible middleware.
func (p *SecurityPipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		isPublic := matchesPrefix(path, p.config.PublicPaths)
		isAdmin := matchesPrefix(path, p.config.AdminPaths)

		// Stage 2: IP allowlist, admin paths only.
		if isAdmin && p.config.IPAllowlistEnabled && !p.allowlistAllows(r) {
			p.denyForbiddenIP(w, r)
			return
		}

		// Stage 3: rate limiting. Public paths are never exempt.
		if p.config.RateLimitEnabled {
			limiter := p.apiLimiter
			name := "api"
			if strings.HasPrefix(path, authPathPrefix) {
				limiter = p.loginLimiter
				name = "login"
			}
			result := limiter.Check(r, "")
			if !result.Allowed {
				p.denyRateLimited(w, r, result, name)
				return
			}
		}

		// Stage 4: session validation, skipped for public paths.
		var sess *session.Session
		if !isPublic && p.config.SessionEnabled {
			sess = p.validateSession(w, r)
			if sess == nil {
				return
			}
		}

		// Stage 5: CSRF for state-changing methods, skipped for public
		// paths. AJAX-tagged and JSON requests pass without token
		// verification; this permissive policy is intentional.
		if !isPublic && p.config.CSRFEnabled && isStateChanging(r.Method) {
			if !p.csrfAllows(r, sess) {
				p.denyCSRF(w, r, sess)
				return
			}
		}

		// Stage 6: audit write for non-public paths.
		if !isPublic && p.config.AuditEnabled {
			category := audit.CategoryData
			if isAdmin {
				category = audit.CategoryAdmin
			}
			opts := audit.Options{
				Success:  true,
				Severity: audit.SeverityLow,
				Category: category,
			}
			if sess != nil {
				opts.UserID = sess.UserID
				opts.SessionID = sess.ID
			}
			p.audit.Log("method_request", path, r, opts)
		}

		PipelineRequests.WithLabelValues("pass").Inc()

		if sess != nil {
			r = r.WithContext(context.WithValue(r.Context(), sessionContextKey, sess))
		}
		next.ServeHTTP(w, r)
	})
}

// allowlistAllows reports whether the client IP passes the admin
// allowlist.
func (p *SecurityPipeline) allowlistAllows(r *http.Request) bool {
	if p.allowlist == nil || p.allowlist.Empty() {
		return true
	}
	info := credentials.ExtractClientInfo(r)
	return p.allowlist.Allowed(info.IP)
}

// validateSession resolves the session ID from the cookie, then the
// bearer header, and validates it. On failure it writes the denial
// response and returns nil.
func (p *SecurityPipeline) validateSession(w http.ResponseWriter, r *http.Request) *session.Session {
	id := resolveSessionID(r)
	if id == "" {
		p.denyUnauthorized(w, r, "No session")
		return nil
	}

	result := p.sessions.ValidateSession(r.Context(), id, r)
	if !result.Valid {
		SessionValidations.WithLabelValues(validationMetricLabel(result.Reason)).Inc()
		p.denyUnauthorized(w, r, result.Reason)
		return nil
	}
	SessionValidations.WithLabelValues("valid").Inc()

	sess := result.Session
	h := w.Header()
	h.Set("X-User-ID", sess.UserID)
	h.Set("X-User-Email", sess.Email)
	h.Set("X-User-Role", sess.Role)
	h.Set("X-Session-ID", sess.ID)
	return sess
}

// csrfAllows applies the permissive CSRF policy: AJAX-tagged or
// JSON-content requests pass outright; everything else must present the
// session's CSRF token.
func (p *SecurityPipeline) csrfAllows(r *http.Request, sess *session.Session) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	if sess == nil {
		// No session to compare against (session stage disabled).
		return true
	}

	token := r.Header.Get("X-CSRF-Token")
	if token == "" {
		token = r.FormValue("csrf_token")
	}
	return token != "" && token == sess.CSRFToken
}

// denyForbiddenIP rejects a request to an admin path from outside the
// allowlist.
func (p *SecurityPipeline) denyForbiddenIP(w http.ResponseWriter, r *http.Request) {
	PipelineDenials.WithLabelValues("ip_allowlist").Inc()
	PipelineRequests.WithLabelValues("denied").Inc()

	if p.config.AuditEnabled {
		p.audit.LogSecurityEvent(audit.EventUnauthorizedAccess, r, audit.Options{
			ErrorMessage: "IP not in admin allowlist",
		})
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("Forbidden"))
}

// denyRateLimited rejects a request over quota with the rate-limit
// header contract.
func (p *SecurityPipeline) denyRateLimited(w http.ResponseWriter, r *http.Request, result ratelimit.Result, limiterName string) {
	PipelineDenials.WithLabelValues("rate_limit").Inc()
	PipelineRequests.WithLabelValues("denied").Inc()
	RateLimitBlocks.WithLabelValues(limiterName).Inc()

	if p.config.AuditEnabled {
		p.audit.LogSecurityEvent(audit.EventRateLimitExceeded, r, audit.Options{
			ErrorMessage: "Too many requests",
			Metadata: map[string]interface{}{
				"limiter": limiterName,
			},
		})
	}

	resetAt := result.ResetAt
	if result.Blocked {
		resetAt = result.BlockedUntil
	}

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.UnixMilli(), 10))
	h.Set("Retry-After", strconv.Itoa(result.RetryAfter(timeNow())))

	writeJSONError(w, http.StatusTooManyRequests, errorBody{
		Error:   "Too Many Requests",
		Message: "Rate limit exceeded, try again later",
		Code:    "RATE_LIMITED",
	})
}

// denyUnauthorized rejects a request with no valid session. API paths
// get the stable JSON error; browser paths are redirected to the login
// page carrying the original path.
func (p *SecurityPipeline) denyUnauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	PipelineDenials.WithLabelValues("session").Inc()
	PipelineRequests.WithLabelValues("denied").Inc()

	if p.config.AuditEnabled {
		p.audit.LogSecurityEvent(audit.EventUnauthorizedAccess, r, audit.Options{
			ErrorMessage: reason,
		})
	}

	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSONError(w, http.StatusUnauthorized, errorBody{
			Error:   "Unauthorized",
			Message: "Authentication required",
			Code:    "UNAUTHORIZED",
		})
		return
	}

	http.Redirect(w, r, "/login?redirect="+r.URL.Path, http.StatusFound)
}

// denyCSRF rejects a state-changing request with a missing or wrong
// CSRF token.
func (p *SecurityPipeline) denyCSRF(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	PipelineDenials.WithLabelValues("csrf").Inc()
	PipelineRequests.WithLabelValues("denied").Inc()

	if p.config.AuditEnabled {
		opts := audit.Options{ErrorMessage: "CSRF token missing or invalid"}
		if sess != nil {
			opts.UserID = sess.UserID
			opts.SessionID = sess.ID
		}
		p.audit.LogSecurityEvent(audit.EventSuspiciousActivity, r, opts)
	}

	writeJSONError(w, http.StatusForbidden, errorBody{
		Error:   "Forbidden",
		Message: "CSRF token validation failed",
		Code:    "CSRF_TOKEN_INVALID",
	})
}

// SessionFromContext returns the session validated by the pipeline, or
// nil on public paths and when the session stage is disabled.
func SessionFromContext(ctx context.Context) *session.Session {
	if sess, ok := ctx.Value(sessionContextKey).(*session.Session); ok {
		return sess
	}
	return nil
}

// resolveSessionID reads the session cookie, then the bearer header.
func resolveSessionID(r *http.Request) string {
	if cookie, err := r.Cookie(session.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// matchesPrefix reports whether the path falls under any of the
// prefixes, tolerant of trailing slashes on either side.
func matchesPrefix(path string, prefixes []string) bool {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}
	for _, prefix := range prefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// isStateChanging reports whether the method requires a CSRF check.
func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// validationMetricLabel maps a validation reason to its metric label.
func validationMetricLabel(reason string) string {
	switch reason {
	case session.ReasonIPMismatch:
		return "ip_mismatch"
	case session.ReasonUAMismatch:
		return "ua_mismatch"
	default:
		return "not_found"
	}
}

// writeJSONError writes the stable JSON error body.
func writeJSONError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
