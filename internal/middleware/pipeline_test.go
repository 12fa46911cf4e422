// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/mediadesk/internal/audit"
	"github.com/tomtom215/mediadesk/internal/credentials"
	"github.com/tomtom215/mediadesk/internal/ratelimit"
	"github.com/tomtom215/mediadesk/internal/session"
)

type pipelineFixture struct {
	pipeline *SecurityPipeline
	sessions *session.Manager
	audit    *audit.Logger
	handler  http.Handler
}

func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		PublicPaths:        []string{"/api/auth/login", "/health", "/static"},
		AdminPaths:         []string{"/api/admin", "/api/dashboard"},
		RateLimitEnabled:   true,
		SessionEnabled:     true,
		CSRFEnabled:        true,
		IPAllowlistEnabled: false,
		AuditEnabled:       true,
	}
}

func newPipelineFixture(t *testing.T, cfg PipelineConfig, allowlist *credentials.IPAllowlist) *pipelineFixture {
	t.Helper()

	sessions := session.NewManager(session.NewMemoryStore(), session.ManagerConfig{MaxAge: time.Hour})
	auditLog := audit.NewLogger(audit.DefaultConfig())
	p := NewSecurityPipeline(
		cfg,
		sessions,
		ratelimit.New("login", ratelimit.LoginConfig()),
		ratelimit.New("api", ratelimit.APIConfig()),
		auditLog,
		allowlist,
	)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &pipelineFixture{
		pipeline: p,
		sessions: sessions,
		audit:    auditLog,
		handler:  p.Handler(inner),
	}
}

func pipelineRequest(method, path, ip, userAgent string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	r.Header.Set("X-Real-IP", ip)
	r.Header.Set("User-Agent", userAgent)
	return r
}

// openSession creates a session fingerprinted to the given client and
// returns it along with a request carrying its cookie.
func (f *pipelineFixture) openSession(t *testing.T, role, path, ip, userAgent string) (*session.Session, *http.Request) {
	t.Helper()
	sess, err := f.sessions.CreateSession(context.Background(), "u1", "u1@example.com", role, pipelineRequest("POST", "/api/auth/login", ip, userAgent), false)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	r := pipelineRequest("GET", path, ip, userAgent)
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	return sess, r
}

func TestLoginFloodTriggersLockout(t *testing.T) {
	f := newPipelineFixture(t, defaultPipelineConfig(), nil)
	limit := ratelimit.LoginConfig().MaxRequests

	for i := 0; i < limit; i++ {
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, pipelineRequest("POST", "/api/auth/login", "1.2.3.4", "agent-x"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, pipelineRequest("POST", "/api/auth/login", "1.2.3.4", "agent-x"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit status = %d, want 429", w.Code)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter <= 0 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(limit) {
		t.Errorf("X-RateLimit-Limit = %q, want %d", got, limit)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset missing")
	}
	if !strings.Contains(w.Body.String(), "RATE_LIMITED") {
		t.Errorf("body = %q, want RATE_LIMITED code", w.Body.String())
	}

	entries := f.audit.GetLogs(audit.Filter{IPAddress: "1.2.3.4", ActionContains: "rate_limit_exceeded"})
	if len(entries) != 1 {
		t.Fatalf("rate-limit audit entries = %d, want 1", len(entries))
	}
	if entries[0].Category != audit.CategorySecurity {
		t.Errorf("audit category = %q, want security", entries[0].Category)
	}
}

func TestRateLimitKeysAreIndependentPerIP(t *testing.T) {
	f := newPipelineFixture(t, defaultPipelineConfig(), nil)
	limit := ratelimit.LoginConfig().MaxRequests

	for i := 0; i < limit+1; i++ {
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, pipelineRequest("POST", "/api/auth/login", "1.2.3.4", "agent-x"))
		_ = w
	}

	// A different client is unaffected by the first one's lockout.
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, pipelineRequest("POST", "/api/auth/login", "5.6.7.8", "agent-x"))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for unrelated IP", w.Code)
	}
}

func TestValidSessionPassesWithIdentityHeaders(t *testing.T) {
	f := newPipelineFixture(t, defaultPipelineConfig(), nil)
	sess, r := f.openSession(t, "admin", "/api/dashboard/news", "1.2.3.4", "agent-x")

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %q", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-User-Role"); got != "admin" {
		t.Errorf("X-User-Role = %q, want admin", got)
	}
	if got := w.Header().Get("X-User-ID"); got != "u1" {
		t.Errorf("X-User-ID = %q, want u1", got)
	}
	if got := w.Header().Get("X-Session-ID"); got != sess.ID {
		t.Errorf("X-Session-ID = %q, want session ID", got)
	}

	// The pass-through was audited as an admin action.
	entries := f.audit.GetLogs(audit.Filter{ActionContains: "method_request"})
	if len(entries) != 1 {
		t.Fatalf("method_request entries = %d, want 1", len(entries))
	}
	if entries[0].Category != audit.CategoryAdmin || entries[0].UserID != "u1" {
		t.Errorf("audit entry = %+v, want admin category for u1", entries[0])
	}
}

func TestFingerprintMismatchYieldsUnauthorized(t *testing.T) {
	f := newPipelineFixture(t, defaultPipelineConfig(), nil)
	sess, _ := f.openSession(t, "admin", "/api/dashboard/news", "1.2.3.4", "agent-x")

	// Same cookie, different browser: the session is destroyed and the
	// request rejected with the stable JSON error.
	r := pipelineRequest("GET", "/api/dashboard/news", "1.2.3.4", "agent-y")
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "UNAUTHORIZED") || !strings.Contains(body, "Unauthorized") {
		t.Errorf("body = %q, want UNAUTHORIZED error", body)
	}

	// Replaying with the original fingerprint also fails now.
	retry := pipelineRequest("GET", "/api/dashboard/news", "1.2.3.4", "agent-x")
	retry.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, retry)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("replay status = %d, want 401 (session destroyed)", w.Code)
	}
}

func TestMissingSessionOnBrowserPathRedirects(t *testing.T) {
	f := newPipelineFixture(t, defaultPipelineConfig(), nil)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, pipelineRequest("GET", "/news/editor", "1.2.3.4", "agent-x"))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?redirect=/news/editor" {
		t.Errorf("Location = %q, want /login?redirect=/news/editor", loc)
	}
}

func TestPublicPathSkipsSessionAndCSRF(t *testing.T) {
	f := newPipelineFixture(t, defaultPipelineConfig(), nil)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, pipelineRequest("POST", "/api/auth/login", "1.2.3.4", "agent-x"))
	if w.Code != http.StatusOK {
		t.Errorf("public POST status = %d, want 200", w.Code)
	}

	// Public traffic is not audited as a method request.
	if entries := f.audit.GetLogs(audit.Filter{ActionContains: "method_request"}); len(entries) != 0 {
		t.Errorf("method_request entries = %d, want 0 for public path", len(entries))
	}
}

func TestBearerHeaderFallback(t *testing.T) {
	f := newPipelineFixture(t, defaultPipelineConfig(), nil)
	sess, _ := f.openSession(t, "editor", "/api/news", "1.2.3.4", "agent-x")

	r := pipelineRequest("GET", "/api/news", "1.2.3.4", "agent-x")
	r.Header.Set("Authorization", "Bearer "+sess.ID)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("bearer status = %d, want 200", w.Code)
	}
}

func TestCSRFPolicy(t *testing.T) {
	f := newPipelineFixture(t, defaultPipelineConfig(), nil)
	sess, _ := f.openSession(t, "editor", "/api/news", "1.2.3.4", "agent-x")

	post := func(mutate func(*http.Request)) *httptest.ResponseRecorder {
		r := pipelineRequest("POST", "/api/news", "1.2.3.4", "agent-x")
		r.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
		if mutate != nil {
			mutate(r)
		}
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, r)
		return w
	}

	// Bare form POST without a token is rejected.
	w := post(func(r *http.Request) {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	})
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), "CSRF_TOKEN_INVALID") {
		t.Errorf("form POST = (%d, %q), want 403 CSRF_TOKEN_INVALID", w.Code, w.Body.String())
	}

	// The session's token satisfies the check.
	w = post(func(r *http.Request) {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.Header.Set("X-CSRF-Token", sess.CSRFToken)
	})
	if w.Code != http.StatusOK {
		t.Errorf("token POST status = %d, want 200", w.Code)
	}

	// A wrong token is rejected.
	w = post(func(r *http.Request) {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.Header.Set("X-CSRF-Token", "bogus")
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("wrong-token POST status = %d, want 403", w.Code)
	}

	// AJAX-tagged requests bypass token verification.
	w = post(func(r *http.Request) {
		r.Header.Set("X-Requested-With", "XMLHttpRequest")
	})
	if w.Code != http.StatusOK {
		t.Errorf("AJAX POST status = %d, want 200", w.Code)
	}

	// As do JSON requests.
	w = post(func(r *http.Request) {
		r.Header.Set("Content-Type", "application/json")
	})
	if w.Code != http.StatusOK {
		t.Errorf("JSON POST status = %d, want 200", w.Code)
	}

	// GET never requires a token.
	r := pipelineRequest("GET", "/api/news", "1.2.3.4", "agent-x")
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", rec.Code)
	}
}

func TestAdminIPAllowlist(t *testing.T) {
	allowlist, err := credentials.NewIPAllowlist([]string{"10.0.0.0/24"})
	if err != nil {
		t.Fatalf("NewIPAllowlist: %v", err)
	}

	cfg := defaultPipelineConfig()
	cfg.IPAllowlistEnabled = true
	cfg.SessionEnabled = false
	f := newPipelineFixture(t, cfg, allowlist)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, pipelineRequest("GET", "/api/admin/audit", "203.0.113.9", "agent-x"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("outside-allowlist status = %d, want 403", w.Code)
	}

	entries := f.audit.GetLogs(audit.Filter{ActionContains: "unauthorized_access", IPAddress: "203.0.113.9"})
	if len(entries) != 1 {
		t.Errorf("unauthorized_access entries = %d, want 1", len(entries))
	}

	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, pipelineRequest("GET", "/api/admin/audit", "10.0.0.7", "agent-x"))
	if w.Code != http.StatusOK {
		t.Errorf("allowlisted status = %d, want 200", w.Code)
	}

	// Non-admin paths are never gated by the allowlist.
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, pipelineRequest("GET", "/health", "203.0.113.9", "agent-x"))
	if w.Code != http.StatusOK {
		t.Errorf("non-admin path status = %d, want 200", w.Code)
	}
}

func TestDisabledStagesAreSkipped(t *testing.T) {
	cfg := defaultPipelineConfig()
	cfg.RateLimitEnabled = false
	cfg.SessionEnabled = false
	cfg.CSRFEnabled = false
	cfg.AuditEnabled = false
	f := newPipelineFixture(t, cfg, nil)

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, pipelineRequest("POST", "/api/news", "1.2.3.4", "agent-x"))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with all stages off", w.Code)
	}
	if f.audit.Len() != 0 {
		t.Errorf("audit entries = %d, want 0 with auditing off", f.audit.Len())
	}
}

func TestSessionFromContext(t *testing.T) {
	f := newPipelineFixture(t, defaultPipelineConfig(), nil)
	_, r := f.openSession(t, "admin", "/api/dashboard/news", "1.2.3.4", "agent-x")

	var got *session.Session
	h := f.pipeline.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SessionFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got == nil || got.UserID != "u1" {
		t.Errorf("session from context = %+v, want u1's session", got)
	}

	if SessionFromContext(context.Background()) != nil {
		t.Error("empty context yielded a session")
	}
}

func TestMatchesPrefix(t *testing.T) {
	prefixes := []string{"/api/admin", "/static/"}

	tests := []struct {
		path string
		want bool
	}{
		{"/api/admin", true},
		{"/api/admin/", true},
		{"/api/admin/audit", true},
		{"/api/administrator", false},
		{"/static/app.js", true},
		{"/api", false},
		{"/", false},
	}
	for _, tt := range tests {
		if got := matchesPrefix(tt.path, prefixes); got != tt.want {
			t.Errorf("matchesPrefix(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
