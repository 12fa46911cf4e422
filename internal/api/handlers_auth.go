// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Package api provides the HTTP handlers and Chi routing for the
// authentication boundary and the audit admin surface.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/mediadesk/internal/audit"
	"github.com/tomtom215/mediadesk/internal/bruteforce"
	"github.com/tomtom215/mediadesk/internal/credentials"
	"github.com/tomtom215/mediadesk/internal/logging"
	"github.com/tomtom215/mediadesk/internal/middleware"
	"github.com/tomtom215/mediadesk/internal/ratelimit"
	"github.com/tomtom215/mediadesk/internal/session"
	"github.com/tomtom215/mediadesk/internal/twofactor"
)

// AuthHandlers wires the login boundary: brute-force precheck,
// credential verification, two-factor issuance and verification, and
// session creation.
type AuthHandlers struct {
	users        *Directory
	sessions     *session.Manager
	tracker      *bruteforce.Tracker
	twoFactor    *twofactor.Manager
	loginLimiter *ratelimit.Limiter
	audit        *audit.Logger
	tokens       *credentials.TokenManager
}

// NewAuthHandlers creates the auth handler set.
func NewAuthHandlers(
	users *Directory,
	sessions *session.Manager,
	tracker *bruteforce.Tracker,
	twoFactor *twofactor.Manager,
	loginLimiter *ratelimit.Limiter,
	auditLog *audit.Logger,
	tokens *credentials.TokenManager,
) *AuthHandlers {
	return &AuthHandlers{
		users:        users,
		sessions:     sessions,
		tracker:      tracker,
		twoFactor:    twoFactor,
		loginLimiter: loginLimiter,
		audit:        auditLog,
		tokens:       tokens,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User              userView `json:"user"`
	Token             string   `json:"token"`
	TwoFactorRequired bool     `json:"twoFactorRequired"`
}

type twoFactorPendingResponse struct {
	TwoFactorRequired bool      `json:"twoFactorRequired"`
	ExpiresAt         time.Time `json:"expiresAt"`
	Message           string    `json:"message"`
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Login handles POST /api/auth/login. Flow: brute-force precheck →
// password verify → two-factor issuance (if enabled for the user) or
// immediate session creation. A successful login clears both the
// brute-force history and the strict limiter entry for this client.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Malformed request body", "BAD_REQUEST")
		return
	}

	identifier := strings.ToLower(strings.TrimSpace(req.Username))
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "Username and password are required", "BAD_REQUEST")
		return
	}

	status, err := h.tracker.CheckAttempt(r.Context(), identifier)
	if err != nil {
		logging.Error().Err(err).Msg("Brute-force precheck failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error",
			"Could not process login", "INTERNAL_ERROR")
		return
	}
	if !status.Allowed {
		h.audit.LogSecurityEvent(audit.EventBruteForceDetected, r, audit.Options{
			ErrorMessage: "Login attempt while locked out",
			Metadata:     map[string]interface{}{"identifier": logging.SanitizeEmail(identifier)},
		})
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(status.BlockedUntil)))
		writeError(w, http.StatusTooManyRequests, "Too Many Requests",
			"Account temporarily locked due to repeated failures", "ACCOUNT_LOCKED")
		return
	}

	h.audit.LogSecurityEvent(audit.EventLoginAttempt, r, audit.Options{Success: true})

	user, ok := h.users.Authenticate(identifier, req.Password)
	if !ok {
		result, recordErr := h.tracker.RecordFailedAttempt(r.Context(), identifier)
		if recordErr != nil {
			logging.Error().Err(recordErr).Msg("Failed to record login failure")
		}
		h.audit.LogSecurityEvent(audit.EventLoginFailure, r, audit.Options{
			ErrorMessage: "Invalid credentials",
		})
		if result.Blocked {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(result.BlockedUntil)))
			writeError(w, http.StatusTooManyRequests, "Too Many Requests",
				"Account temporarily locked due to repeated failures", "ACCOUNT_LOCKED")
			return
		}
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid credentials", "INVALID_CREDENTIALS")
		return
	}

	if user.TwoFactorEnabled {
		issued, cooldownUntil, err := h.twoFactor.GenerateCode(user.ID, user.Email)
		if err != nil {
			if errors.Is(err, twofactor.ErrResendCooldown) {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(cooldownUntil)))
				writeError(w, http.StatusTooManyRequests, "Too Many Requests",
					"Verification code requested too soon", "CODE_COOLDOWN")
				return
			}
			logging.Error().Err(err).Msg("Failed to issue one-time code")
			writeError(w, http.StatusInternalServerError, "Internal Server Error",
				"Could not issue verification code", "INTERNAL_ERROR")
			return
		}

		// Code delivery (email/SMS) is the host application's concern;
		// the issued code never appears in a response body.
		writeJSON(w, http.StatusOK, twoFactorPendingResponse{
			TwoFactorRequired: true,
			ExpiresAt:         issued.ExpiresAt,
			Message:           "Verification code sent",
		})
		return
	}

	h.completeLogin(w, r, user, identifier, false)
}

type verifyRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

type verifyErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Code              string `json:"code"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
}

// VerifyTwoFactor handles POST /api/auth/2fa/verify. A correct code
// completes the login with a two-factor-verified session.
func (h *AuthHandlers) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Malformed request body", "BAD_REQUEST")
		return
	}

	identifier := strings.ToLower(strings.TrimSpace(req.Username))
	user, ok := h.users.Lookup(identifier)
	if !ok {
		// Same response as an unknown code so usernames cannot be probed.
		writeJSON(w, http.StatusUnauthorized, verifyErrorResponse{
			Error:   "Unauthorized",
			Message: twofactor.ErrCodeNotFound.Error(),
			Code:    "CODE_NOT_FOUND",
		})
		return
	}

	result, err := h.twoFactor.VerifyCode(user.ID, req.Code)
	if err != nil {
		h.audit.LogSecurityEvent(audit.EventLoginFailure, r, audit.Options{
			UserID:       user.ID,
			ErrorMessage: err.Error(),
		})
		writeVerifyError(w, err, result.AttemptsRemaining)
		return
	}

	h.completeLogin(w, r, user, identifier, true)
}

// ResendTwoFactor handles POST /api/auth/2fa/resend.
func (h *AuthHandlers) ResendTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Malformed request body", "BAD_REQUEST")
		return
	}

	identifier := strings.ToLower(strings.TrimSpace(req.Username))
	user, ok := h.users.Lookup(identifier)
	if !ok {
		// Report success so usernames cannot be probed.
		writeJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent"})
		return
	}

	issued, cooldownUntil, err := h.twoFactor.GenerateCode(user.ID, user.Email)
	if err != nil {
		if errors.Is(err, twofactor.ErrResendCooldown) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(cooldownUntil)))
			writeError(w, http.StatusTooManyRequests, "Too Many Requests",
				"Verification code requested too soon", "CODE_COOLDOWN")
			return
		}
		logging.Error().Err(err).Msg("Failed to issue one-time code")
		writeError(w, http.StatusInternalServerError, "Internal Server Error",
			"Could not issue verification code", "INTERNAL_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, twoFactorPendingResponse{
		TwoFactorRequired: true,
		ExpiresAt:         issued.ExpiresAt,
		Message:           "Verification code sent",
	})
}

// completeLogin is the shared tail of password-only and two-factor
// logins: clear attempt history, create the session, set the cookie,
// and issue a JWT for non-cookie clients.
func (h *AuthHandlers) completeLogin(w http.ResponseWriter, r *http.Request, user *User, identifier string, twoFactorVerified bool) {
	if err := h.tracker.RecordSuccessfulAttempt(r.Context(), identifier); err != nil {
		logging.Error().Err(err).Msg("Failed to clear attempt history")
	}
	h.loginLimiter.Reset(r, "")

	sess, err := h.sessions.CreateSession(r.Context(), user.ID, user.Email, user.Role, r, twoFactorVerified)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create session")
		writeError(w, http.StatusInternalServerError, "Internal Server Error",
			"Could not create session", "INTERNAL_ERROR")
		return
	}

	token, err := h.tokens.CreateToken(user.ID, user.Email, user.Role, h.sessions.MaxAge())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to issue token")
		writeError(w, http.StatusInternalServerError, "Internal Server Error",
			"Could not issue token", "INTERNAL_ERROR")
		return
	}

	h.sessions.SetSessionCookie(w, sess.ID)

	h.audit.LogSecurityEvent(audit.EventLoginSuccess, r, audit.Options{
		UserID:    user.ID,
		SessionID: sess.ID,
		Success:   true,
		Metadata:  map[string]interface{}{"login_method": string(sess.LoginMethod)},
	})

	writeJSON(w, http.StatusOK, loginResponse{
		User: userView{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     user.Role,
		},
		Token:             token,
		TwoFactorRequired: false,
	})
}

// Logout handles POST /api/auth/logout. It destroys the current session
// and clears the cookie.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Authentication required", "UNAUTHORIZED")
		return
	}

	h.sessions.DestroySession(r.Context(), sess.ID)
	h.sessions.ClearSessionCookie(w)

	h.audit.LogSecurityEvent(audit.EventLogout, r, audit.Options{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Success:   true,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// LogoutAll handles POST /api/auth/logout-all: "log out everywhere" for
// the current user.
func (h *AuthHandlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Authentication required", "UNAUTHORIZED")
		return
	}

	count := h.sessions.DestroyAllUserSessions(r.Context(), sess.UserID)
	h.sessions.ClearSessionCookie(w)

	writeJSON(w, http.StatusOK, map[string]int{"sessionsDestroyed": count})
}

// writeVerifyError maps two-factor errors to their responses.
func writeVerifyError(w http.ResponseWriter, err error, attemptsRemaining int) {
	resp := verifyErrorResponse{Error: "Unauthorized", Message: err.Error()}

	switch {
	case errors.Is(err, twofactor.ErrCodeNotFound):
		resp.Code = "CODE_NOT_FOUND"
	case errors.Is(err, twofactor.ErrCodeExpired):
		resp.Code = "CODE_EXPIRED"
	case errors.Is(err, twofactor.ErrCodeExhausted):
		resp.Code = "CODE_EXHAUSTED"
	case errors.Is(err, twofactor.ErrCodeMismatch):
		resp.Code = "CODE_MISMATCH"
		resp.AttemptsRemaining = &attemptsRemaining
	default:
		resp.Code = "VERIFICATION_FAILED"
	}

	writeJSON(w, http.StatusUnauthorized, resp)
}

// retryAfterSeconds converts an expiry timestamp into Retry-After
// seconds, at least 1.
func retryAfterSeconds(until time.Time) int {
	secs := int(time.Until(until).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// errorResponse is the stable JSON error shape.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// writeError writes the stable error body.
func writeError(w http.ResponseWriter, status int, errText, message, code string) {
	writeJSON(w, status, errorResponse{Error: errText, Message: message, Code: code})
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}
