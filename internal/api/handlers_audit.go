// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/mediadesk/internal/audit"
	"github.com/tomtom215/mediadesk/internal/logging"
	"github.com/tomtom215/mediadesk/internal/middleware"
)

// AuditHandlers exposes the audit trail to the admin dashboard.
type AuditHandlers struct {
	audit *audit.Logger
}

// NewAuditHandlers creates the audit handler set.
func NewAuditHandlers(auditLog *audit.Logger) *AuditHandlers {
	return &AuditHandlers{audit: auditLog}
}

// ListLogs handles GET /api/admin/audit. Filters compose via query
// parameters; results are newest-first.
func (h *AuditHandlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	entries := h.audit.GetLogs(filter)
	if entries == nil {
		entries = []audit.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// Export handles GET /api/admin/audit/export?format=csv|json.
func (h *AuditHandlers) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	filter := parseFilter(r)

	h.logAdminAction(r, "audit_export")

	switch format {
	case "csv":
		data, err := h.audit.ExportCSV(filter)
		if err != nil {
			logging.Error().Err(err).Msg("Audit CSV export failed")
			writeError(w, http.StatusInternalServerError, "Internal Server Error",
				"Export failed", "INTERNAL_ERROR")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-log.csv"`)
		_, _ = w.Write(data)
	case "json", "":
		data, err := h.audit.ExportJSON(filter)
		if err != nil {
			logging.Error().Err(err).Msg("Audit JSON export failed")
			writeError(w, http.StatusInternalServerError, "Internal Server Error",
				"Export failed", "INTERNAL_ERROR")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-log.json"`)
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, "Bad Request",
			"Unsupported export format", "BAD_REQUEST")
	}
}

// Stats handles GET /api/admin/audit/stats?window=15m.
func (h *AuditHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			window = d
		}
	}

	writeJSON(w, http.StatusOK, h.audit.GetSecurityStats(window))
}

// logAdminAction records an admin-action audit entry for the caller.
func (h *AuditHandlers) logAdminAction(r *http.Request, action string) {
	opts := audit.Options{Success: true, Metadata: map[string]interface{}{"action": action}}
	if sess := middleware.SessionFromContext(r.Context()); sess != nil {
		opts.UserID = sess.UserID
		opts.SessionID = sess.ID
	}
	h.audit.LogSecurityEvent(audit.EventAdminAction, r, opts)
}

// parseFilter builds an audit filter from query parameters.
func parseFilter(r *http.Request) audit.Filter {
	q := r.URL.Query()
	filter := audit.Filter{
		UserID:         q.Get("user_id"),
		ActionContains: q.Get("action"),
		Category:       audit.Category(q.Get("category")),
		Severity:       audit.Severity(q.Get("severity")),
		IPAddress:      q.Get("ip"),
	}

	if v := q.Get("success"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.Success = &b
		}
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	return filter
}
