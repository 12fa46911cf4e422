// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package audit

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mediadesk/internal/credentials"
	"github.com/tomtom215/mediadesk/internal/logging"
)

// Config holds audit logger parameters.
type Config struct {
	// MaxEntries caps the in-memory log; the oldest entries are evicted
	// first once the cap is exceeded.
	MaxEntries int

	// AlertWindow is the rolling window scanned by threshold alerting.
	AlertWindow time.Duration

	// FailedLoginThreshold raises an alert at this many failed logins
	// from one client IP inside the alert window.
	FailedLoginThreshold int

	// HighSeverityThreshold raises an alert at this many high or
	// critical entries from one client IP inside the alert window.
	HighSeverityThreshold int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:            10000,
		AlertWindow:           15 * time.Minute,
		FailedLoginThreshold:  5,
		HighSeverityThreshold: 3,
	}
}

// Logger is the append-only in-memory audit log.
type Logger struct {
	mu      sync.RWMutex
	entries []Entry
	config  Config

	security *logging.SecurityLogger

	// alertLimiters throttles repeated alerts per (IP, kind) so alert
	// storms cannot amplify log volume.
	alertLimiters map[string]*rate.Limiter

	// onAlert, when set, receives triggered alerts. Delivery to an
	// external paging system is an integration point, not implemented
	// here.
	onAlert func(alert Alert)

	// now is injectable for window tests.
	now func() time.Time
}

// Alert describes a triggered threshold alert.
type Alert struct {
	Kind      string
	IPAddress string
	Count     int
	Window    time.Duration
}

// NewLogger creates an audit logger with the given configuration.
func NewLogger(config Config) *Logger {
	if config.MaxEntries <= 0 {
		config = DefaultConfig()
	}
	return &Logger{
		entries:       make([]Entry, 0, config.MaxEntries),
		config:        config,
		security:      logging.NewSecurityLogger(),
		alertLimiters: make(map[string]*rate.Limiter),
		now:           time.Now,
	}
}

// SetOnAlert registers a callback for triggered alerts.
func (l *Logger) SetOnAlert(fn func(alert Alert)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onAlert = fn
}

// Log appends an entry, trims the log to its cap from the front, and
// evaluates alert thresholds. Severity defaults to low and category to
// system when unset.
func (l *Logger) Log(action, resource string, r *http.Request, opts Options) Entry {
	if opts.Severity == "" {
		opts.Severity = SeverityLow
	}
	if opts.Category == "" {
		opts.Category = CategorySystem
	}

	entry := Entry{
		ID:           uuid.New().String(),
		Timestamp:    l.now(),
		UserID:       opts.UserID,
		SessionID:    opts.SessionID,
		Action:       action,
		Resource:     resource,
		Success:      opts.Success,
		ErrorMessage: opts.ErrorMessage,
		Metadata:     opts.Metadata,
		Severity:     opts.Severity,
		Category:     opts.Category,
	}

	if r != nil {
		info := credentials.ExtractClientInfo(r)
		entry.Method = r.Method
		entry.Path = r.URL.Path
		entry.IPAddress = info.IP
		entry.UserAgent = info.UserAgent
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if excess := len(l.entries) - l.config.MaxEntries; excess > 0 {
		l.entries = append(l.entries[:0:0], l.entries[excess:]...)
	}
	l.mu.Unlock()

	l.checkSecurityAlerts(entry)

	return entry
}

// LogSecurityEvent is a typed convenience wrapper over Log for the
// closed set of security event kinds. The success flag is derived from
// the event type and the category is always security.
func (l *Logger) LogSecurityEvent(event EventType, r *http.Request, opts Options) Entry {
	opts.Category = CategorySecurity
	if opts.Severity == "" {
		if sev, ok := eventSeverity[event]; ok {
			opts.Severity = sev
		} else {
			opts.Severity = SeverityMedium
		}
	}
	if alwaysFailure[event] {
		opts.Success = false
	}
	return l.Log(string(event), "security", r, opts)
}

// actionSecurityAlert tags alert entries; they are excluded from alert
// threshold scans to prevent feedback loops.
const actionSecurityAlert = "security_alert"

// checkSecurityAlerts scans recent entries from the entry's client IP
// and triggers an alert when the failed-login or high-severity threshold
// is reached. It must never fail in a way that blocks the logging call.
func (l *Logger) checkSecurityAlerts(entry Entry) {
	if entry.IPAddress == "" || entry.Action == actionSecurityAlert {
		return
	}

	now := l.now()
	cutoff := now.Add(-l.config.AlertWindow)

	l.mu.RLock()
	failedLogins := 0
	highSeverity := 0
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := &l.entries[i]
		if e.Timestamp.Before(cutoff) {
			break
		}
		if e.IPAddress != entry.IPAddress || e.Action == actionSecurityAlert {
			continue
		}
		if e.Action == string(EventLoginFailure) {
			failedLogins++
		}
		if e.Severity == SeverityHigh || e.Severity == SeverityCritical {
			highSeverity++
		}
	}
	l.mu.RUnlock()

	if failedLogins >= l.config.FailedLoginThreshold {
		l.triggerSecurityAlert(Alert{
			Kind:      "failed_login_threshold",
			IPAddress: entry.IPAddress,
			Count:     failedLogins,
			Window:    l.config.AlertWindow,
		})
	}
	if highSeverity >= l.config.HighSeverityThreshold {
		l.triggerSecurityAlert(Alert{
			Kind:      "high_severity_threshold",
			IPAddress: entry.IPAddress,
			Count:     highSeverity,
			Window:    l.config.AlertWindow,
		})
	}
}

// triggerSecurityAlert escalates an alert: a structured log line, an
// audit entry of its own, and the optional callback. Throttled per
// (IP, kind) to one alert per minute.
func (l *Logger) triggerSecurityAlert(alert Alert) {
	l.mu.Lock()
	key := alert.IPAddress + "|" + alert.Kind
	limiter, ok := l.alertLimiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute), 1)
		l.alertLimiters[key] = limiter
	}
	onAlert := l.onAlert
	l.mu.Unlock()

	if !limiter.Allow() {
		return
	}

	l.security.Warn("Security alert triggered",
		"kind", alert.Kind,
		"ip", alert.IPAddress,
		"count", alert.Count,
	)

	l.Log(actionSecurityAlert, "security", nil, Options{
		Success:  false,
		Severity: SeverityCritical,
		Category: CategorySecurity,
		Metadata: map[string]interface{}{
			"kind":  alert.Kind,
			"ip":    alert.IPAddress,
			"count": alert.Count,
		},
	})

	if onAlert != nil {
		onAlert(alert)
	}
}

// GetLogs returns entries matching the filter, sorted newest-first.
func (l *Logger) GetLogs(filter Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if !matchesFilter(&e, &filter) {
			continue
		}
		results = append(results, e)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results
}

// matchesFilter applies all set filter fields.
func matchesFilter(e *Entry, f *Filter) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.ActionContains != "" && !strings.Contains(e.Action, f.ActionContains) {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	return true
}

// GetSecurityStats aggregates counts over the trailing window.
func (l *Logger) GetSecurityStats(window time.Duration) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := l.now().Add(-window)
	ips := make(map[string]struct{})
	failuresByIP := make(map[string]int)
	stats := Stats{}

	for i := len(l.entries) - 1; i >= 0; i-- {
		e := &l.entries[i]
		if e.Timestamp.Before(cutoff) {
			break
		}

		stats.TotalEvents++
		switch e.Action {
		case string(EventLoginFailure):
			stats.FailedLogins++
		case string(EventLoginSuccess):
			stats.SuccessfulLogins++
		case string(EventSuspiciousActivity):
			stats.SuspiciousActivities++
		}
		if e.IPAddress != "" {
			ips[e.IPAddress] = struct{}{}
			if !e.Success {
				failuresByIP[e.IPAddress]++
			}
		}
	}

	stats.UniqueIPs = len(ips)
	stats.TopFailureIPs = topFailures(failuresByIP, 10)
	return stats
}

// topFailures returns the n IPs with the most failures, descending.
func topFailures(failuresByIP map[string]int, n int) []IPFailureRow {
	rows := make([]IPFailureRow, 0, len(failuresByIP))
	for ip, count := range failuresByIP {
		rows = append(rows, IPFailureRow{IPAddress: ip, Failures: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Failures != rows[j].Failures {
			return rows[i].Failures > rows[j].Failures
		}
		return rows[i].IPAddress < rows[j].IPAddress
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// Len returns the number of stored entries.
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a snapshot of all entries, oldest first.
func (l *Logger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}
