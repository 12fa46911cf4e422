// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

// Package audit provides an append-only in-memory security event log
// with query, export, and threshold-based alerting.
//
// The log is capped (ring-buffer semantics, oldest entries evicted
// first) to bound memory. Entries are immutable once appended. State is
// process-local and lost on restart.
package audit

import "time"

// Severity is the urgency axis of the event classification.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category is the domain axis of the event classification.
type Category string

const (
	CategoryAuth     Category = "auth"
	CategoryAdmin    Category = "admin"
	CategoryData     Category = "data"
	CategorySystem   Category = "system"
	CategorySecurity Category = "security"
)

// EventType names one of the closed set of security event kinds
// accepted by LogSecurityEvent.
type EventType string

const (
	EventLoginAttempt        EventType = "login_attempt"
	EventLoginSuccess        EventType = "login_success"
	EventLoginFailure        EventType = "login_failure"
	EventLogout              EventType = "logout"
	EventSessionHijack       EventType = "session_hijack"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
	EventBruteForceDetected  EventType = "brute_force_detected"
	EventUnauthorizedAccess  EventType = "unauthorized_access"
	EventPrivilegeEscalation EventType = "privilege_escalation"
	EventDataAccess          EventType = "data_access"
	EventAdminAction         EventType = "admin_action"
	EventSystemError         EventType = "system_error"
	EventSuspiciousActivity  EventType = "suspicious_activity"
)

// Entry is one immutable audit record.
type Entry struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	UserID       string                 `json:"userId,omitempty"`
	SessionID    string                 `json:"sessionId,omitempty"`
	Action       string                 `json:"action"`
	Resource     string                 `json:"resource"`
	Method       string                 `json:"method"`
	Path         string                 `json:"path"`
	IPAddress    string                 `json:"ipAddress"`
	UserAgent    string                 `json:"userAgent"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Severity     Severity               `json:"severity"`
	Category     Category               `json:"category"`
}

// Options carries the optional fields of a log call.
type Options struct {
	UserID       string
	SessionID    string
	Success      bool
	ErrorMessage string
	Metadata     map[string]interface{}
	Severity     Severity
	Category     Category
}

// Filter selects entries in GetLogs. Zero-valued fields do not filter;
// set fields compose with AND.
type Filter struct {
	UserID         string
	ActionContains string
	Category       Category
	Severity       Severity
	Success        *bool
	From           time.Time
	To             time.Time
	IPAddress      string

	// Limit caps the number of results (0 = unlimited).
	Limit int
}

// Stats aggregates counts over a trailing window for dashboards.
type Stats struct {
	TotalEvents          int            `json:"totalEvents"`
	FailedLogins         int            `json:"failedLogins"`
	SuccessfulLogins     int            `json:"successfulLogins"`
	SuspiciousActivities int            `json:"suspiciousActivities"`
	UniqueIPs            int            `json:"uniqueIPs"`
	TopFailureIPs        []IPFailureRow `json:"topFailureIPs"`
}

// IPFailureRow is one row of the top-failure-IPs table.
type IPFailureRow struct {
	IPAddress string `json:"ipAddress"`
	Failures  int    `json:"failures"`
}

// eventSeverity maps event types to their default severity.
var eventSeverity = map[EventType]Severity{
	EventLoginAttempt:        SeverityLow,
	EventLoginSuccess:        SeverityLow,
	EventLoginFailure:        SeverityMedium,
	EventLogout:              SeverityLow,
	EventSessionHijack:       SeverityCritical,
	EventRateLimitExceeded:   SeverityMedium,
	EventBruteForceDetected:  SeverityHigh,
	EventUnauthorizedAccess:  SeverityMedium,
	EventPrivilegeEscalation: SeverityCritical,
	EventDataAccess:          SeverityLow,
	EventAdminAction:         SeverityMedium,
	EventSystemError:         SeverityHigh,
	EventSuspiciousActivity:  SeverityHigh,
}

// alwaysFailure lists event types whose success flag is always false.
var alwaysFailure = map[EventType]bool{
	EventLoginFailure:       true,
	EventUnauthorizedAccess: true,
	EventSessionHijack:      true,
}
