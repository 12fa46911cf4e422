// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package audit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// csvHeader fixes the export column order; external consumers parse by
// position.
const csvHeader = "id,timestamp,userId,sessionId,action,resource,method,path,ipAddress,userAgent,success,errorMessage,severity,category"

// ExportJSON renders the filtered entries as an indented JSON array.
func (l *Logger) ExportJSON(filter Filter) ([]byte, error) {
	entries := l.GetLogs(filter)
	if entries == nil {
		entries = []Entry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal audit export: %w", err)
	}
	return data, nil
}

// ExportCSV renders the filtered entries as CSV with a fixed column
// order. The user-agent column is always quoted since real user-agent
// strings routinely contain commas.
func (l *Logger) ExportCSV(filter Filter) ([]byte, error) {
	entries := l.GetLogs(filter)

	var b strings.Builder
	b.WriteString(csvHeader)
	b.WriteByte('\n')

	for i := range entries {
		e := &entries[i]
		fields := []string{
			csvEscape(e.ID),
			csvEscape(e.Timestamp.UTC().Format(time.RFC3339)),
			csvEscape(e.UserID),
			csvEscape(e.SessionID),
			csvEscape(e.Action),
			csvEscape(e.Resource),
			csvEscape(e.Method),
			csvEscape(e.Path),
			csvEscape(e.IPAddress),
			csvQuote(e.UserAgent),
			strconv.FormatBool(e.Success),
			csvEscape(e.ErrorMessage),
			csvEscape(string(e.Severity)),
			csvEscape(string(e.Category)),
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}

	return []byte(b.String()), nil
}

// csvEscape quotes a field only when it contains a delimiter, quote, or
// newline.
func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return csvQuote(s)
	}
	return s
}

// csvQuote unconditionally quotes a field, doubling embedded quotes.
func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
