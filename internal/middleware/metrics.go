// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Security pipeline metrics.

var (
	// PipelineRequests counts requests entering the security pipeline.
	// Labels:
	//   - outcome: "pass", "denied"
	PipelineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_pipeline_requests_total",
			Help: "Total number of requests through the security pipeline",
		},
		[]string{"outcome"},
	)

	// PipelineDenials counts denials by the stage that short-circuited.
	// Labels:
	//   - stage: "ip_allowlist", "rate_limit", "session", "csrf"
	PipelineDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_pipeline_denials_total",
			Help: "Total number of requests denied by the security pipeline",
		},
		[]string{"stage"},
	)

	// RateLimitBlocks counts keys entering a block period.
	// Labels:
	//   - limiter: "login", "api"
	RateLimitBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_blocks_total",
			Help: "Total number of rate-limit block activations",
		},
		[]string{"limiter"},
	)

	// SessionValidations counts session validation outcomes.
	// Labels:
	//   - result: "valid", "not_found", "ip_mismatch", "ua_mismatch"
	SessionValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_validations_total",
			Help: "Total number of session validation attempts",
		},
		[]string{"result"},
	)
)
