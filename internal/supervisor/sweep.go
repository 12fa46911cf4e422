// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package supervisor

import (
	"context"
	"time"

	"github.com/tomtom215/mediadesk/internal/logging"
)

// SweepFunc runs one cleanup pass and returns the number of entries
// evicted.
type SweepFunc func(ctx context.Context) (int, error)

// SweepService runs a cleanup function on a fixed interval as a suture
// service. Errors from a pass are logged, not propagated; the sweep must
// never crash the request cycle or the process.
type SweepService struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
}

// NewSweepService creates a sweep service. A non-positive interval
// defaults to 5 minutes.
func NewSweepService(name string, interval time.Duration, sweep SweepFunc) *SweepService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweepService{
		name:     name,
		interval: interval,
		sweep:    sweep,
	}
}

// Serve implements suture.Service. It runs until the context is
// canceled.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Debug().
		Str("sweep", s.name).
		Dur("interval", s.interval).
		Msg("Cleanup sweep started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := s.sweep(ctx)
			if err != nil {
				logging.Error().Err(err).Str("sweep", s.name).Msg("Cleanup sweep failed")
				continue
			}
			if count > 0 {
				logging.Debug().
					Str("sweep", s.name).
					Int("evicted", count).
					Msg("Cleanup sweep completed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's service naming.
func (s *SweepService) String() string {
	return "sweep-" + s.name
}
