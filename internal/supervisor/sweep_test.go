// Mediadesk - Content Management and Media Publishing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediadesk

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSweepServiceRunsOnInterval(t *testing.T) {
	var runs atomic.Int64
	svc := NewSweepService("test", 5*time.Millisecond, func(ctx context.Context) (int, error) {
		runs.Add(1)
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("sweep ran %d times, want at least 3", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestSweepErrorsDoNotStopService(t *testing.T) {
	var runs atomic.Int64
	svc := NewSweepService("failing", 5*time.Millisecond, func(ctx context.Context) (int, error) {
		runs.Add(1)
		return 0, errors.New("store unavailable")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweep ran %d times after an error, want at least 2", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSweepServiceName(t *testing.T) {
	svc := NewSweepService("sessions", 0, func(ctx context.Context) (int, error) { return 0, nil })
	if got := svc.String(); got != "sweep-sessions" {
		t.Errorf("String() = %q, want sweep-sessions", got)
	}
	if svc.interval != 5*time.Minute {
		t.Errorf("defaulted interval = %v, want 5m", svc.interval)
	}
}
