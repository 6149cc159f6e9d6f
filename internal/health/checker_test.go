package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker("1.0.0", nil)

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
	if response.Version != "1.0.0" {
		t.Errorf("Version = %q", response.Version)
	}
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()
	failing := ReadinessFunc(func(ctx context.Context) error { return errors.New("store closed") })
	ok := ReadinessFunc(func(ctx context.Context) error { return nil })

	tests := []struct {
		name       string
		checks     map[string]ReadinessChecker
		wantStatus Status
		wantCheck  string
	}{
		{"no backend", nil, StatusUnhealthy, "backend"},
		{"nil backend", map[string]ReadinessChecker{"store": nil}, StatusUnhealthy, "store"},
		{"failing backend", map[string]ReadinessChecker{"store": failing}, StatusUnhealthy, "store"},
		{"ready backend", map[string]ReadinessChecker{"store": ok}, StatusHealthy, "store"},
		{"one of two failing", map[string]ReadinessChecker{"store": ok, "disk": failing}, StatusUnhealthy, "disk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := NewChecker("", tt.checks).Readiness(context.Background())

			if response.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", response.Status, tt.wantStatus)
			}
			if _, found := response.Checks[tt.wantCheck]; !found {
				t.Errorf("expected check %q in %v", tt.wantCheck, response.Checks)
			}
		})
	}
}

func TestChecker_ReadinessCached(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	checker := NewChecker("", map[string]ReadinessChecker{
		"store": ReadinessFunc(func(ctx context.Context) error {
			calls.Add(1)
			return nil
		}),
	})

	for range 3 {
		checker.Readiness(context.Background())
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("backend checked %d times, want 1", got)
	}
}

func TestChecker_ShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker("", map[string]ReadinessChecker{
		"store": ReadinessFunc(func(ctx context.Context) error { return nil }),
	})
	if !checker.Readiness(context.Background()).IsHealthy() {
		t.Fatal("expected ready before shutdown")
	}

	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())
	if response.IsHealthy() {
		t.Error("expected unhealthy while shutting down")
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("expected shutdown check")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
