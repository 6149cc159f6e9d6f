package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	metrics, handler, err := NewMetrics(context.Background())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}
	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordRunMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordRunStarted(ctx, "cav")
	metrics.RecordPoll(ctx, "")
	metrics.RecordPoll(ctx, "Started")
	metrics.RecordRunFinished(ctx, "cav", "completed", 42.5)
	metrics.RecordRunStarted(ctx, "tbotb")
	metrics.RecordRunFinished(ctx, "tbotb", "remote_job", 12)
	metrics.RecordGatewayCall(ctx, "getJob", true, 0.02)
	metrics.RecordGatewayCall(ctx, "getFile", false, 1.5)
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/api/status", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/jobs", 201, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/jobs/abc123", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/jobs/abc123/file", 409, 0.005)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/api/status", "/api/status"},
		{"/metrics", "/metrics"},
		{"/api/jobs", "/api/jobs"},
		{"/api/jobs/", "/api/jobs/"},
		{"/api/jobs/abc123", "/api/jobs/{id}"},
		{"/api/jobs/xyz-789-def/file", "/api/jobs/{id}/file"},
		{"/jobs/abc", "/jobs/{id}"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.input); got != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestRecordDispatcherMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordDispatcherDelivered(ctx, 0.2)
	metrics.RecordDispatcherFailed(ctx)
	metrics.RecordDispatcherDropped(ctx)
	metrics.RecordDispatcherSkipped(ctx)
	metrics.RecordDispatcherQueueSize(ctx, 3)
}

func TestMetricsHandler_ServesOwnRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	// A second instance in the same process must not conflict.
	if _, _, err := NewMetrics(ctx); err != nil {
		t.Fatalf("Second NewMetrics failed: %v", err)
	}

	metrics.RecordRunStarted(ctx, "cav")
	metrics.RecordRunFinished(ctx, "cav", "completed", 3)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	for _, want := range []string{"preview_runs_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected %s in scrape output", want)
		}
	}
}
