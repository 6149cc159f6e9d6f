package dispatcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"preview/internal/testutil"
	"preview/pkg/backoff"
	"preview/pkg/cloudevent"
	"sync/atomic"
	"testing"
	"time"
)

var fastBackoff = &backoff.Config{Initial: time.Millisecond, Max: 5 * time.Millisecond}

func testEvent(url string) *Event {
	return &Event{
		Payload: cloudevent.New("preview.job.status", "preview-client", "job-1", map[string]any{"state": "Started"}),
		URL:     url,
	}
}

func closeDispatcher(t *testing.T, d *MemoryDispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestMemoryDispatcher_Dispatch(t *testing.T) {
	t.Parallel()
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{BufferSize: 10, Workers: 2}, nil)
	defer closeDispatcher(t, d)

	if err := d.Dispatch(testEvent(server.URL)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	testutil.MustWaitForCount(t, &received, 1, testutil.WithTimeout(5*time.Second), testutil.WithInterval(5*time.Millisecond))
	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 }, testutil.WithTimeout(time.Second))

	if stats := d.Stats(); stats.Queued != 1 {
		t.Errorf("expected 1 queued, got %d", stats.Queued)
	}
}

func TestMemoryDispatcher_BufferFull(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{BufferSize: 1, Workers: 1}, nil)

	var full int
	for range 5 {
		if errors.Is(d.Dispatch(testEvent(server.URL)), ErrBufferFull) {
			full++
		}
	}
	close(release)

	if full == 0 {
		t.Error("expected at least one ErrBufferFull")
	}
	if got := d.Stats().Dropped; got != int64(full) {
		t.Errorf("expected %d dropped, got %d", full, got)
	}
	closeDispatcher(t, d)
}

func TestMemoryDispatcher_Retry(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{Workers: 1, MaxRetries: 3, Backoff: fastBackoff}, nil)
	_ = d.Dispatch(testEvent(server.URL))
	closeDispatcher(t, d)

	stats := d.Stats()
	if stats.Delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", stats.Delivered)
	}
	if stats.RetriesTotal != 2 {
		t.Errorf("expected 2 retries, got %d", stats.RetriesTotal)
	}
}

func TestMemoryDispatcher_NoRetryOn4xx(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{Workers: 1, MaxRetries: 3, Backoff: fastBackoff}, nil)
	_ = d.Dispatch(testEvent(server.URL))
	closeDispatcher(t, d)

	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
	if got := d.Stats().Failed; got != 1 {
		t.Errorf("expected 1 failed, got %d", got)
	}
}

func TestMemoryDispatcher_SkipsOpenCircuit(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{
		Workers:          1,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	}, nil)
	for range 5 {
		_ = d.Dispatch(testEvent(server.URL))
	}
	closeDispatcher(t, d)

	stats := d.Stats()
	if stats.Failed != 2 {
		t.Errorf("expected 2 failed, got %d", stats.Failed)
	}
	if stats.Skipped != 3 {
		t.Errorf("expected 3 skipped, got %d", stats.Skipped)
	}
	if stats.BreakersOpen != 1 {
		t.Errorf("expected 1 open breaker, got %d", stats.BreakersOpen)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
}

func TestMemoryDispatcher_Signature(t *testing.T) {
	t.Parallel()
	type delivery struct {
		body      []byte
		signature string
	}
	got := make(chan delivery, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{body: body, signature: r.Header.Get(cloudevent.SignatureHeader)}
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{Workers: 1}, nil)
	defer closeDispatcher(t, d)

	event := testEvent(server.URL)
	event.SigningKey = "callback-secret"
	_ = d.Dispatch(event)

	select {
	case dl := <-got:
		if !cloudevent.Verify(dl.body, "callback-secret", dl.signature) {
			t.Errorf("invalid signature %q", dl.signature)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryDispatcher_CloseDrainsQueue(t *testing.T) {
	t.Parallel()
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		received.Add(1)
	}))
	defer server.Close()

	d := NewMemory(MemoryConfig{BufferSize: 20, Workers: 1}, nil)
	for range 10 {
		if err := d.Dispatch(testEvent(server.URL)); err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
	}
	closeDispatcher(t, d)

	if got := received.Load(); got != 10 {
		t.Errorf("expected 10 deliveries after drain, got %d", got)
	}
	if err := d.Dispatch(testEvent(server.URL)); !errors.Is(err, ErrClosed) {
		t.Errorf("Dispatch after Close = %v, want ErrClosed", err)
	}
	// Second close is a no-op.
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestMemoryDispatcher_CloseTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	d := NewMemory(MemoryConfig{Workers: 1}, nil)
	_ = d.Dispatch(testEvent(server.URL))
	testutil.MustWaitFor(t, func() bool { return d.Stats().QueueDepth == 0 }, testutil.WithTimeout(time.Second), testutil.WithInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() = %v, want deadline exceeded", err)
	}
}

type recordingMetrics struct {
	delivered, failed, dropped, skipped atomic.Int64
}

func (m *recordingMetrics) RecordDispatcherDelivered(context.Context, float64) { m.delivered.Add(1) }
func (m *recordingMetrics) RecordDispatcherFailed(context.Context) { m.failed.Add(1) }
func (m *recordingMetrics) RecordDispatcherDropped(context.Context) { m.dropped.Add(1) }
func (m *recordingMetrics) RecordDispatcherSkipped(context.Context) { m.skipped.Add(1) }
func (m *recordingMetrics) RecordDispatcherQueueSize(context.Context, int64) {}

func TestMemoryDispatcher_Metrics(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	metrics := &recordingMetrics{}
	d := NewMemory(MemoryConfig{Workers: 1}, metrics)
	_ = d.Dispatch(testEvent(server.URL))
	closeDispatcher(t, d)

	if got := metrics.delivered.Load(); got != 1 {
		t.Errorf("expected 1 delivered metric, got %d", got)
	}
}
