package cloudevent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		statusCode int
		expected   string
	}{
		{400, "HTTP 400"},
		{404, "HTTP 404"},
		{500, "HTTP 500"},
		{503, "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			err := &HTTPError{StatusCode: tt.statusCode}
			if err.Error() != tt.expected {
				t.Errorf("HTTPError{%d}.Error() = %q, want %q", tt.statusCode, err.Error(), tt.expected)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "400 Bad Request",
			err:      &HTTPError{StatusCode: 400},
			expected: true,
		},
		{
			name:     "401 Unauthorized",
			err:      &HTTPError{StatusCode: 401},
			expected: true,
		},
		{
			name:     "404 Not Found",
			err:      &HTTPError{StatusCode: 404},
			expected: true,
		},
		{
			name:     "499 client error boundary",
			err:      &HTTPError{StatusCode: 499},
			expected: true,
		},
		{
			name:     "500 Internal Server Error",
			err:      &HTTPError{StatusCode: 500},
			expected: false,
		},
		{
			name:     "503 Service Unavailable",
			err:      &HTTPError{StatusCode: 503},
			expected: false,
		},
		{
			name:     "399 not a client error",
			err:      &HTTPError{StatusCode: 399},
			expected: false,
		},
		{
			name:     "non-HTTP error",
			err:      context.DeadlineExceeded,
			expected: false,
		},
		{
			name:     "wrapped 422",
			err:      fmt.Errorf("deliver: %w", &HTTPError{StatusCode: 422}),
			expected: true,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IsClientError(tt.err)
			if got != tt.expected {
				t.Errorf("IsClientError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestSign(t *testing.T) {
	t.Parallel()
	payload := []byte(`{"test":"data"}`)
	key := "secret-key"

	signature := Sign(payload, key)

	if len(signature) < 7 || signature[:7] != "sha256=" {
		t.Errorf("signature should start with 'sha256=', got %q", signature)
	}

	// SHA256 = 32 bytes = 64 hex chars
	if hexPart := signature[7:]; len(hexPart) != 64 {
		t.Errorf("signature hex part should be 64 chars, got %d", len(hexPart))
	}

	if Sign(payload, key) != signature {
		t.Error("signature should be deterministic")
	}
	if Sign(payload, "different-key") == signature {
		t.Error("different keys should produce different signatures")
	}
	if !Verify(payload, key, signature) {
		t.Error("Verify rejected a valid signature")
	}
	if Verify([]byte(`{"test":"tampered"}`), key, signature) {
		t.Error("Verify accepted a signature for a different payload")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	a := New("preview.job.status", "preview-client", "job-1", map[string]any{"state": "Started"})
	b := New("preview.job.status", "preview-client", "job-1", nil)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected unique ids, got %q and %q", a.ID, b.ID)
	}
	if a.SpecVersion != "1.0" {
		t.Errorf("SpecVersion = %q, want 1.0", a.SpecVersion)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(e *CloudEvent)
		attr   string
	}{
		{"missing type", func(e *CloudEvent) { e.Type = "" }, "type"},
		{"missing source", func(e *CloudEvent) { e.Source = "" }, "source"},
		{"missing id", func(e *CloudEvent) { e.ID = "" }, "id"},
		{"wrong version", func(e *CloudEvent) { e.SpecVersion = "0.3" }, "specversion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := New("t", "s", "", nil)
			tt.mutate(e)
			err := e.Validate()
			ae, ok := err.(*AttributeError)
			if !ok {
				t.Fatalf("expected *AttributeError, got %v", err)
			}
			if ae.Name != tt.attr {
				t.Errorf("Name = %q, want %q", ae.Name, tt.attr)
			}
		})
	}
}

func TestSender_Send(t *testing.T) {
	t.Parallel()
	var (
		gotHeaders http.Header
		gotBody    []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewSender(5*time.Second, "preview-client/1")
	event := New("preview.job.status", "preview-client", "job-1", map[string]any{"state": "Started"})

	if err := sender.Send(context.Background(), server.URL, event, "key"); err != nil {
		t.Fatalf("Send() = %v", err)
	}

	if got := gotHeaders.Get("Content-Type"); got != "application/cloudevents+json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := gotHeaders.Get("Ce-Type"); got != "preview.job.status" {
		t.Errorf("Ce-Type = %q", got)
	}
	if got := gotHeaders.Get("Ce-Subject"); got != "job-1" {
		t.Errorf("Ce-Subject = %q", got)
	}
	if got := gotHeaders.Get("User-Agent"); got != "preview-client/1" {
		t.Errorf("User-Agent = %q", got)
	}
	if !Verify(gotBody, "key", gotHeaders.Get(SignatureHeader)) {
		t.Error("signature header does not match body")
	}

	var decoded CloudEvent
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body is not a CloudEvent: %v", err)
	}
	if decoded.ID != event.ID || decoded.Data["state"] != "Started" {
		t.Errorf("decoded event = %+v", decoded)
	}
}

func TestSender_SendUnsigned(t *testing.T) {
	t.Parallel()
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get(SignatureHeader)
	}))
	defer server.Close()

	sender := NewSender(5*time.Second, "")
	if err := sender.Send(context.Background(), server.URL, New("t", "s", "", nil), ""); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if signature != "" {
		t.Errorf("expected no signature header, got %q", signature)
	}
}

func TestSender_SendErrors(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sender := NewSender(5*time.Second, "")

	err := sender.Send(context.Background(), server.URL, New("t", "s", "", nil), "")
	he, ok := err.(*HTTPError)
	if !ok || he.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected HTTP 503 error, got %v", err)
	}

	invalid := New("t", "s", "", nil)
	invalid.Source = ""
	if err := sender.Send(context.Background(), server.URL, invalid, ""); err == nil {
		t.Error("expected error for invalid event")
	}
}
