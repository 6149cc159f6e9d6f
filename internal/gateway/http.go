package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"preview/internal/apperrors"
	"preview/internal/preview"
	"preview/pkg/backoff"
	"strconv"
	"strings"
	"time"
)

const (
	maxErrorBodySize = 4 << 10  // 4 KB of an error response is kept for messages
	maxJobBodySize   = 1 << 20  // 1 MB
	userAgent        = "preview-client/1"
	contentTypeJSON  = "application/json"
	downloadFileMode = 0o644
)

// MetricsRecorder is an optional interface for recording gateway call metrics.
type MetricsRecorder interface {
	RecordGatewayCall(ctx context.Context, op string, success bool, durationSeconds float64)
}

// Config holds configuration for the HTTP gateway.
type Config struct {
	BaseURL       string        // e.g. http://localhost:9875/api
	APIKey        string        // Bearer token, empty = no auth header
	Timeout       time.Duration // per-request timeout (default: 60s)
	StatusRetries int           // extra status probe attempts on 5xx/transport errors
	Backoff       *backoff.Config
	DownloadDir   string // artifact directory (default: os.TempDir())
	Metrics       MetricsRecorder
}

// HTTPGateway talks JSON over HTTP to the preview server.
type HTTPGateway struct {
	baseURL     *url.URL
	apiKey      string
	client      *http.Client
	retries     int
	backoff     *backoff.Config
	downloadDir string
	metrics     MetricsRecorder
	logger      *slog.Logger
}

// NewHTTP creates an HTTP gateway with standard transport settings.
func NewHTTP(cfg Config) (*HTTPGateway, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URI: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server URI scheme must be http or https, got %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("server URI must have a host")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	dir := cfg.DownloadDir
	if dir == "" {
		dir = os.TempDir()
	}
	retries := cfg.StatusRetries
	if retries < 0 {
		retries = 0
	}

	return &HTTPGateway{
		baseURL: base,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retries:     retries,
		backoff:     cfg.Backoff,
		downloadDir: dir,
		metrics:     cfg.Metrics,
		logger:      slog.With("component", "gateway", "server", base.Host),
	}, nil
}

// CheckServerStatus implements Gateway. Transport errors and 5xx responses
// are retried with exponential backoff.
func (g *HTTPGateway) CheckServerStatus(ctx context.Context) (*preview.ServerStatus, error) {
	var lastErr error
	for attempt := range g.retries + 1 {
		if attempt > 0 {
			if err := backoff.Wait(ctx, attempt, g.backoff); err != nil {
				return nil, apperrors.Connectivity(err)
			}
			g.logger.Debug("Retrying server status check", "attempt", attempt, "error", lastErr)
		}

		status, err := g.checkServerStatus(ctx)
		if err == nil {
			return status, nil
		}
		lastErr = err
		if IsClientError(err) {
			break
		}
	}
	return nil, apperrors.Connectivity(lastErr)
}

func (g *HTTPGateway) checkServerStatus(ctx context.Context) (*preview.ServerStatus, error) {
	resp, err := g.do(ctx, "checkServerStatus", http.MethodGet, "/status", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return preview.DecodeServerStatus(io.LimitReader(resp.Body, maxJobBodySize))
}

// CreateJob implements Gateway.
func (g *HTTPGateway) CreateJob(ctx context.Context, job *preview.PreviewJob) (*preview.PreviewJob, error) {
	if job.Submitted() {
		return nil, apperrors.Submission(fmt.Errorf("job already has id %s", job.ID))
	}
	body, err := preview.MarshalJob(job)
	if err != nil {
		return nil, apperrors.Submission(err)
	}

	resp, err := g.do(ctx, "createJob", http.MethodPost, "/jobs", nil, body)
	if err != nil {
		return nil, apperrors.Submission(err)
	}
	defer resp.Body.Close()

	created, err := preview.DecodeJob(io.LimitReader(resp.Body, maxJobBodySize))
	if err != nil {
		return nil, apperrors.Submission(err)
	}
	if !created.Submitted() {
		return nil, apperrors.Submission(fmt.Errorf("server did not assign a job id"))
	}
	return created, nil
}

// GetJob implements Gateway.
func (g *HTTPGateway) GetJob(ctx context.Context, id string) (*preview.PreviewJob, error) {
	resp, err := g.do(ctx, "getJob", http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, apperrors.Poll(id, "", err)
	}
	defer resp.Body.Close()

	job, err := preview.DecodeJob(io.LimitReader(resp.Body, maxJobBodySize))
	if err != nil {
		return nil, apperrors.Poll(id, "", err)
	}
	return job, nil
}

// GetFile implements Gateway. The file is written to the download directory
// as <id>.pdf or <id>.zip; an existing file of that name is replaced.
func (g *HTTPGateway) GetFile(ctx context.Context, job *preview.PreviewJob, wantArchive bool) (*preview.Artifact, error) {
	ext := ".pdf"
	if wantArchive {
		ext = ".zip"
	}
	destPath, err := artifactPath(g.downloadDir, job.ID, ext)
	if err != nil {
		return nil, apperrors.Download(job.ID, err)
	}

	query := url.Values{"archive": {strconv.FormatBool(wantArchive)}}
	resp, err := g.do(ctx, "getFile", http.MethodGet, "/jobs/"+url.PathEscape(job.ID)+"/file", query, nil)
	if err != nil {
		return nil, apperrors.Download(job.ID, err)
	}
	defer resp.Body.Close()

	written, err := writeFileAtomic(destPath, resp.Body)
	if err != nil {
		return nil, apperrors.Download(job.ID, err)
	}

	g.logger.Debug("Downloaded preview file", "jobId", job.ID, "bytes", written, "path", destPath)
	return &preview.Artifact{
		JobID:   job.ID,
		Path:    destPath,
		Size:    written,
		Archive: wantArchive,
	}, nil
}

// do sends a request and returns the response for 2xx status codes.
// The caller closes the body.
func (g *HTTPGateway) do(ctx context.Context, op, method, path string, query url.Values, body []byte) (*http.Response, error) {
	start := time.Now()
	resp, err := g.send(ctx, method, path, query, body)
	if g.metrics != nil {
		g.metrics.RecordGatewayCall(ctx, op, err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		g.logger.Debug("Preview server call failed", "op", op, "error", err)
	}
	return resp, err
}

func (g *HTTPGateway) send(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	u := g.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// artifactPath returns the download path for a job id. The id is assigned by
// the server and must name a single file inside dir.
func artifactPath(dir, id, ext string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return "", fmt.Errorf("job id %q is not a valid file name", id)
	}
	return filepath.Join(dir, id+ext), nil
}

// writeFileAtomic copies r to a temporary file next to destPath and renames
// it into place, so a failed download never leaves a partial artifact.
func writeFileAtomic(destPath string, r io.Reader) (int64, error) {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".preview-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, downloadFileMode); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to move file into place: %w", err)
	}
	return written, nil
}

// Verify HTTPGateway implements Gateway
var _ Gateway = (*HTTPGateway)(nil)
