// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// Defaults shared by the client and its tests.
const (
	DefaultServerURI     = "http://localhost:9875/api"
	DefaultPollInterval  = 5 * time.Second
	DefaultTargetJobTime = 90 * time.Second
	DefaultJobTimeout    = 15 * time.Minute
	DefaultHTTPTimeout   = 60 * time.Second
	DefaultStatusRetries = 2
)

// ClientConfig holds configuration for the preview client.
type ClientConfig struct {
	ServerURI       string
	APIKey          string
	PollInterval    time.Duration // Wait between job status checks
	TargetJobTime   time.Duration // Expected job duration, drives progress estimates
	JobTimeout      time.Duration // Overall poll budget before giving up
	MaxPolls        int           // Poll iteration budget (0 = unlimited)
	HTTPTimeout     time.Duration // Per-request timeout
	StatusRetries   int           // Extra attempts for the server status probe
	SkipStatusCheck bool
	SetupFile       string // Preview setup descriptor (YAML)
	DownloadDir     string // Where artifacts are written (empty = OS temp dir)
	ProjectsDir     string // Root directory of host projects
	User            string // Overrides the OS user name
	CallbackURL     string // Webhook receiving job status events (empty = disabled)
	CallbackKey     string   // HMAC key for signing callbacks
	CallbackEvents  []string // Event types to send (empty = all)
	MetricsPort     string // Serve /metrics on this port (empty = disabled)
}

// LoadClientConfig loads client configuration from environment variables.
func LoadClientConfig() *ClientConfig {
	cfg := &ClientConfig{
		ServerURI:       GetEnv("PREVIEW_SERVER_URI", DefaultServerURI),
		APIKey:          GetSecretFile(GetEnv("PREVIEW_API_KEY_FILE", "")),
		PollInterval:    GetDurationEnv("PREVIEW_POLL_INTERVAL", DefaultPollInterval),
		TargetJobTime:   GetDurationEnv("PREVIEW_TARGET_JOB_TIME", DefaultTargetJobTime),
		JobTimeout:      GetDurationEnv("PREVIEW_JOB_TIMEOUT", DefaultJobTimeout),
		MaxPolls:        GetIntEnv("PREVIEW_MAX_POLLS", 0),
		HTTPTimeout:     GetDurationEnv("PREVIEW_HTTP_TIMEOUT", DefaultHTTPTimeout),
		StatusRetries:   GetIntEnv("PREVIEW_STATUS_RETRIES", DefaultStatusRetries),
		SkipStatusCheck: GetBoolEnv("PREVIEW_SKIP_STATUS_CHECK", false),
		SetupFile:       GetEnv("PREVIEW_SETUP_FILE", "preview.yaml"),
		DownloadDir:     GetEnv("PREVIEW_DOWNLOAD_DIR", ""),
		ProjectsDir:     GetEnv("PREVIEW_PROJECTS_DIR", "."),
		User:            GetEnv("PREVIEW_USER", ""),
		CallbackURL:     GetEnv("PREVIEW_CALLBACK_URL", ""),
		CallbackKey:     GetSecretFile(GetEnv("PREVIEW_CALLBACK_KEY_FILE", "")),
		CallbackEvents:  GetListEnv("PREVIEW_CALLBACK_EVENTS"),
		MetricsPort:     GetEnv("METRICS_PORT", ""),
	}
	return cfg.withDefaults()
}

// withDefaults fills in invalid values with defaults.
func (c *ClientConfig) withDefaults() *ClientConfig {
	if c.ServerURI == "" {
		c.ServerURI = DefaultServerURI
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.TargetJobTime <= 0 {
		c.TargetJobTime = DefaultTargetJobTime
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.MaxPolls < 0 {
		c.MaxPolls = 0
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.StatusRetries < 0 {
		c.StatusRetries = DefaultStatusRetries
	}
	return c
}

// ServerConfig holds configuration for the reference preview server.
type ServerConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	Version           string
	StageDelay        time.Duration // Simulated time spent in each job stage
	JobRetention      time.Duration // How long finished jobs stay queryable
	JanitorInterval   time.Duration
	ShutdownDrainWait time.Duration
}

// LoadServerConfig loads reference server configuration from environment variables.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:              GetEnv("PORT", "9875"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		Version:           GetEnv("STUB_VERSION", "0.0.0-stub"),
		StageDelay:        GetDurationEnv("STUB_STAGE_DELAY", 3*time.Second),
		JobRetention:      GetDurationEnv("STUB_JOB_RETENTION", time.Hour),
		JanitorInterval:   GetDurationEnv("STUB_JANITOR_INTERVAL", 5*time.Minute),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 0),
	}
}
