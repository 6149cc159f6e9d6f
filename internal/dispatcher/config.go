package dispatcher

import (
	"preview/internal/config"
	"preview/pkg/backoff"
	"time"
)

// MemoryConfig holds configuration for the in-memory dispatcher.
type MemoryConfig struct {
	BufferSize       int             // pending events buffer (default: 256)
	Workers          int             // concurrent delivery goroutines (default: 2)
	HTTPTimeout      time.Duration   // per-request timeout (default: 10s)
	MaxRetries       int             // retries after the first attempt (default: 3)
	Backoff          *backoff.Config // delay between retries, nil uses backoff defaults
	BreakerThreshold int             // consecutive failed deliveries before a destination is skipped (default: 5)
	BreakerCooldown  time.Duration   // how long a destination is skipped (default: 30s)
	UserAgent        string
}

// LoadConfigFromEnv loads dispatcher configuration from PREVIEW_CALLBACK_* variables.
func LoadConfigFromEnv() MemoryConfig {
	cfg := MemoryConfig{
		BufferSize:  config.GetIntEnv("PREVIEW_CALLBACK_BUFFER", 256),
		Workers:     config.GetIntEnv("PREVIEW_CALLBACK_WORKERS", 2),
		HTTPTimeout: config.GetDurationEnv("PREVIEW_CALLBACK_TIMEOUT", 10*time.Second),
		MaxRetries:  config.GetIntEnv("PREVIEW_CALLBACK_RETRIES", 3),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "preview-client/1"
	}
	return c
}
