// Package backoff provides exponential backoff calculation and waiting.
package backoff

import (
	"context"
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s
}

func (c *Config) bounds() (initial, maxBackoff time.Duration) {
	initial = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
	if c != nil {
		if c.Initial > 0 {
			initial = c.Initial
		}
		if c.Max > 0 {
			maxBackoff = c.Max
		}
	}
	return initial, maxBackoff
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, maxBackoff := cfg.bounds()
	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	return time.Duration(d)
}

// Wait sleeps for the backoff of the given attempt or until ctx is done,
// in which case it returns the context error.
func Wait(ctx context.Context, attempt int, cfg *Config) error {
	timer := time.NewTimer(Exponential(attempt, cfg))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
