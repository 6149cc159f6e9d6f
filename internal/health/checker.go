// Package health provides health check functionality for liveness and readiness probes.
package health

import (
	"context"
	"sync"
	"time"
)

// ReadinessChecker reports whether a dependency can accept work.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// ReadinessFunc adapts a function to ReadinessChecker.
type ReadinessFunc func(ctx context.Context) error

// Ready implements ReadinessChecker.
func (f ReadinessFunc) Ready(ctx context.Context) error { return f(ctx) }

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status  Status                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Checker runs named readiness checks and caches the combined result.
type Checker struct {
	checks   map[string]ReadinessChecker
	version  string
	timeout  time.Duration
	cacheTTL time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a health checker over the given dependencies.
// With no dependencies the service is never ready.
func NewChecker(version string, checks map[string]ReadinessChecker) *Checker {
	return &Checker{
		checks:   checks,
		version:  version,
		timeout:  5 * time.Second,
		cacheTTL: time.Second,
	}
}

// Liveness reports that the process is serving requests. It never consults
// dependencies.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{Status: StatusHealthy, Version: c.version}
}

// Readiness checks every dependency. Results are cached for a second.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status:  StatusUnhealthy,
			Version: c.version,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}
	if c.cachedReady != nil && time.Since(c.lastCheck) < c.cacheTTL {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	response := &Response{
		Status:  StatusHealthy,
		Version: c.version,
		Checks:  make(map[string]CheckResult, len(c.checks)),
	}
	if len(c.checks) == 0 {
		response.Status = StatusUnhealthy
		response.Checks["backend"] = CheckResult{Status: StatusUnhealthy, Message: "no backend configured"}
	}
	for name, check := range c.checks {
		result := c.run(ctx, check)
		response.Checks[name] = result
		if result.Status != StatusHealthy {
			response.Status = StatusUnhealthy
		}
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) run(ctx context.Context, check ReadinessChecker) CheckResult {
	if check == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := check.Ready(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// SetShuttingDown makes readiness fail from now on, so load balancers stop
// routing new traffic while in-flight requests drain.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
