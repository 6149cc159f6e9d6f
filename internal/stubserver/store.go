// Package stubserver simulates a typesetting preview server for local runs
// and integration tests. Jobs advance through their stages on a fixed clock
// rather than doing any rendering.
package stubserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"preview/internal/apperrors"
	"preview/internal/preview"
	"preview/internal/setup"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Ready after the store has been closed.
var ErrClosed = errors.New("store closed")

// Config holds configuration for the simulated server.
type Config struct {
	Version    string        // reported by the status probe
	StageDelay time.Duration // time spent in each stage (0 = finish immediately)
	Retention  time.Duration // finished jobs older than this are pruned (default: 1h)
	Now        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Version == "" {
		c.Version = "0.0.0-stub"
	}
	if c.StageDelay < 0 {
		c.StageDelay = 0
	}
	if c.Retention <= 0 {
		c.Retention = time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type entry struct {
	job         *preview.PreviewJob // as submitted, with an empty history
	created     time.Time
	failure     string // non-empty when the job will end in Error
	cancelledAt time.Time
}

// Store keeps simulated jobs in memory. It is safe for concurrent use.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	jobs   map[string]*entry
	closed bool
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:    cfg.withDefaults(),
		logger: slog.With("component", "stubserver"),
		jobs:   make(map[string]*entry),
	}
}

// Status returns the server availability response.
func (s *Store) Status() *preview.ServerStatus {
	return &preview.ServerStatus{Version: s.cfg.Version}
}

// Create validates and accepts a new job. The returned copy carries the
// assigned identifier and an empty state history.
func (s *Store) Create(ctx context.Context, job *preview.PreviewJob) (*preview.PreviewJob, error) {
	if err := validate(job); err != nil {
		return nil, err
	}

	e := &entry{
		job:     job.Clone(),
		created: s.cfg.Now(),
	}
	e.job.ID = uuid.NewString()
	e.job.State = []preview.PreviewJobState{}
	if unknown := unknownBooks(job.BibleSelectionParams.SelectedBooks); len(unknown) > 0 {
		e.failure = "unknown book code(s): " + strings.Join(unknown, ", ")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.Internal("store.create", ErrClosed)
	}
	s.jobs[e.job.ID] = e
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Preview job accepted",
		"jobId", e.job.ID,
		"user", job.User,
		"project", job.BibleSelectionParams.ProjectName,
		"format", job.TypesettingParams.BookFormat,
	)
	return e.job.Clone(), nil
}

// Get returns the current snapshot of a job.
func (s *Store) Get(ctx context.Context, id string) (*preview.PreviewJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	return s.snapshot(e, s.cfg.Now()), nil
}

// Cancel stops a job that has not reached a terminal state. Cancelling an
// already cancelled job returns its snapshot unchanged.
func (s *Store) Cancel(ctx context.Context, id string) (*preview.PreviewJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	now := s.cfg.Now()
	current := s.snapshot(e, now)
	switch state := current.CurrentState(); {
	case state == preview.StateCancelled:
		return current, nil
	case state.IsTerminal():
		return nil, apperrors.Conflict("job", id, fmt.Sprintf("job already finished with state %s", state))
	}

	e.cancelledAt = now
	s.logger.InfoContext(ctx, "Preview job cancelled", "jobId", id)
	return s.snapshot(e, now), nil
}

// Prune removes finished jobs created more than the retention period ago
// and returns how many were removed.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	removed := 0
	for id, e := range s.jobs {
		if now.Sub(e.created) < s.cfg.Retention {
			continue
		}
		if s.snapshot(e, now).CurrentState().IsTerminal() {
			delete(s.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Pruned finished jobs", "count", removed)
	}
	return removed
}

// RunJanitor prunes finished jobs every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune()
		}
	}
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Ready reports whether the store accepts work.
func (s *Store) Ready(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close stops the store from accepting new jobs. Existing jobs stay readable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// snapshot computes the job history as of now. Each stage is entered one
// StageDelay after the previous one; cancellation freezes the history and
// appends a Cancelled entry. Callers hold s.mu.
func (s *Store) snapshot(e *entry, now time.Time) *preview.PreviewJob {
	final := preview.PreviewJobState{State: preview.StatePreviewGenerated}
	if e.failure != "" {
		final = preview.PreviewJobState{State: preview.StateError, Message: e.failure}
	}
	stages := []preview.PreviewJobState{
		{State: preview.StateSubmitted},
		{State: preview.StateStarted},
		final,
	}

	cutoff := now
	if !e.cancelledAt.IsZero() {
		cutoff = e.cancelledAt
	}

	job := e.job.Clone()
	for i, stage := range stages {
		at := e.created.Add(time.Duration(i+1) * s.cfg.StageDelay)
		if at.After(cutoff) {
			break
		}
		stage.Timestamp = at.UTC()
		job.State = append(job.State, stage)
	}
	if !e.cancelledAt.IsZero() {
		job.State = append(job.State, preview.PreviewJobState{
			State:     preview.StateCancelled,
			Timestamp: e.cancelledAt.UTC(),
			Message:   "cancelled by request",
		})
	}
	return job
}

func validate(job *preview.PreviewJob) error {
	if job == nil {
		return apperrors.Validation("job", "job is required")
	}
	if job.ID != "" {
		return apperrors.Validation("id", "job id is assigned by the server")
	}
	if job.User == "" {
		return apperrors.Validation("user", "user is required")
	}
	if job.BibleSelectionParams.ProjectName == "" {
		return apperrors.Validation("bibleSelectionParams.projectName", "project name is required")
	}
	if len(job.State) != 0 {
		return apperrors.Validation("state", "a new job must have an empty state history")
	}
	return setup.ValidateParams(job.TypesettingParams)
}
