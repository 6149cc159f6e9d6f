// Package workflow drives a preview job from submission to a downloaded
// artifact: submit, poll until the job is terminal, then download.
//
// Cancellation is requested by cancelling the context passed to Run. It is
// observed before submission and during the wait between polls, never in the
// middle of a call to the preview server: in-flight calls run to completion
// and cancellation only prevents the next step. A cancelled run is not an
// error; Run returns a Result with OutcomeCancelled and a nil error.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"preview/internal/apperrors"
	"preview/internal/gateway"
	"preview/internal/preview"
	"preview/internal/progress"
	"time"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Result describes a finished run. It is returned on every path, including
// failures, so callers can inspect the last snapshot seen.
type Result struct {
	Outcome  Outcome
	Job      *preview.PreviewJob // last snapshot, nil if the job was never created
	Artifact *preview.Artifact   // set when Outcome is OutcomeCompleted
	Polls    int
	Elapsed  time.Duration
}

// Config controls polling.
type Config struct {
	PollInterval    time.Duration // wait between status checks (default: 5s)
	Timeout         time.Duration // poll loop budget measured from submission (default: 15m, negative = none)
	MaxPolls        int           // poll iteration budget (0 = unlimited)
	SkipStatusCheck bool          // skip the pre-flight server probe
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Minute
	}
	if c.MaxPolls < 0 {
		c.MaxPolls = 0
	}
	return c
}

// MetricsRecorder is an optional interface for recording run metrics.
type MetricsRecorder interface {
	RecordRunStarted(ctx context.Context, format string)
	RecordRunFinished(ctx context.Context, format, outcome string, durationSeconds float64)
	RecordPoll(ctx context.Context, state string)
}

// Orchestrator runs preview jobs against a Gateway. It holds no per-job
// state, so one Orchestrator may run many jobs concurrently.
type Orchestrator struct {
	gateway gateway.Gateway
	config  Config
	metrics MetricsRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records run metrics.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger replaces the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator.
func New(gw gateway.Gateway, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway: gw,
		config:  cfg.withDefaults(),
		logger:  slog.With("component", "workflow"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run submits job, polls it until it is terminal and downloads the preview
// (or the full archive when wantArchive is set). observer, which may be nil,
// is called once per successful status check before the result of that
// check is acted on.
//
// Errors carry one of the apperrors kinds ErrConnectivity, ErrSubmission,
// ErrPoll, ErrRemoteJob, ErrDownload or ErrTimeout.
func (o *Orchestrator) Run(ctx context.Context, job *preview.PreviewJob, wantArchive bool, observer progress.Observer) (*Result, error) {
	if job == nil {
		return &Result{Outcome: OutcomeFailed}, apperrors.Validation("job", "job is required")
	}
	if observer == nil {
		observer = progress.ObserverFunc(func(*preview.PreviewJob) {})
	}
	r := &run{
		Orchestrator: o,
		observer:     observer,
		format:       string(job.TypesettingParams.BookFormat),
		logger:       o.logger.With("project", job.BibleSelectionParams.ProjectName),
		start:        o.now(),
	}
	// Calls to the server are never aborted by cancellation.
	netCtx := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		r.logger.Info("Preview cancelled before start")
		return r.cancelled(ctx)
	}

	if !o.config.SkipStatusCheck {
		status, err := o.gateway.CheckServerStatus(netCtx)
		if err != nil {
			return r.fail(ctx, wrap(err, apperrors.ErrConnectivity, apperrors.Connectivity))
		}
		r.logger.Debug("Preview server available", "version", status.Version)
	}

	if ctx.Err() != nil {
		r.logger.Info("Preview cancelled before submission")
		return r.cancelled(ctx)
	}

	if o.metrics != nil {
		o.metrics.RecordRunStarted(ctx, r.format)
	}
	r.started = true

	created, err := o.gateway.CreateJob(netCtx, job)
	if err != nil {
		return r.fail(ctx, wrap(err, apperrors.ErrSubmission, apperrors.Submission))
	}
	r.job = created
	r.logger = r.logger.With("jobId", created.ID)
	r.logger.Info("Preview job submitted", "user", created.User, "bookFormat", r.format)

	final, err := r.poll(ctx, netCtx)
	if err != nil || final == nil {
		return r.result(ctx, err)
	}

	// Cancellation after a terminal state has no effect: the job is done.
	artifact, err := o.gateway.GetFile(netCtx, final, wantArchive)
	if err != nil {
		return r.fail(ctx, wrap(err, apperrors.ErrDownload, func(cause error) error {
			return apperrors.Download(final.ID, cause)
		}))
	}
	r.artifact = artifact
	r.logger.Info("Preview downloaded", "path", artifact.Path, "bytes", artifact.Size, "archive", artifact.Archive)
	return r.finish(ctx, OutcomeCompleted, nil)
}

// run is the state of a single Run call.
type run struct {
	*Orchestrator
	observer progress.Observer
	format   string
	logger   *slog.Logger
	start    time.Time
	started  bool // counted in metrics

	job      *preview.PreviewJob
	artifact *preview.Artifact
	polls    int
}

// poll waits for a terminal state. It returns the PreviewGenerated snapshot,
// or nil with a nil error when cancelled.
func (r *run) poll(ctx, netCtx context.Context) (*preview.PreviewJob, error) {
	var deadline time.Time
	if r.config.Timeout > 0 {
		deadline = r.now().Add(r.config.Timeout)
	}
	id := r.job.ID

	for {
		wait := r.config.PollInterval
		if !deadline.IsZero() {
			wait = min(wait, deadline.Sub(r.now()))
		}
		if !sleep(ctx, wait) {
			r.logger.Info("Preview cancelled while waiting for job", "polls", r.polls)
			return nil, nil
		}

		snap, err := r.gateway.GetJob(netCtx, id)
		r.polls++
		if err != nil {
			last := r.job.CurrentState()
			return nil, withLastState(wrap(err, apperrors.ErrPoll, func(cause error) error {
				return apperrors.Poll(id, string(last), cause)
			}), last)
		}

		r.checkOrdering(snap)
		r.job = snap
		state := snap.CurrentState()
		if r.metrics != nil {
			r.metrics.RecordPoll(ctx, string(state))
		}

		r.observer.OnStatus(snap)

		switch state {
		case preview.StatePreviewGenerated:
			r.logger.Debug("Preview generated", "polls", r.polls)
			return snap, nil
		case preview.StateError, preview.StateCancelled:
			var msg string
			if cur := snap.Current(); cur != nil {
				msg = cur.Message
			}
			return nil, apperrors.RemoteJob(id, string(state), msg)
		case "", preview.StateSubmitted, preview.StateStarted:
		default:
			r.logger.Warn("Unknown job state, continuing to poll", "state", state)
		}

		if r.config.MaxPolls > 0 && r.polls >= r.config.MaxPolls {
			return nil, apperrors.Timeout(id, string(state), r.now().Sub(r.start), r.polls)
		}
		if !deadline.IsZero() && !r.now().Before(deadline) {
			return nil, apperrors.Timeout(id, string(state), r.now().Sub(r.start), r.polls)
		}
	}
}

// checkOrdering logs snapshots that break the expected progression. The last
// entry of the new snapshot is authoritative regardless.
func (r *run) checkOrdering(next *preview.PreviewJob) {
	prev := r.job
	if next.ID != prev.ID {
		r.logger.Warn("Server returned a snapshot for a different job", "gotJobId", next.ID)
	}
	if len(next.State) < len(prev.State) {
		r.logger.Warn("Job state history shrank", "previous", len(prev.State), "current", len(next.State))
	}
	p, n := prev.Current(), next.Current()
	if p != nil && n != nil && !p.Timestamp.IsZero() && n.Timestamp.Before(p.Timestamp) {
		r.logger.Warn("Job state went back in time",
			"previousState", p.State, "previousTime", p.Timestamp,
			"currentState", n.State, "currentTime", n.Timestamp,
		)
	}
	for i := 1; i < len(next.State); i++ {
		if next.State[i].Timestamp.Before(next.State[i-1].Timestamp) {
			r.logger.Debug("Job state history out of order", "index", i, "state", next.State[i].State)
			break
		}
	}
}

func (r *run) result(ctx context.Context, err error) (*Result, error) {
	if err != nil {
		return r.fail(ctx, err)
	}
	return r.cancelled(ctx)
}

func (r *run) cancelled(ctx context.Context) (*Result, error) {
	return r.finish(ctx, OutcomeCancelled, nil)
}

func (r *run) fail(ctx context.Context, err error) (*Result, error) {
	r.logger.Warn("Preview failed", "kind", apperrors.Kind(err), "polls", r.polls, "error", err)
	return r.finish(ctx, OutcomeFailed, err)
}

func (r *run) finish(ctx context.Context, outcome Outcome, err error) (*Result, error) {
	elapsed := r.now().Sub(r.start)
	if r.started && r.metrics != nil {
		label := string(outcome)
		if err != nil {
			label = apperrors.Kind(err)
		}
		r.metrics.RecordRunFinished(context.WithoutCancel(ctx), r.format, label, elapsed.Seconds())
	}
	return &Result{
		Outcome:  outcome,
		Job:      r.job,
		Artifact: r.artifact,
		Polls:    r.polls,
		Elapsed:  elapsed,
	}, err
}

// wrap classifies a gateway error. Errors already of the expected kind are
// returned unchanged.
func wrap(err, kind error, classify func(error) error) error {
	if errors.Is(err, kind) {
		return err
	}
	return classify(err)
}

// withLastState records the last known job state on a structured error
// that does not carry one yet.
func withLastState(err error, state preview.JobState) error {
	var ae *apperrors.Error
	if state == "" || !errors.As(err, &ae) || ae.LastState != "" {
		return err
	}
	c := *ae
	c.LastState = string(state)
	return &c
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed without cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// String implements fmt.Stringer for log output.
func (r *Result) String() string {
	switch {
	case r.Artifact != nil:
		return fmt.Sprintf("%s: %s", r.Outcome, r.Artifact.Path)
	case r.Job != nil:
		return fmt.Sprintf("%s: job %s", r.Outcome, r.Job.ID)
	default:
		return string(r.Outcome)
	}
}
