// Package progress reports preview job status to interested parties.
//
// The workflow calls Observer.OnStatus once per successful status check,
// including checks where nothing changed, so observers can drive a progress
// display even though the server reports no fractional progress.
package progress

import (
	"log/slog"
	"preview/internal/preview"
	"sync"
	"time"
)

// Observer receives job snapshots. It is called from the workflow's
// goroutine, which need not be the goroutine that registered it.
// Snapshots must not be modified.
type Observer interface {
	OnStatus(job *preview.PreviewJob)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(job *preview.PreviewJob)

// OnStatus implements Observer.
func (f ObserverFunc) OnStatus(job *preview.PreviewJob) { f(job) }

type multi []Observer

func (m multi) OnStatus(job *preview.PreviewJob) {
	for _, o := range m {
		o.OnStatus(job)
	}
}

// Multi fans a snapshot out to several observers in order. Nil observers are skipped.
func Multi(observers ...Observer) Observer {
	var m multi
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

// Phase is a coarse progress bucket derived from the job's current state.
type Phase string

const (
	PhaseQueued  Phase = "queued"  // accepted or submitted, not yet picked up
	PhaseRunning Phase = "running" // typesetting in progress
	PhaseDone    Phase = "done"    // preview generated
	PhaseFailed  Phase = "failed"  // error or cancelled on server
)

// Estimate is a progress estimate for one snapshot.
type Estimate struct {
	Phase    Phase
	Fraction float64       // 0..1
	Elapsed  time.Duration // time spent running
}

// maxRunningFraction keeps the estimate below 100% until the job finishes.
const maxRunningFraction = 0.99

// Estimator turns snapshots into progress estimates using the expected job
// duration, measured from the first time the job is seen running.
type Estimator struct {
	target time.Duration
	now    func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	last      float64
}

// NewEstimator creates an estimator for jobs expected to run for target.
func NewEstimator(target time.Duration) *Estimator {
	return newEstimator(target, time.Now)
}

func newEstimator(target time.Duration, now func() time.Time) *Estimator {
	if target <= 0 {
		target = 90 * time.Second
	}
	return &Estimator{target: target, now: now}
}

// Estimate returns the progress estimate for job.
func (e *Estimator) Estimate(job *preview.PreviewJob) Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch job.CurrentState() {
	case preview.StatePreviewGenerated:
		e.last = 1
		return Estimate{Phase: PhaseDone, Fraction: 1, Elapsed: e.elapsed()}
	case preview.StateError, preview.StateCancelled:
		return Estimate{Phase: PhaseFailed, Fraction: e.last, Elapsed: e.elapsed()}
	case preview.StateStarted:
		if e.startedAt.IsZero() {
			e.startedAt = e.now()
		}
		elapsed := e.elapsed()
		fraction := min(float64(elapsed)/float64(e.target), maxRunningFraction)
		// Never move backwards.
		fraction = max(fraction, e.last)
		e.last = fraction
		return Estimate{Phase: PhaseRunning, Fraction: fraction, Elapsed: elapsed}
	default:
		return Estimate{Phase: PhaseQueued, Fraction: e.last}
	}
}

func (e *Estimator) elapsed() time.Duration {
	if e.startedAt.IsZero() {
		return 0
	}
	return e.now().Sub(e.startedAt)
}

// LogObserver logs each snapshot with a progress estimate.
type LogObserver struct {
	logger    *slog.Logger
	estimator *Estimator
}

// NewLogObserver creates an observer logging to logger.
func NewLogObserver(logger *slog.Logger, estimator *Estimator) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger, estimator: estimator}
}

// OnStatus implements Observer.
func (o *LogObserver) OnStatus(job *preview.PreviewJob) {
	state := job.CurrentState()
	if state == "" {
		state = "Accepted"
	}
	attrs := []any{"jobId", job.ID, "state", state}
	if o.estimator != nil {
		est := o.estimator.Estimate(job)
		attrs = append(attrs, "phase", est.Phase, "percent", int(est.Fraction*100))
	}
	if cur := job.Current(); cur != nil && cur.Message != "" {
		attrs = append(attrs, "message", cur.Message)
	}
	o.logger.Info("Preview job status", attrs...)
}

// Recorder keeps every snapshot it observes. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	snapshots []*preview.PreviewJob
}

// OnStatus implements Observer.
func (r *Recorder) OnStatus(job *preview.PreviewJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, job)
}

// Snapshots returns the observed snapshots in order.
func (r *Recorder) Snapshots() []*preview.PreviewJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*preview.PreviewJob, len(r.snapshots))
	copy(out, r.snapshots)
	return out
}

// Count returns the number of observed snapshots.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}
