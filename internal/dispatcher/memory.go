package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"preview/pkg/backoff"
	"preview/pkg/circuitbreaker"
	"preview/pkg/cloudevent"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryDispatcher queues events in a bounded channel and delivers them with
// a worker pool. Events are delivered in queue order per worker only; callers
// must not rely on cross-event ordering.
type MemoryDispatcher struct {
	queue    chan *Event
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	config   MemoryConfig
	logger   *slog.Logger
	metrics  MetricsRecorder

	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	skipped      atomic.Int64
	retriesTotal atomic.Int64

	mu     sync.RWMutex // guards closed against concurrent Dispatch
	closed bool
	wg     sync.WaitGroup
	stop   chan struct{}
}

// MetricsRecorder is an optional interface for recording dispatcher metrics.
type MetricsRecorder interface {
	RecordDispatcherDelivered(ctx context.Context, durationSeconds float64)
	RecordDispatcherFailed(ctx context.Context)
	RecordDispatcherDropped(ctx context.Context)
	RecordDispatcherSkipped(ctx context.Context)
	RecordDispatcherQueueSize(ctx context.Context, size int64)
}

// NewMemory creates and starts an in-memory dispatcher.
func NewMemory(cfg MemoryConfig, metrics MetricsRecorder) *MemoryDispatcher {
	cfg = cfg.withDefaults()

	d := &MemoryDispatcher{
		queue:  make(chan *Event, cfg.BufferSize),
		sender: cloudevent.NewSender(cfg.HTTPTimeout, cfg.UserAgent),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
		}),
		config:  cfg,
		logger:  slog.With("component", "dispatcher"),
		metrics: metrics,
		stop:    make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.worker()
	}
	if metrics != nil {
		go d.reportQueueSize()
	}

	d.logger.Debug("Dispatcher started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return d
}

func (d *MemoryDispatcher) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.metrics.RecordDispatcherQueueSize(context.Background(), int64(len(d.queue)))
		}
	}
}

// Dispatch implements Dispatcher.
func (d *MemoryDispatcher) Dispatch(event *Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- event:
		d.queued.Add(1)
		return nil
	default:
		d.dropped.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherDropped(context.Background())
		}
		d.logger.Warn("Event dropped, buffer full", "destination", extractHost(event.URL), "type", event.Payload.Type)
		return ErrBufferFull
	}
}

// Stats implements Dispatcher.
func (d *MemoryDispatcher) Stats() Stats {
	return Stats{
		QueueDepth:   len(d.queue),
		Queued:       d.queued.Load(),
		Delivered:    d.delivered.Load(),
		Failed:       d.failed.Load(),
		Dropped:      d.dropped.Load(),
		Skipped:      d.skipped.Load(),
		RetriesTotal: d.retriesTotal.Load(),
		BreakersOpen: d.breakers.Stats().Open,
	}
}

// Close implements Dispatcher.
func (d *MemoryDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	// No Dispatch can be sending once closed is set under the write lock.
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(d.stop)
		d.logger.Debug("Dispatcher drained",
			"delivered", d.delivered.Load(),
			"failed", d.failed.Load(),
			"dropped", d.dropped.Load(),
			"skipped", d.skipped.Load(),
		)
		return nil
	case <-ctx.Done():
		close(d.stop)
		d.logger.Warn("Dispatcher drain timed out", "remaining", len(d.queue))
		return ctx.Err()
	}
}

func (d *MemoryDispatcher) worker() {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

// deliver sends one event through its destination's circuit breaker.
func (d *MemoryDispatcher) deliver(event *Event) {
	host := extractHost(event.URL)
	breaker := d.breakers.Get(host)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	err := breaker.Execute(func() error {
		return d.sendWithRetry(ctx, event)
	})

	switch {
	case err == nil:
		d.delivered.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherDelivered(ctx, time.Since(start).Seconds())
		}
	case errors.Is(err, circuitbreaker.ErrOpen):
		d.skipped.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherSkipped(ctx)
		}
		d.logger.Debug("Event skipped, circuit open", "destination", host, "type", event.Payload.Type)
	default:
		d.failed.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherFailed(ctx)
		}
		d.logger.Warn("Delivery failed", "destination", host, "type", event.Payload.Type, "error", err)
	}
}

func (d *MemoryDispatcher) sendWithRetry(ctx context.Context, event *Event) error {
	var lastErr error
	for attempt := range d.config.MaxRetries + 1 {
		if attempt > 0 {
			d.retriesTotal.Add(1)
			if err := backoff.Wait(ctx, attempt, d.config.Backoff); err != nil {
				return err
			}
		}

		lastErr = d.sender.Send(ctx, event.URL, event.Payload, event.SigningKey)
		if lastErr == nil || cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// extractHost extracts the host from a URL for circuit breaker keying.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

// Verify MemoryDispatcher implements Dispatcher
var _ Dispatcher = (*MemoryDispatcher)(nil)
