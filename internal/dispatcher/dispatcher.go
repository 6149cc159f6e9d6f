// Package dispatcher delivers preview status callbacks asynchronously with
// buffering, retry and a per-destination circuit breaker.
package dispatcher

import (
	"context"
	"errors"
	"preview/pkg/cloudevent"
)

var (
	// ErrBufferFull is returned when the buffer is full and the event is dropped.
	ErrBufferFull = errors.New("dispatcher buffer full, event dropped")

	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher is closed")
)

// Dispatcher handles async delivery of events.
type Dispatcher interface {
	// Dispatch queues an event for delivery. Non-blocking.
	Dispatch(event *Event) error

	// Stats returns current dispatcher statistics.
	Stats() Stats

	// Close stops accepting events and delivers what is queued.
	// The context deadline controls how long to wait for the drain.
	Close(ctx context.Context) error
}

// Event is a CloudEvent addressed to a callback URL.
type Event struct {
	Payload    *cloudevent.CloudEvent
	URL        string
	SigningKey string // HMAC key, empty = unsigned
}

// Stats holds dispatcher statistics.
type Stats struct {
	QueueDepth   int
	Queued       int64
	Delivered    int64
	Failed       int64 // gave up after retries
	Dropped      int64 // buffer full
	Skipped      int64 // destination circuit open
	RetriesTotal int64
	BreakersOpen int
}
