package progress

import (
	"log/slog"
	"preview/internal/dispatcher"
	"preview/internal/preview"
	"preview/pkg/cloudevent"
	"slices"
	"sync"
)

// Event types for preview status callbacks
const (
	EventTypeStatus   = "preview.job.status"
	EventTypeFinished = "preview.job.finished"
)

// EventSource is the CloudEvents source of status callbacks.
const EventSource = "preview-client"

// FilteredEvents returns true if the event type should be sent based on the filter.
// If the filter is empty, all events are allowed.
func FilteredEvents(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.Contains(filter, eventType)
}

// BuildStatusEvent creates a status event for a job snapshot.
func BuildStatusEvent(job *preview.PreviewJob) *cloudevent.CloudEvent {
	return cloudevent.New(EventTypeStatus, EventSource, job.ID, statusData(job))
}

// BuildFinishedEvent creates the event sent once a job reaches a terminal state.
func BuildFinishedEvent(job *preview.PreviewJob) *cloudevent.CloudEvent {
	return cloudevent.New(EventTypeFinished, EventSource, job.ID, statusData(job))
}

func statusData(job *preview.PreviewJob) map[string]any {
	data := map[string]any{
		"jobId":      job.ID,
		"user":       job.User,
		"project":    job.BibleSelectionParams.ProjectName,
		"bookFormat": string(job.TypesettingParams.BookFormat),
		"stateCount": len(job.State),
		"state":      string(job.CurrentState()),
	}
	if cur := job.Current(); cur != nil {
		if !cur.Timestamp.IsZero() {
			data["timestamp"] = cur.Timestamp
		}
		if cur.Message != "" {
			data["message"] = cur.Message
		}
	}
	return data
}

// EventObserver posts a CloudEvent to a callback URL whenever a job's state
// history changes. Snapshots without changes are not sent.
type EventObserver struct {
	dispatcher dispatcher.Dispatcher
	url        string
	signingKey string
	filter     []string
	logger     *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]int // unfinished job id -> state entries already reported
}

// NewEventObserver creates an observer that dispatches to url. filter limits
// the event types sent; empty sends all.
func NewEventObserver(d dispatcher.Dispatcher, url, signingKey string, filter []string) *EventObserver {
	return &EventObserver{
		dispatcher: d,
		url:        url,
		signingKey: signingKey,
		filter:     filter,
		logger:     slog.With("component", "callbacks"),
		lastSeen:   make(map[string]int),
	}
}

// OnStatus implements Observer.
func (o *EventObserver) OnStatus(job *preview.PreviewJob) {
	if !o.changed(job) {
		return
	}

	o.send(EventTypeStatus, BuildStatusEvent(job))
	if job.CurrentState().IsTerminal() {
		o.send(EventTypeFinished, BuildFinishedEvent(job))
	}
}

func (o *EventObserver) changed(job *preview.PreviewJob) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	seen, ok := o.lastSeen[job.ID]
	if ok && seen == len(job.State) {
		return false
	}
	// A finished job reports nothing further.
	if job.CurrentState().IsTerminal() {
		delete(o.lastSeen, job.ID)
	} else {
		o.lastSeen[job.ID] = len(job.State)
	}
	return true
}

// tracked returns the number of jobs with unfinished state history.
func (o *EventObserver) tracked() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.lastSeen)
}

func (o *EventObserver) send(eventType string, event *cloudevent.CloudEvent) {
	if !FilteredEvents(eventType, o.filter) {
		return
	}
	err := o.dispatcher.Dispatch(&dispatcher.Event{
		Payload:    event,
		URL:        o.url,
		SigningKey: o.signingKey,
	})
	if err != nil {
		o.logger.Warn("Failed to queue status callback", "jobId", event.Subject, "type", eventType, "error", err)
	}
}
