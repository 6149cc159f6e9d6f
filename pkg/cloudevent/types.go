// Package cloudevent provides CloudEvents 1.0 types and an HTTP sender.
package cloudevent

import (
	"time"

	"github.com/google/uuid"
)

const specVersion = "1.0"

// CloudEvent represents a CloudEvents 1.0 specification event
type CloudEvent struct {
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	Subject         string         `json:"subject,omitempty"`
	ID              string         `json:"id"`
	Time            time.Time      `json:"time"`
	DataContentType string         `json:"datacontenttype"`
	Data            map[string]any `json:"data"`
}

// New creates a CloudEvent with a random identifier and the current time.
func New(eventType, source, subject string, data map[string]any) *CloudEvent {
	return &CloudEvent{
		SpecVersion:     specVersion,
		Type:            eventType,
		Source:          source,
		Subject:         subject,
		ID:              uuid.NewString(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}

// Validate reports whether the required context attributes are set.
func (e *CloudEvent) Validate() error {
	switch {
	case e.SpecVersion != specVersion:
		return &AttributeError{Name: "specversion"}
	case e.Type == "":
		return &AttributeError{Name: "type"}
	case e.Source == "":
		return &AttributeError{Name: "source"}
	case e.ID == "":
		return &AttributeError{Name: "id"}
	}
	return nil
}

// AttributeError reports a missing or invalid context attribute.
type AttributeError struct {
	Name string
}

func (e *AttributeError) Error() string {
	return "cloudevent: missing or invalid attribute " + e.Name
}
