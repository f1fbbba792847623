// Package bus distributes dispatch lifecycle events to observers such as the
// websocket event stream and the CLI's debug output.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle event.
type EventType string

const (
	// EventDispatchStart fires when a worker picks up an utterance.
	EventDispatchStart EventType = "dispatch_start"
	// EventDispatchResult carries the normalized response.
	EventDispatchResult EventType = "dispatch_result"
	// EventDispatchProgress reports file-analysis progress.
	EventDispatchProgress EventType = "dispatch_progress"
	// EventDispatchError reports an orchestration failure.
	EventDispatchError EventType = "dispatch_error"
	// EventDispatchDone fires once per worker, after everything else.
	EventDispatchDone EventType = "dispatch_done"
)

// Event is one lifecycle notification.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Utterance   string `json:"utterance,omitempty"`
	CommandType string `json:"command_type,omitempty"`
	Content     string `json:"content,omitempty"`
	Progress    int    `json:"progress,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}
