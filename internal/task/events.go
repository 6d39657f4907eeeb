package task

import (
	"time"

	"murmur/internal/engine"
)

// EventType discriminates the entries of a task's event stream.
type EventType string

const (
	// EventProgress carries a percent update from the native engine.
	EventProgress EventType = "progress"
	// EventState announces a non-terminal state change (pause, resume, cancelling).
	EventState EventType = "state"
	// EventTerminal is the single final event; the stream is closed after it.
	EventTerminal EventType = "terminal"
)

// Event is one entry in a task's event stream. Consumers receive events in
// the order the engine produced them; nothing follows the terminal event.
type Event struct {
	TaskID  string    `json:"task_id"`
	Type    EventType `json:"type"`
	State   State     `json:"state"`
	Percent int       `json:"percent"`
	At      time.Time `json:"at"`

	// Transcript is set on terminal events for completed tasks, and for
	// cancelled tasks whose native call finished before observing the
	// abort request.
	Transcript *engine.Transcript `json:"transcript,omitempty"`
	// FailureKind and Error are set on terminal events for failed tasks.
	FailureKind string `json:"failure_kind,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Snapshot is a point-in-time view of the controller's current task.
type Snapshot struct {
	TaskID    string    `json:"task_id"`
	State     State     `json:"state"`
	Percent   int       `json:"percent"`
	CreatedAt time.Time `json:"created_at"`
	Backend   string    `json:"backend,omitempty"`
}
