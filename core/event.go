package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	// EventRequestCreated is published right before a node is invoked.
	EventRequestCreated EventKind = "request.created"
	// EventRequestSucceeded is published when a node returned a result.
	EventRequestSucceeded EventKind = "request.succeeded"
	// EventRequestFailed is published when a node returned an error. The
	// failure is recoverable from the run's point of view.
	EventRequestFailed EventKind = "request.failed"
	// EventFatal is published for unrecoverable failures; the run terminates.
	EventFatal EventKind = "run.fatal"
	// EventStreamChunk carries partial output of a long running node.
	EventStreamChunk EventKind = "stream.chunk"
)

// Event is the message published on a run's event bus. After publication it
// should be treated as immutable. Fields not relevant to Kind are zero.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	RunID     string         `json:"run_id"`
	NodeID    string         `json:"node_id,omitempty"`
	ParentID  string         `json:"parent_id,omitempty"`
	NodeName  string         `json:"node_name,omitempty"`
	Input     any            `json:"input,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Latency   time.Duration  `json:"latency,omitempty"`
	Chunk     string         `json:"chunk,omitempty"`
	Debug     map[string]any `json:"debug,omitempty"`
	Timestamp time.Time      `json:"timestamp"`

	// Err keeps the original error for in-process observers (errors.Is/As).
	Err error `json:"-"`
}

// NewEvent creates a bare event of the given kind bound to a run.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		ID:        NewID(),
		Kind:      kind,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
	}
}

func newExecutionEvent(kind EventKind, runID string, exec *Execution) Event {
	e := NewEvent(kind, runID)
	e.NodeID = exec.ID
	e.ParentID = exec.ParentID
	e.NodeName = exec.Name
	return e
}

// NewCreatedEvent announces a node call.
func NewCreatedEvent(runID string, exec *Execution) Event {
	e := newExecutionEvent(EventRequestCreated, runID, exec)
	e.Input = exec.Input
	return e
}

// NewSucceededEvent records a successful node call.
func NewSucceededEvent(runID string, exec *Execution) Event {
	e := newExecutionEvent(EventRequestSucceeded, runID, exec)
	e.Input = exec.Input
	e.Result, _ = exec.Result()
	e.Latency = exec.Latency()
	e.Debug = exec.Debug()
	return e
}

// NewFailedEvent records a failed node call.
func NewFailedEvent(runID string, exec *Execution) Event {
	e := newExecutionEvent(EventRequestFailed, runID, exec)
	e.Input = exec.Input
	_, err := exec.Result()
	if err != nil {
		e.Error = err.Error()
		e.Err = err
	}
	e.Latency = exec.Latency()
	e.Debug = exec.Debug()
	return e
}

// NewFatalEvent records an unrecoverable failure. exec may be nil for
// run level failures such as timeouts.
func NewFatalEvent(runID string, exec *Execution, err error) Event {
	var e Event
	if exec != nil {
		e = newExecutionEvent(EventFatal, runID, exec)
	} else {
		e = NewEvent(EventFatal, runID)
	}
	if err != nil {
		e.Error = err.Error()
		e.Err = err
	}
	return e
}

// NewChunkEvent carries partial output of a running node.
func NewChunkEvent(runID string, exec *Execution, chunk string) Event {
	e := newExecutionEvent(EventStreamChunk, runID, exec)
	e.Chunk = chunk
	return e
}

// IsCompletion reports whether the event closes a node call.
func (e Event) IsCompletion() bool {
	return e.Kind == EventRequestSucceeded || e.Kind == EventRequestFailed
}

// NewID generates a new unique identifier for nodes, runs and events.
func NewID() string {
	return uuid.NewString()
}
