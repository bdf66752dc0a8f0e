package testutil

import (
	"errors"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder(core.EventRequestSucceeded).Run("run-1").Node("n1", "fetch").Result("ok").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	ev core.Event
}

// NewEventBuilder creates a builder for an event of the given kind bound to run "run-1".
func NewEventBuilder(kind core.EventKind) *EventBuilder {
	return &EventBuilder{ev: core.NewEvent(kind, "run-1")}
}

// Run sets the run id (chainable).
func (b *EventBuilder) Run(id string) *EventBuilder { b.ev.RunID = id; return b }

// ID overrides the auto-generated event ID (chainable). Use mainly in tests where determinism matters.
func (b *EventBuilder) ID(id string) *EventBuilder { b.ev.ID = id; return b }

// Node sets the node id and name (chainable).
func (b *EventBuilder) Node(id, name string) *EventBuilder {
	b.ev.NodeID, b.ev.NodeName = id, name
	return b
}

// Parent sets the parent node id (chainable).
func (b *EventBuilder) Parent(id string) *EventBuilder { b.ev.ParentID = id; return b }

// Input sets the node input (chainable).
func (b *EventBuilder) Input(v any) *EventBuilder { b.ev.Input = v; return b }

// Result sets the node result (chainable).
func (b *EventBuilder) Result(v any) *EventBuilder { b.ev.Result = v; return b }

// Error sets the error text and original error (chainable).
func (b *EventBuilder) Error(msg string) *EventBuilder {
	b.ev.Error, b.ev.Err = msg, errors.New(msg)
	return b
}

// Latency sets the call latency (chainable).
func (b *EventBuilder) Latency(d time.Duration) *EventBuilder { b.ev.Latency = d; return b }

// Debug adds a debug metadata entry (chainable).
func (b *EventBuilder) Debug(key string, v any) *EventBuilder {
	if b.ev.Debug == nil {
		b.ev.Debug = map[string]any{}
	}
	b.ev.Debug[key] = v
	return b
}

// Build returns the core.Event value.
func (b *EventBuilder) Build() core.Event { return b.ev }
