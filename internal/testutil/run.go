package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/bus"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/model"
)

// EventRecorder is a bus subscriber that keeps every event it observes.
type EventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

// Observe records ev. It has the signature of a bus subscriber.
func (r *EventRecorder) Observe(ev core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)

	return nil
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]core.Event(nil), r.events...)
}

// ByKind returns the recorded events of the given kind.
func (r *EventRecorder) ByKind(kind core.EventKind) []core.Event {
	var out []core.Event
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Find returns the first recorded event of kind for the named node.
func (r *EventRecorder) Find(kind core.EventKind, nodeName string) (core.Event, bool) {
	for _, ev := range r.ByKind(kind) {
		if ev.NodeName == nodeName {
			return ev, true
		}
	}
	return core.Event{}, false
}

// Run is a started bus plus a top level RunContext publishing to it.
type Run struct {
	RC     *core.RunContext
	Bus    *bus.Bus
	Events *EventRecorder

	cancel context.CancelCauseFunc
}

// NewRun starts a run harness seeded with seed. Extra options are applied
// to the RunContext after the defaults.
func NewRun(t *testing.T, seed map[string]any, optFns ...func(o *core.RunContextOptions)) *Run {
	t.Helper()

	b := bus.New()
	require.NoError(t, b.Start())

	rec := &EventRecorder{}
	b.Subscribe(rec.Observe)

	ctx, cancel := context.WithCancelCause(context.Background())

	opts := append([]func(o *core.RunContextOptions){func(o *core.RunContextOptions) {
		o.Publisher = b
		o.Abort = cancel
	}}, optFns...)

	rc := core.NewRunContext(ctx, core.NewID(), core.NewContextStore(seed), opts...)

	t.Cleanup(func() {
		_ = b.Shutdown()
		cancel(nil)
	})

	return &Run{RC: rc, Bus: b, Events: rec, cancel: cancel}
}

// Drain shuts the bus down so every published event has been recorded.
func (r *Run) Drain(t *testing.T) {
	t.Helper()
	require.NoError(t, r.Bus.Shutdown())
}

// TextTurn builds a model turn answering with content.
func TextTurn(content string) *model.Turn { return &model.Turn{Content: content, FinishReason: "stop"} }

// ToolCallTurn builds a model turn requesting the given calls.
func ToolCallTurn(calls ...core.ToolCall) *model.Turn {
	return &model.Turn{ToolCalls: calls, FinishReason: "tool_calls"}
}

// ToolCall builds a tool call. args may be nil.
func ToolCall(id, name string, args map[string]any) core.ToolCall {
	if args == nil {
		args = map[string]any{}
	}
	return core.ToolCall{ID: id, Name: name, Arguments: args}
}
