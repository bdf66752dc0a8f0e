package core

import (
	"fmt"
	"maps"
	"sync"
	"time"
)

// Node is the unit of work executed by the scheduler. A Node is created by a
// Factory for exactly one call and never reused.
type Node interface {
	// Name returns the human readable node name used in events and reports.
	Name() string
	// Invoke produces the node result. rc carries the run scope and the
	// execution record of this very call.
	Invoke(rc *RunContext) (any, error)
}

// Factory instantiates a fresh Node for a single call.
type Factory func(input any) (Node, error)

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc struct {
	name string
	fn   func(rc *RunContext) (any, error)
}

// NewNodeFunc creates a NodeFunc.
func NewNodeFunc(name string, fn func(rc *RunContext) (any, error)) *NodeFunc {
	return &NodeFunc{name: name, fn: fn}
}

// Name implements Node.
func (n *NodeFunc) Name() string { return n.name }

// Invoke implements Node.
func (n *NodeFunc) Invoke(rc *RunContext) (any, error) { return n.fn(rc) }

// NodeState is the lifecycle state of an Execution.
type NodeState string

const (
	NodeCreated   NodeState = "created"
	NodeRunning   NodeState = "running"
	NodeSucceeded NodeState = "succeeded"
	NodeFailed    NodeState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s NodeState) IsTerminal() bool { return s == NodeSucceeded || s == NodeFailed }

// Execution records one call of a Node: its place in the call tree, state,
// result and timing. State transitions are performed by the scheduler; node
// bodies only contribute debug metadata.
type Execution struct {
	ID       string
	ParentID string
	Name     string
	Input    any

	mu         sync.Mutex
	state      NodeState
	result     any
	err        error
	startedAt  time.Time
	finishedAt time.Time
	debug      map[string]any
}

// NewExecution creates an Execution in the created state.
func NewExecution(name, parentID string, input any) *Execution {
	return &Execution{
		ID:       NewID(),
		ParentID: parentID,
		Name:     name,
		Input:    input,
		state:    NodeCreated,
		debug:    map[string]any{},
	}
}

// State returns the current state.
func (e *Execution) State() NodeState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Start moves the execution from created to running.
func (e *Execution) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != NodeCreated {
		return fmt.Errorf("execution %s: cannot start from state %s", e.ID, e.state)
	}

	e.state = NodeRunning
	e.startedAt = time.Now()

	return nil
}

// Succeed records the result and moves the execution to succeeded.
func (e *Execution) Succeed(result any) error {
	return e.finish(NodeSucceeded, result, nil)
}

// Fail records err and moves the execution to failed.
func (e *Execution) Fail(err error) error {
	return e.finish(NodeFailed, nil, err)
}

func (e *Execution) finish(state NodeState, result any, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.IsTerminal() {
		return fmt.Errorf("execution %s: already %s", e.ID, e.state)
	}

	if e.startedAt.IsZero() {
		e.startedAt = time.Now()
	}

	e.state = state
	e.result = result
	e.err = err
	e.finishedAt = time.Now()

	return nil
}

// Result returns the recorded result and error.
func (e *Execution) Result() (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.result, e.err
}

// Latency returns the wall clock time between start and finish, or the time
// elapsed so far for running executions.
func (e *Execution) Latency() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.startedAt.IsZero():
		return 0
	case e.finishedAt.IsZero():
		return time.Since(e.startedAt)
	default:
		return e.finishedAt.Sub(e.startedAt)
	}
}

// SetDebug stores a debug metadata value (token counters, model names, ...).
func (e *Execution) SetDebug(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.debug[key] = value
}

// AddDebug increments an integer debug counter.
func (e *Execution) AddDebug(key string, delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, _ := e.debug[key].(int)
	e.debug[key] = cur + delta
}

// Debug returns a copy of the debug metadata.
func (e *Execution) Debug() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	return maps.Clone(e.debug)
}
