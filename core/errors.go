package core

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrKeyNotFound is returned by ContextStore.Get for absent keys.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNoActiveRun is returned when a synchronous call is issued outside any run.
	ErrNoActiveRun = errors.New("no active run")
	// ErrNestedRun is returned when a run is started on a call stack that already has one.
	ErrNestedRun = errors.New("a run is already active on this call stack")
	// ErrReentrantCall is returned when a synchronous call is issued from inside a running node.
	ErrReentrantCall = errors.New("synchronous call issued from inside a running node")
	// ErrSessionClosed is returned when a session is used after teardown.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotRunning is returned when publishing to a bus that is not started or is shutting down.
	ErrNotRunning = errors.New("event bus not running")
	// ErrAlreadyShutdown is returned by a second bus shutdown.
	ErrAlreadyShutdown = errors.New("event bus already shut down")
	// ErrListenerKilled is returned to listeners still waiting when the bus stops.
	ErrListenerKilled = errors.New("listener killed by bus shutdown")
	// ErrEmptyToolSet is returned when a tool-calling agent is built without tools.
	ErrEmptyToolSet = errors.New("tool set must not be empty")
	// ErrNodeNotFound is returned when a requested tool name is not registered.
	ErrNodeNotFound = errors.New("node not found")
	// ErrRunTimedOut is the cause recorded when a run exceeds its timeout.
	ErrRunTimedOut = errors.New("run timed out")
	// ErrModelCallsExceeded is returned when a run exhausts its model call ceiling.
	ErrModelCallsExceeded = errors.New("exceeded max model calls")
)

// NodeError wraps an error raised by a node's own logic with the identity of
// the failing node. It is what callers of the scheduler receive.
type NodeError struct {
	NodeID string
	Name   string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.Name, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// FatalError marks an unrecoverable condition. Returning it from a node
// terminates the whole run after the failure has been published.
type FatalError struct {
	Reason string
	Err    error

	reported atomic.Bool
}

// NewFatalError creates a FatalError.
func NewFatalError(reason string, err error) *FatalError {
	return &FatalError{Reason: reason, Err: err}
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return "fatal: " + e.Reason
	}
	return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// MarkReported returns true for the first caller only. The scheduler uses it
// to publish a single fatal event while the error travels up the call tree.
func (e *FatalError) MarkReported() bool { return e.reported.CompareAndSwap(false, true) }

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
