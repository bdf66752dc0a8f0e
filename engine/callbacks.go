package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// CallbackType defines the specific lifecycle points where callbacks can be executed.
//
// Callbacks provide a flexible mechanism for hooking into the scheduler's
// call pipeline without modifying core logic. Each type represents a specific
// point in the lifecycle of a single node call:
//   - BeforeNode: after the request-created event, before Invoke
//   - AfterNode: after Invoke returned successfully
//   - OnError: after Invoke failed (including recovered panics)
//
// Callbacks are executed synchronously on the calling goroutine. A
// BeforeNode callback returning an error fails the call without invoking the
// node; errors from AfterNode fail the call as well; OnError callback errors
// are logged and otherwise ignored.
type CallbackType string

const (
	// CallbackBeforeNode is triggered before a node is invoked.
	// Use for validation, auditing or to veto a call.
	CallbackBeforeNode CallbackType = "before_node"

	// CallbackAfterNode is triggered after a node produced its result.
	// Use for result inspection, metrics collection or post-processing.
	CallbackAfterNode CallbackType = "after_node"

	// CallbackOnError is triggered when a node call fails.
	// Use for alerting or error bookkeeping.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext provides the information a callback needs about one call.
type CallbackContext struct {
	// RunContext is the context the node is (or was) invoked with. Its
	// Execution is the record of this call.
	RunContext *core.RunContext

	// Node is the instantiated node.
	Node core.Node

	// Result is the node result for AfterNode callbacks.
	Result any

	// Err is the failure for OnError callbacks.
	Err error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType
}

// Callback defines the interface for call lifecycle hooks.
//
// Implementations should be fast (they run synchronously on the call path)
// and safe for concurrent use, since sibling calls run in parallel.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackBeforeNode,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("calling %s", cc.Node.Name())
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is the registry of callbacks consulted by a Scheduler.
//
// Callbacks are executed in registration order and the first error stops the
// chain. Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// Count returns the number of callbacks registered for callbackType.
func (cm *CallbackManager) Count(callbackType CallbackType) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return len(cm.callbacks[callbackType])
}

// ExecuteCallbacks executes all registered callbacks for the specified type
// and returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback logs every call lifecycle point it is registered for.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the call with node and run identifiers.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	args := []any{"callback", string(c.callbackType), "node", cc.Node.Name()}
	if rc := cc.RunContext; rc != nil {
		args = append(args, "run_id", rc.RunID, "node_id", rc.ParentID())
	}

	if cc.Err != nil {
		c.logger.Warn("engine.callback.node", append(args, "error", cc.Err.Error())...)
		return nil
	}

	c.logger.Debug("engine.callback.node", args...)

	return nil
}
