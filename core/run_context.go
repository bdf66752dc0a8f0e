package core

import (
	"context"
	"errors"

	"github.com/hupe1980/taskmesh/logging"
)

// Publisher accepts events for delivery to the run's observers.
type Publisher interface {
	Publish(ev Event) error
}

// RunContext carries the execution scope of one node call. It is passed
// explicitly to Node.Invoke and to every scheduler call. It aggregates:
//   - The ambient cancellation Context (run timeout, fatal aborts)
//   - The run identifier and the run's shared ContextStore
//   - The Execution of the currently running node (nil at the top of a run),
//     which becomes the parent of any call issued through this context
//   - The run's event Publisher and model call Limiter
//
// A RunContext is never mutated after construction; the scheduler derives a
// child for each call with NewChildContext.
type RunContext struct {
	Context   context.Context
	RunID     string
	Store     *ContextStore
	Execution *Execution
	Limiter   *ModelLimiter

	publisher Publisher
	abort     context.CancelCauseFunc

	*scopedLogger
}

// RunContextOptions configures NewRunContext.
type RunContextOptions struct {
	Publisher Publisher
	Limiter   *ModelLimiter
	Logger    logging.Logger
	// Abort cancels the run with a cause. It is invoked by Abort.
	Abort context.CancelCauseFunc
}

// NewRunContext constructs the top level RunContext of a run. The returned
// context's Context carries the RunContext itself (see FromContext).
func NewRunContext(ctx context.Context, runID string, store *ContextStore, optFns ...func(o *RunContextOptions)) *RunContext {
	opts := RunContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if store == nil {
		store = NewContextStore(nil)
	}

	if opts.Limiter == nil {
		opts.Limiter = NewModelLimiter(0)
	}

	rc := &RunContext{
		RunID:        runID,
		Store:        store,
		Limiter:      opts.Limiter,
		publisher:    opts.Publisher,
		abort:        opts.Abort,
		scopedLogger: newScopedLogger(opts.Logger, runID),
	}
	rc.Context = WithRunContext(ctx, rc)

	return rc
}

// NewChildContext derives the context for a call whose record is exec. ctx
// is usually rc.Context enriched by the scheduler (e.g. with a trace span).
func (rc *RunContext) NewChildContext(ctx context.Context, exec *Execution) *RunContext {
	child := *rc
	child.Execution = exec
	child.scopedLogger = rc.scopedLogger.forCall(ctx, exec)
	child.Context = WithRunContext(ctx, &child)

	return &child
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// Cause returns the cancellation cause (e.g. ErrRunTimedOut) or nil.
func (rc *RunContext) Cause() error { return context.Cause(rc.Context) }

// ParentID returns the id of the current execution or "" at the tree root.
func (rc *RunContext) ParentID() string {
	if rc.Execution == nil {
		return ""
	}
	return rc.Execution.ID
}

// Publish sends ev to the run's event bus.
func (rc *RunContext) Publish(ev Event) error {
	if rc.publisher == nil {
		return ErrNotRunning
	}
	return rc.publisher.Publish(ev)
}

// EmitChunk publishes partial output of the current node.
func (rc *RunContext) EmitChunk(chunk string) error {
	if rc.Execution == nil {
		return errors.New("emit chunk: no running node")
	}
	return rc.Publish(NewChunkEvent(rc.RunID, rc.Execution, chunk))
}

// SetDebug stores debug metadata on the current execution.
func (rc *RunContext) SetDebug(key string, value any) {
	if rc.Execution != nil {
		rc.Execution.SetDebug(key, value)
	}
}

// AddDebug increments an integer debug counter on the current execution.
func (rc *RunContext) AddDebug(key string, delta int) {
	if rc.Execution != nil {
		rc.Execution.AddDebug(key, delta)
	}
}

// Abort terminates the whole run with cause. It is a no-op for contexts that
// were built without an abort function.
func (rc *RunContext) Abort(cause error) {
	if rc.abort != nil {
		rc.abort(cause)
	}
}

type runContextKey struct{}

// WithRunContext returns a copy of ctx carrying rc.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// FromContext returns the RunContext carried by ctx, if any.
func FromContext(ctx context.Context) (*RunContext, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(runContextKey{}).(*RunContext)
	return rc, ok && rc != nil
}
