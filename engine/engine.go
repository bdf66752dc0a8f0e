package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/telemetry"
)

// Options configures a Scheduler using the functional options pattern.
//
// All fields are optional:
//   - Instruments: OpenTelemetry span and metric instruments recorded for
//     every call (defaults to instruments bound to the global providers)
//   - Callbacks: lifecycle callbacks executed around each call
//
// Example:
//
//	s := engine.New(func(o *engine.Options) {
//	    o.Callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackOnError, logger))
//	})
type Options struct {
	Instruments *telemetry.Instruments
	Callbacks   *CallbackManager
}

// Scheduler drives node calls. A Scheduler holds no per-run state and may be
// shared by any number of concurrent runs; the run scope travels in the
// RunContext passed to each call.
type Scheduler struct {
	instruments *telemetry.Instruments
	callbacks   *CallbackManager
}

// New creates a Scheduler.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := Options{Callbacks: NewCallbackManager()}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Instruments == nil {
		opts.Instruments = telemetry.Default()
	}

	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	return &Scheduler{
		instruments: opts.Instruments,
		callbacks:   opts.Callbacks,
	}
}

// Callbacks returns the scheduler's callback registry.
func (s *Scheduler) Callbacks() *CallbackManager { return s.callbacks }

// Call instantiates a node via factory and runs it to completion as a child
// of the node currently executing under rc.
//
// Lifecycle of a call:
//  1. The factory builds a fresh Node from input.
//  2. An Execution record is created with rc's current node as parent.
//  3. A request-created event is published and the record moves to running.
//  4. BeforeNode callbacks run, then Invoke with panic recovery, then
//     AfterNode or OnError callbacks.
//  5. The record moves to succeeded or failed and the matching completion
//     event is published with result, error and latency.
//
// Errors are returned wrapped in *core.NodeError. When the error chain holds
// a *core.FatalError, a fatal event is published (once per error) and the
// run is aborted with the error as cancellation cause.
//
// Publishing is best effort: a bus that stopped accepting events is logged,
// it never turns into a node failure.
func (s *Scheduler) Call(rc *core.RunContext, factory core.Factory, input any) (any, error) {
	if rc == nil {
		return nil, core.ErrNoActiveRun
	}

	if rc.Err() != nil {
		return nil, fmt.Errorf("call rejected: %w", context.Cause(rc.Context))
	}

	node, err := factory(input)
	if err != nil {
		return nil, fmt.Errorf("instantiate node: %w", err)
	}

	exec := core.NewExecution(node.Name(), rc.ParentID(), input)

	ctx, span := s.instruments.StartNode(rc.Context, rc.RunID, exec.ID, exec.ParentID, exec.Name)
	child := rc.NewChildContext(ctx, exec)

	s.publish(child, core.NewCreatedEvent(rc.RunID, exec))
	_ = exec.Start()

	child.LogDebug("engine.node.started", "parent_id", exec.ParentID)

	result, err := s.invoke(child, node)
	if err != nil {
		err = &core.NodeError{NodeID: exec.ID, Name: exec.Name, Err: err}

		_ = exec.Fail(err)
		s.instruments.EndNode(ctx, span, exec.Name, exec.Latency(), err)
		s.publish(child, core.NewFailedEvent(rc.RunID, exec))

		child.LogWarn("engine.node.failed", "duration_ms", exec.Latency().Milliseconds(), "error", err.Error())

		var fatal *core.FatalError
		if errors.As(err, &fatal) && fatal.MarkReported() {
			s.publish(child, core.NewFatalEvent(rc.RunID, exec, err))
			child.LogError("engine.run.fatal", "error", err.Error())
			rc.Abort(err)
		}

		return nil, err
	}

	_ = exec.Succeed(result)
	s.instruments.EndNode(ctx, span, exec.Name, exec.Latency(), nil)
	s.publish(child, core.NewSucceededEvent(rc.RunID, exec))

	child.LogDebug("engine.node.succeeded", "duration_ms", exec.Latency().Milliseconds())

	return result, nil
}

func (s *Scheduler) invoke(rc *core.RunContext, node core.Node) (result any, err error) {
	cc := &CallbackContext{RunContext: rc, Node: node}

	defer func() {
		if err == nil {
			return
		}

		cc.CallbackType, cc.Err = CallbackOnError, err
		if cbErr := s.callbacks.ExecuteCallbacks(rc.Context, CallbackOnError, cc); cbErr != nil {
			rc.LogWarn("engine.callback.failed", "callback", string(CallbackOnError), "error", cbErr.Error())
		}
	}()

	cc.CallbackType = CallbackBeforeNode
	if err := s.callbacks.ExecuteCallbacks(rc.Context, CallbackBeforeNode, cc); err != nil {
		return nil, fmt.Errorf("before node callback: %w", err)
	}

	result, err = safeInvoke(rc, node)
	if err != nil {
		return nil, err
	}

	cc.CallbackType, cc.Result = CallbackAfterNode, result
	if err := s.callbacks.ExecuteCallbacks(rc.Context, CallbackAfterNode, cc); err != nil {
		return nil, fmt.Errorf("after node callback: %w", err)
	}

	return result, nil
}

func safeInvoke(rc *core.RunContext, node core.Node) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			rc.LogError("engine.node.panic", "recover", r)
		}
	}()

	return node.Invoke(rc)
}

func (s *Scheduler) publish(rc *core.RunContext, ev core.Event) {
	if err := rc.Publish(ev); err != nil {
		rc.LogWarn("engine.publish.failed", "event", string(ev.Kind), "node_id", ev.NodeID, "error", err.Error())
	}
}

// PanicError is the error recorded for a node whose Invoke panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", p.Value) }

// CallSync runs a node from top level code holding a session context.
//
// It fails with core.ErrNoActiveRun when ctx does not belong to a run and
// with core.ErrReentrantCall when ctx belongs to a node that is currently
// running: such callers must use Call with their RunContext instead, which
// keeps the call tree intact and avoids blocking the caller's own call.
func (s *Scheduler) CallSync(ctx context.Context, factory core.Factory, input any) (any, error) {
	rc, ok := core.FromContext(ctx)
	if !ok {
		return nil, core.ErrNoActiveRun
	}

	if rc.Execution != nil {
		return nil, fmt.Errorf("%w: node %s (%s)", core.ErrReentrantCall, rc.Execution.Name, rc.Execution.ID)
	}

	return s.Call(rc, factory, input)
}

// Go starts a call on its own goroutine and returns a Future for its
// outcome. Sibling calls started with Go run concurrently; the scheduler
// imposes no ordering between them.
func (s *Scheduler) Go(rc *core.RunContext, factory core.Factory, input any) *Future {
	f := &Future{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		f.result, f.err = s.Call(rc, factory, input)
	}()

	return f
}

type schedulerKey struct{}

var defaultScheduler = New()

// WithScheduler returns a copy of ctx that routes package level calls to s.
func WithScheduler(ctx context.Context, s *Scheduler) context.Context {
	return context.WithValue(ctx, schedulerKey{}, s)
}

// FromContext returns the scheduler carried by ctx or the default scheduler.
func FromContext(ctx context.Context) *Scheduler {
	if ctx != nil {
		if s, ok := ctx.Value(schedulerKey{}).(*Scheduler); ok && s != nil {
			return s
		}
	}
	return defaultScheduler
}

func schedulerFor(rc *core.RunContext) *Scheduler {
	if rc == nil {
		return defaultScheduler
	}
	return FromContext(rc.Context)
}

// Call runs a node through the scheduler bound to rc's run.
func Call(rc *core.RunContext, factory core.Factory, input any) (any, error) {
	return schedulerFor(rc).Call(rc, factory, input)
}

// CallAs runs a node and asserts its result to T.
func CallAs[T any](rc *core.RunContext, factory core.Factory, input any) (T, error) {
	var zero T

	res, err := Call(rc, factory, input)
	if err != nil {
		return zero, err
	}

	if res == nil {
		return zero, nil
	}

	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("node result: expected %T, got %T", zero, res)
	}

	return v, nil
}

// CallSync runs a node from top level code through the scheduler bound to ctx.
func CallSync(ctx context.Context, factory core.Factory, input any) (any, error) {
	return FromContext(ctx).CallSync(ctx, factory, input)
}

// Go starts a call through the scheduler bound to rc's run.
func Go(rc *core.RunContext, factory core.Factory, input any) *Future {
	return schedulerFor(rc).Go(rc, factory, input)
}
