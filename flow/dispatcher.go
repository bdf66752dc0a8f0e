package flow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/tool"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	MaxParallel    int  // 0 or <1 => no explicit limit (len(calls))
	LogStartEvents bool // log a start line per tool call
}

// Dispatcher executes a batch of tool calls concurrently through the
// scheduler and converts every outcome into a core.ToolResponse.
//
// Guarantees:
//   - Exactly one response per incoming call, in the order of the calls
//   - Every failure (unknown tool, validation, node error, panic) becomes a
//     response carrying an explanatory error string; one failing call never
//     affects its siblings
//   - Each tool runs as its own child node of the calling node
type Dispatcher struct {
	tools *tool.Set
	opts  DispatcherOptions
}

// NewDispatcher constructs a Dispatcher over tools.
func NewDispatcher(tools *tool.Set, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Dispatcher{tools: tools, opts: opts}
}

// Dispatch runs calls and returns their responses in call order. The error
// is non-nil only when a call failed with a *core.FatalError; the responses
// are complete in that case as well.
func (d *Dispatcher) Dispatch(rc *core.RunContext, calls []core.ToolCall) ([]core.ToolResponse, error) {
	n := len(calls)
	if n == 0 {
		return nil, nil
	}

	responses := make([]core.ToolResponse, n)
	errs := make([]error, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		responses[0], errs[0] = d.execute(rc, calls[0])
		return responses, firstFatal(errs)
	}

	maxPar := d.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	sem := semaphore.NewWeighted(int64(maxPar))

	var wg sync.WaitGroup

	batchStart := time.Now()

	for i, tc := range calls {
		if err := sem.Acquire(rc.Context, 1); err != nil {
			responses[i] = errorResponse(tc, fmt.Errorf("dispatch aborted: %w", err))
			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer sem.Release(1)

			responses[i], errs[i] = d.execute(rc, tc)
		}()
	}

	wg.Wait()

	rc.LogDebug(
		"flow.dispatch.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return responses, firstFatal(errs)
}

func (d *Dispatcher) execute(rc *core.RunContext, tc core.ToolCall) (core.ToolResponse, error) {
	if d.opts.LogStartEvents {
		rc.LogInfo("flow.tool.start", "tool", tc.Name, "tool_call_id", tc.ID)
	}

	impl, ok := d.tools.Lookup(tc.Name)
	if !ok {
		err := &tool.ToolError{
			Tool:    tc.Name,
			Message: fmt.Sprintf("tool %s not found (available: %v)", tc.Name, d.tools.Names()),
			Code:    tool.CodeNotFound,
			Err:     core.ErrNodeNotFound,
		}
		rc.LogWarn("flow.tool.not_found", "tool", tc.Name, "tool_call_id", tc.ID)

		return errorResponse(tc, err), nil
	}

	start := time.Now()

	result, err := engine.Call(rc, core.ToolFactory(impl), tc.Arguments)

	rc.LogInfo(
		"flow.tool.executed",
		"tool", tc.Name,
		"tool_call_id", tc.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		return errorResponse(tc, classify(tc.Name, err)), err
	}

	return core.ToolResponse{ID: tc.ID, Name: tc.Name, Result: result}, nil
}

// classify turns any call failure into a *tool.ToolError.
func classify(name string, err error) *tool.ToolError {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}

	var panicErr *engine.PanicError
	if errors.As(err, &panicErr) {
		return &tool.ToolError{Tool: name, Message: panicErr.Error(), Code: tool.CodePanic, Err: err}
	}

	msg := err.Error()

	var nodeErr *core.NodeError
	if errors.As(err, &nodeErr) {
		msg = nodeErr.Err.Error()
	}

	return &tool.ToolError{Tool: name, Message: msg, Code: tool.CodeExecution, Err: err}
}

func errorResponse(tc core.ToolCall, err error) core.ToolResponse {
	return core.ToolResponse{ID: tc.ID, Name: tc.Name, Error: err.Error()}
}

func firstFatal(errs []error) error {
	for _, err := range errs {
		if core.IsFatal(err) {
			return err
		}
	}
	return nil
}
