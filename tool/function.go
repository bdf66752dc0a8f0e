package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
)

// Func is the signature of the Go function wrapped by a FunctionTool.
type Func func(rc *core.RunContext, args map[string]any) (any, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification (parameters)
//   - Validates model supplied arguments against that schema before execution
//   - Invokes the wrapped function with the *core.RunContext of the tool call,
//     giving access to the run's context store, logging and debug metadata
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// Concurrency:
//
//	A FunctionTool has no internal mutable state after construction and is safe for
//	concurrent use by multiple goroutines. Each call gets its own node.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// JSON schema describing accepted arguments
	parameters map[string]any
	// User supplied implementation
	fn Func
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(rc *core.RunContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Func) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
func NewFunctionToolFromStruct(name, description string, structType any, fn Func) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Descriptor implements core.Tool.
func (t *FunctionTool) Descriptor() core.ToolDescriptor {
	return core.ToolDescriptor{Name: t.name, Detail: t.description, Parameters: t.parameters}
}

// NewNode implements core.Tool.
func (t *FunctionTool) NewNode(args map[string]any) (core.Node, error) {
	return &functionNode{tool: t, args: args}, nil
}

type functionNode struct {
	tool *FunctionTool
	args map[string]any
}

func (n *functionNode) Name() string { return n.tool.name }

// Invoke validates the arguments then runs the wrapped function.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	validation failure              -> *ToolError{Code: "VALIDATION_ERROR"}
//	*core.FatalError                -> forwarded unchanged (aborts the run)
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
func (n *functionNode) Invoke(rc *core.RunContext) (any, error) {
	t := n.tool
	start := time.Now()

	rc.LogDebug("tool.call.start", "tool", t.name)

	if t.parameters != nil {
		if err := util.ValidateParameters(n.args, t.parameters); err != nil {
			rc.LogWarn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

			return nil, &ToolError{
				Tool:    t.name,
				Message: fmt.Sprintf("parameter validation failed: %v", err),
				Code:    CodeValidation,
				Details: err,
				Err:     err,
			}
		}
	}

	result, err := t.fn(rc, n.args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) || core.IsFatal(err) {
			rc.LogError("tool.call.error", "tool", t.name, "error", err.Error())
			return nil, err
		}

		rc.LogError("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Err:     err,
		}
	}

	rc.LogInfo("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
