// Package tool implements the node-as-tool adapters that let a tool-calling
// agent invoke structured capabilities (APIs, computations, side effects)
// with schema validated arguments, consistent error handling and rich
// metadata for LLM guidance.
//
// Every tool is a core.Tool: a descriptor shown to the model plus a factory
// producing a fresh core.Node per call, so tool executions are ordinary
// scheduler calls with their own events, spans and report records.
package tool

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodePanic      = "PANIC"
)

// ToolError represents errors that occur during tool dispatch or execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// ErrDuplicateTool is returned by NewSet when two tools share a name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Set is an immutable, name indexed collection of tools preserving
// registration order.
type Set struct {
	tools []core.Tool
	index map[string]core.Tool
}

// NewSet builds a Set. Tools must have unique, non-empty names.
func NewSet(tools ...core.Tool) (*Set, error) {
	s := &Set{index: make(map[string]core.Tool, len(tools))}

	for _, t := range tools {
		if t == nil {
			return nil, errors.New("nil tool")
		}

		name := t.Descriptor().Name
		if name == "" {
			return nil, errors.New("tool without name")
		}

		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}

		s.index[name] = t
		s.tools = append(s.tools, t)
	}

	return s, nil
}

// Len returns the number of tools.
func (s *Set) Len() int { return len(s.tools) }

// Lookup returns the tool registered under name.
func (s *Set) Lookup(name string) (core.Tool, bool) {
	t, ok := s.index[name]
	return t, ok
}

// Names returns the tool names in registration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.tools))
	for i, t := range s.tools {
		names[i] = t.Descriptor().Name
	}
	return names
}

// Descriptors returns the descriptors handed to the model.
func (s *Set) Descriptors() []core.ToolDescriptor {
	out := make([]core.ToolDescriptor, len(s.tools))
	for i, t := range s.tools {
		out[i] = t.Descriptor()
	}
	return out
}

// Tools returns a copy of the registered tools.
func (s *Set) Tools() []core.Tool { return slices.Clone(s.tools) }
