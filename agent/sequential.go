package agent

import (
	"fmt"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
)

// NewSequential returns a factory for a node that calls steps one after
// another. The node input feeds the first step and each step's result is
// the input of the next; the last result is the node result. Execution stops
// at the first failing step.
//
// Sequential pipelines are ideal for:
//   - Multi-step data processing
//   - Workflows requiring specific execution order
//   - Steps that build upon each other's results or context store writes
func NewSequential(name string, steps ...core.Factory) core.Factory {
	return NewFunc(name, func(rc *core.RunContext, input any) (any, error) {
		current := input

		for i, step := range steps {
			out, err := engine.Call(rc, step, current)
			if err != nil {
				return nil, fmt.Errorf("sequential step %d failed: %w", i, err)
			}
			current = out
		}

		return current, nil
	})
}
