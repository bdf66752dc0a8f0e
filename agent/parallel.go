package agent

import (
	"fmt"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
)

// NewParallel returns a factory for a node that calls every branch
// concurrently with the node's input.
//
// Key features:
//   - Each branch is a child call of the parallel node
//   - All branches run to completion even if siblings fail
//   - Results are returned as []any in branch order
//   - The first failure in branch order is returned after all complete
//
// Branches share the run's context store; writes from concurrent branches
// follow last-writer-wins.
func NewParallel(name string, branches ...core.Factory) core.Factory {
	return NewFunc(name, func(rc *core.RunContext, input any) (any, error) {
		futures := make([]*engine.Future, len(branches))
		for i, b := range branches {
			futures[i] = engine.Go(rc, b, input)
		}

		outcomes := engine.AwaitAll(futures...)

		results := make([]any, len(outcomes))
		for i, o := range outcomes {
			if o.Err != nil {
				return nil, fmt.Errorf("parallel branch %d failed: %w", i, o.Err)
			}
			results[i] = o.Result
		}

		return results, nil
	})
}
