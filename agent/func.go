package agent

import "github.com/hupe1980/taskmesh/core"

// NewFunc returns a factory for plain function nodes. Each call creates a
// node that invokes fn with the call's RunContext and input.
func NewFunc(name string, fn func(rc *core.RunContext, input any) (any, error)) core.Factory {
	return func(input any) (core.Node, error) {
		return core.NewNodeFunc(name, func(rc *core.RunContext) (any, error) {
			return fn(rc, input)
		}), nil
	}
}
