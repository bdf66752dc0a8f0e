package tool

import "github.com/hupe1980/taskmesh/core"

// NodeTool exposes an arbitrary node factory as a tool. The factory receives
// the call's argument map as input, which lets any node (including a whole
// agent) be called by a model.
type NodeTool struct {
	descriptor core.ToolDescriptor
	factory    core.Factory
}

// NewNodeTool creates a NodeTool.
func NewNodeTool(descriptor core.ToolDescriptor, factory core.Factory) *NodeTool {
	return &NodeTool{descriptor: descriptor, factory: factory}
}

// Descriptor implements core.Tool.
func (t *NodeTool) Descriptor() core.ToolDescriptor { return t.descriptor }

// NewNode implements core.Tool.
func (t *NodeTool) NewNode(args map[string]any) (core.Node, error) {
	return t.factory(args)
}
