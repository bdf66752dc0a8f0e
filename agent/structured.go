package agent

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/model"
)

// StructuredAgentOptions configures a StructuredAgent.
type StructuredAgentOptions struct {
	// Instruction is prepended as a system message.
	Instruction Instruction
}

// StructuredAgent asks a model for a JSON document conforming to a schema.
// Its node result is a json.RawMessage. Object documents are validated
// against the schema's required fields and property types.
type StructuredAgent struct {
	name   string
	model  model.Model
	schema map[string]any
	opts   StructuredAgentOptions
}

// NewStructuredAgent creates a StructuredAgent.
func NewStructuredAgent(name string, m model.Model, schema map[string]any, optFns ...func(o *StructuredAgentOptions)) *StructuredAgent {
	opts := StructuredAgentOptions{
		Instruction: NewInstructionFromText("Extract the requested information from the conversation."),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &StructuredAgent{name: name, model: m, schema: schema, opts: opts}
}

// Name returns the node name.
func (a *StructuredAgent) Name() string { return a.name }

// Schema returns the output schema.
func (a *StructuredAgent) Schema() map[string]any { return a.schema }

// Factory returns the factory producing nodes of this agent. Accepted inputs
// are the same as for ToolAgent.
func (a *StructuredAgent) Factory() core.Factory {
	return func(input any) (core.Node, error) {
		history, err := toHistory(input)
		if err != nil {
			return nil, err
		}
		return &structuredNode{agent: a, history: history}, nil
	}
}

type structuredNode struct {
	agent   *StructuredAgent
	history []core.Message
}

func (n *structuredNode) Name() string { return n.agent.name }

func (n *structuredNode) Invoke(rc *core.RunContext) (any, error) {
	history, err := withInstruction(rc, n.agent.opts.Instruction, n.history)
	if err != nil {
		return nil, err
	}

	if err := rc.Limiter.Increment(); err != nil {
		return nil, err
	}

	rc.AddDebug("model_calls", 1)

	turn, err := n.agent.model.Structured(rc.Context, history, n.agent.schema)
	if err != nil {
		return nil, fmt.Errorf("structured model call: %w", err)
	}

	if u := turn.Usage; u != nil {
		rc.AddDebug("total_tokens", u.TotalTokens)
	}

	if len(turn.Structured) == 0 {
		return nil, errors.New("model returned no structured document")
	}

	var doc any
	if err := json.Unmarshal(turn.Structured, &doc); err != nil {
		return nil, fmt.Errorf("decode structured document: %w", err)
	}

	if obj, ok := doc.(map[string]any); ok && n.agent.schema != nil {
		if err := util.ValidateParameters(obj, n.agent.schema); err != nil {
			return nil, fmt.Errorf("structured document does not match schema: %w", err)
		}
	}

	return turn.Structured, nil
}
