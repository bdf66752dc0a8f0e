package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/flow"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/tool"
)

// ToolAgentOptions configures a ToolAgent instance.
//
// Use functional options with NewToolAgent to override defaults.
type ToolAgentOptions struct {
	// Instruction becomes the leading system message of every conversation.
	Instruction Instruction
	// MaxToolCalls bounds the tool messages of a transcript; nil is unlimited.
	MaxToolCalls *int
	// OutputKey stores the final answer in the context store when set.
	OutputKey string
	// OutputSchema enables structured coercion of the finished transcript.
	OutputSchema map[string]any
	// Dispatcher tunes concurrent tool execution.
	Dispatcher flow.DispatcherOptions
	// Stream publishes the final answer as a stream chunk.
	Stream bool
	// Logger receives construction time warnings.
	Logger logging.Logger
}

// ToolAgent integrates a language model with a set of tools.
//
// Each call runs the bounded tool-calling loop (flow.Loop): the model is
// queried with the tool descriptors, requested tools are dispatched
// concurrently as child nodes, and their responses are fed back until the
// model answers or the budget forces a final answer. When an output schema
// is configured, the finished transcript is handed to a StructuredAgent in
// one nested call.
//
// A ToolAgent is immutable after construction and safe to share; every call
// gets a fresh node.
type ToolAgent struct {
	name       string
	model      model.Model
	loop       *flow.Loop
	structured *StructuredAgent
	opts       ToolAgentOptions
}

// NewToolAgent creates a ToolAgent. It fails with core.ErrEmptyToolSet when
// tools is empty. An unlimited tool budget is reported once as a warning.
func NewToolAgent(name string, m model.Model, tools []core.Tool, optFns ...func(o *ToolAgentOptions)) (*ToolAgent, error) {
	opts := ToolAgentOptions{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	loop, err := flow.NewLoop(m, tools, func(o *flow.LoopOptions) {
		o.MaxToolCalls = opts.MaxToolCalls
		o.Dispatcher = opts.Dispatcher
		o.Logger = logging.With(opts.Logger, "agent", name)
		if opts.OutputSchema != nil {
			// structured coercion runs after the loop
			o.ReservedModelCalls = 1
		}
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	a := &ToolAgent{name: name, model: m, loop: loop, opts: opts}

	if opts.OutputSchema != nil {
		a.structured = NewStructuredAgent(name+".structured", m, opts.OutputSchema)
	}

	return a, nil
}

// Name returns the agent name used for its nodes.
func (a *ToolAgent) Name() string { return a.name }

// Tools returns the agent's tool names.
func (a *ToolAgent) Tools() []string { return a.loop.Tools().Names() }

// Factory returns the factory producing nodes of this agent.
//
// Accepted inputs: string (one user message), core.Message, []core.Message
// (a full history) or a tool argument map with a "request" string.
func (a *ToolAgent) Factory() core.Factory {
	return func(input any) (core.Node, error) {
		history, err := toHistory(input)
		if err != nil {
			return nil, err
		}
		return &toolAgentNode{agent: a, history: history}, nil
	}
}

// AsTool exposes the agent as a tool so that other agents can delegate to it.
func (a *ToolAgent) AsTool(detail string) core.Tool {
	return tool.NewNodeTool(core.ToolDescriptor{
		Name:   a.name,
		Detail: detail,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"request": map[string]any{"type": "string", "description": "What the agent should do"},
			},
			"required": []string{"request"},
		},
	}, a.Factory())
}

type toolAgentNode struct {
	agent   *ToolAgent
	history []core.Message
}

func (n *toolAgentNode) Name() string { return n.agent.name }

func (n *toolAgentNode) Invoke(rc *core.RunContext) (any, error) {
	a := n.agent

	history, err := withInstruction(rc, a.opts.Instruction, n.history)
	if err != nil {
		return nil, err
	}

	res, err := a.loop.Run(rc, history)
	if err != nil {
		return nil, err
	}

	out := &ToolAgentResult{
		Transcript:    res.Transcript,
		Final:         res.Final,
		ToolsExecuted: res.ToolsExecuted,
		Forced:        res.Forced,
	}

	if a.opts.OutputKey != "" {
		rc.Store.Put(a.opts.OutputKey, res.Final)
	}

	if a.opts.Stream && res.Final != "" {
		if err := rc.EmitChunk(res.Final); err != nil {
			rc.LogDebug("agent.stream.skipped", "agent", a.name, "error", err.Error())
		}
	}

	if a.structured != nil {
		doc, err := engine.CallAs[json.RawMessage](rc, a.structured.Factory(), res.Transcript)
		if err != nil {
			// A fatal coercion failure still terminates the run.
			if core.IsFatal(err) {
				return nil, err
			}
			rc.LogWarn("agent.structured.failed", "agent", a.name, "error", err.Error())
		}
		out.structured, out.structuredErr = doc, err
	}

	return out, nil
}

// ToolAgentResult is the node result of a ToolAgent call.
type ToolAgentResult struct {
	Transcript    []core.Message `json:"transcript"`
	Final         string         `json:"final"`
	ToolsExecuted int            `json:"tools_executed"`
	Forced        bool           `json:"forced,omitempty"`

	structured    json.RawMessage
	structuredErr error
}

// ErrNoOutputSchema is returned by Structured when the agent has no schema.
var ErrNoOutputSchema = errors.New("agent has no output schema")

// Structured returns the coerced document or the error of the coercion call.
func (r *ToolAgentResult) Structured() (json.RawMessage, error) {
	if r.structured == nil && r.structuredErr == nil {
		return nil, ErrNoOutputSchema
	}
	return r.structured, r.structuredErr
}

// StructuredInto decodes the coerced document into v.
func (r *ToolAgentResult) StructuredInto(v any) error {
	doc, err := r.Structured()
	if err != nil {
		return err
	}
	return json.Unmarshal(doc, v)
}

// String returns the final answer; tool messages of delegating agents use it.
func (r *ToolAgentResult) String() string { return r.Final }

// toHistory normalizes node input into a conversation history.
func toHistory(input any) ([]core.Message, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case string:
		return []core.Message{core.NewUserMessage(v)}, nil
	case core.Message:
		return []core.Message{v}, nil
	case []core.Message:
		return slices.Clone(v), nil
	case map[string]any:
		if req, ok := v["request"].(string); ok {
			return []core.Message{core.NewUserMessage(req)}, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode input: %w", err)
		}
		return []core.Message{core.NewUserMessage(string(b))}, nil
	case fmt.Stringer:
		return []core.Message{core.NewUserMessage(v.String())}, nil
	default:
		return nil, fmt.Errorf("unsupported agent input %T", input)
	}
}

func withInstruction(rc *core.RunContext, inst Instruction, history []core.Message) ([]core.Message, error) {
	if inst.IsZero() {
		return history, nil
	}

	text, err := inst.Resolve(rc)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}

	if text == "" {
		return history, nil
	}

	return append([]core.Message{core.NewSystemMessage(text)}, history...), nil
}
