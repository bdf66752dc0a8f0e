package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/taskmesh/core"
)

// TokenUsage captures token usage statistics for a turn.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Turn is one assistant turn returned by a Model. A turn carries either
// plain content or tool calls; Structured holds the JSON document returned
// for structured requests.
type Turn struct {
	Content      string          `json:"content,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	Structured   json.RawMessage `json:"structured,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", ...
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// HasToolCalls reports whether the turn requests tool executions.
func (t *Turn) HasToolCalls() bool { return t != nil && len(t.ToolCalls) > 0 }

// Validate rejects turn shapes the tool-calling loop cannot make progress
// with: no content and no tool calls, or tool calls without a name.
func (t *Turn) Validate() error {
	if t == nil {
		return fmt.Errorf("nil turn")
	}

	for i, tc := range t.ToolCalls {
		if tc.Name == "" {
			return fmt.Errorf("tool call %d has no name", i)
		}
	}

	if len(t.ToolCalls) == 0 && t.Content == "" && len(t.Structured) == 0 {
		return fmt.Errorf("turn has neither content nor tool calls")
	}

	return nil
}

// Message converts the turn into the assistant message appended to a history.
func (t *Turn) Message() core.Message {
	if t.HasToolCalls() {
		return core.NewToolCallMessage(t.Content, t.ToolCalls)
	}
	return core.NewAssistantMessage(t.Content)
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the capability the tool-calling loop drives.
type Model interface {
	// Chat answers the history without tool access.
	Chat(ctx context.Context, history []core.Message) (*Turn, error)
	// ChatWithTools answers the history and may request tool calls.
	ChatWithTools(ctx context.Context, history []core.Message, tools []core.ToolDescriptor) (*Turn, error)
	// Structured answers with a JSON document conforming to schema.
	Structured(ctx context.Context, history []core.Message, schema map[string]any) (*Turn, error)
	// Info returns information about the model implementation.
	Info() Info
}

// StructuredInstruction renders the system instruction used by providers
// that emulate structured output through prompting.
func StructuredInstruction(schema map[string]any) string {
	b, err := json.Marshal(schema)
	if err != nil {
		b = []byte("{}")
	}

	return "Respond with a single JSON document and nothing else. " +
		"The document must conform to this JSON schema: " + string(b)
}

// ExtractJSON returns the JSON document contained in text, tolerating
// surrounding prose and markdown code fences.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}

	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start >= 0 && end > start && json.Valid([]byte(s[start:end+1])) {
		return json.RawMessage(s[start : end+1]), nil
	}

	return nil, fmt.Errorf("no JSON document in model output")
}
