package core

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to execute a named tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResponse is the outcome of a ToolCall. Exactly one of Result or Error
// is meaningful; a response is produced even when the tool failed.
type ToolResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the response carries an error.
func (r ToolResponse) Failed() bool { return r.Error != "" }

// Text renders the response as the content of a tool message.
func (r ToolResponse) Text() string {
	if r.Error != "" {
		return "error: " + r.Error
	}

	switch v := r.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}

	b, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Sprintf("%v", r.Result)
	}

	return string(b)
}

// ToolDescriptor describes a node that can be invoked as a tool. Parameters
// is a JSON schema object or nil for parameterless tools.
type ToolDescriptor struct {
	Name       string         `json:"name"`
	Detail     string         `json:"detail"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Tool is implemented by nodes that opt into being tool-callable.
type Tool interface {
	Descriptor() ToolDescriptor
	// NewNode instantiates the node for a single tool call.
	NewNode(args map[string]any) (Node, error)
}

// ToolFactory adapts a Tool to a scheduler Factory. The factory input must be
// the argument map of the call (nil is treated as empty).
func ToolFactory(t Tool) Factory {
	return func(input any) (Node, error) {
		args, _ := input.(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		return t.NewNode(args)
	}
}

// Message is one entry of a conversation history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// NewAssistantMessage creates a plain assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolCallMessage creates an assistant message that records requested tool calls.
func NewToolCallMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolMessage creates a tool message correlated with the originating call.
func NewToolMessage(resp ToolResponse) Message {
	return Message{Role: RoleTool, Content: resp.Text(), ToolCallID: resp.ID, Name: resp.Name}
}

// CountToolMessages returns the number of tool messages in history.
func CountToolMessages(history []Message) int {
	n := 0
	for _, m := range history {
		if m.Role == RoleTool {
			n++
		}
	}
	return n
}
