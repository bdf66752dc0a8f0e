package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

func TestBuildMessages_MergesToolResults(t *testing.T) {
	history := []core.Message{
		core.NewSystemMessage("be brief"),
		core.NewUserMessage("weather?"),
		core.NewToolCallMessage("", []core.ToolCall{
			{ID: "a", Name: "city"},
			{ID: "b", Name: "forecast", Arguments: map[string]any{"day": "mon"}},
		}),
		core.NewToolMessage(core.ToolResponse{ID: "a", Name: "city", Result: "Berlin"}),
		core.NewToolMessage(core.ToolResponse{ID: "b", Name: "forecast", Error: "unavailable"}),
		core.NewAssistantMessage("Sunny in Berlin"),
	}

	msgs := buildMessages(history)
	require.Len(t, msgs, 4, "system is sent separately and tool results share one message")
	assert.Len(t, msgs[1].Content, 2)
	assert.Len(t, msgs[2].Content, 2)

	system := systemBlocks(history)
	require.Len(t, system, 1)
	assert.Equal(t, "be brief", system[0].Text)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]core.ToolDescriptor{{
		Name:   "lookup",
		Detail: "find",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
			"required":   []any{"q"},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "lookup", tools[0].OfTool.Name)
	assert.Equal(t, []string{"q"}, tools[0].OfTool.InputSchema.Required)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredFields([]string{"a"}))
	assert.Equal(t, []string{"a"}, requiredFields([]any{"a", 1}))
	assert.Nil(t, requiredFields(nil))
}
