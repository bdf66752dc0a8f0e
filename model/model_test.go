package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose", in: `Sure! {"a":[1,2]} hope that helps`, want: `{"a":[1,2]}`},
		{name: "array", in: `[1,2]`, want: `[1,2]`},
		{name: "none", in: "no json here", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestTurnValidate(t *testing.T) {
	assert.Error(t, (*Turn)(nil).Validate())
	assert.Error(t, (&Turn{}).Validate())
	assert.Error(t, (&Turn{ToolCalls: []core.ToolCall{{ID: "1"}}}).Validate())
	assert.NoError(t, (&Turn{Content: "hi"}).Validate())
	assert.NoError(t, (&Turn{ToolCalls: []core.ToolCall{{ID: "1", Name: "x"}}}).Validate())
}

func TestTurnMessage(t *testing.T) {
	msg := (&Turn{Content: "done"}).Message()
	assert.Equal(t, core.RoleAssistant, msg.Role)
	assert.Empty(t, msg.ToolCalls)

	msg = (&Turn{ToolCalls: []core.ToolCall{{ID: "1", Name: "x"}}}).Message()
	assert.Equal(t, core.RoleAssistant, msg.Role)
	assert.Len(t, msg.ToolCalls, 1)
}

func TestStructuredInstructionEmbedsSchema(t *testing.T) {
	s := StructuredInstruction(map[string]any{"type": "object"})
	assert.Contains(t, s, `{"type":"object"}`)
}

func TestScriptedModel(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedModel(&Turn{Content: "one"}).PushError(boom)

	history := []core.Message{core.NewUserMessage("hi")}

	turn, err := m.ChatWithTools(context.Background(), history, []core.ToolDescriptor{{Name: "t"}})
	require.NoError(t, err)
	assert.Equal(t, "one", turn.Content)

	_, err = m.Chat(context.Background(), history)
	assert.ErrorIs(t, err, boom)

	_, err = m.Structured(context.Background(), history, nil)
	assert.ErrorIs(t, err, ErrScriptExhausted)

	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "chat_with_tools", reqs[0].Method)
	assert.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "chat", reqs[1].Method)
	assert.Equal(t, "structured", reqs[2].Method)
}

func TestScriptedModel_CanceledContext(t *testing.T) {
	m := NewScriptedModel(&Turn{Content: "unused"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Chat(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.Requests())
}
