package agent

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/internal/testutil"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/tool"
)

func intPtr(v int) *int { return &v }

func weatherTool() core.Tool {
	return tool.NewFunctionTool("weather", "Current weather", map[string]any{
		"type":       "object",
		"properties": map[string]any{"city": map[string]any{"type": "string"}},
		"required":   []string{"city"},
	}, func(rc *core.RunContext, args map[string]any) (any, error) {
		rc.Store.Put("last_city", args["city"])
		return "sunny in " + args["city"].(string), nil
	})
}

func TestNewToolAgent_EmptyToolSet(t *testing.T) {
	_, err := NewToolAgent("empty", model.NewScriptedModel(), nil)
	assert.ErrorIs(t, err, core.ErrEmptyToolSet)
}

func TestToolAgent_RunsToolsAsChildNodes(t *testing.T) {
	m := model.NewScriptedModel(
		testutil.ToolCallTurn(testutil.ToolCall("c1", "weather", map[string]any{"city": "Berlin"})),
		testutil.TextTurn("It is sunny in Berlin."),
	)

	a, err := NewToolAgent("assistant", m, []core.Tool{weatherTool()}, func(o *ToolAgentOptions) {
		o.MaxToolCalls = intPtr(3)
		o.OutputKey = "answer"
		o.Instruction = NewInstructionFromText("Be brief, {{ .user }}.")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, a.Tools())

	run := testutil.NewRun(t, map[string]any{"user": "Ada"})

	res, err := engine.CallAs[*ToolAgentResult](run.RC, a.Factory(), "weather in Berlin?")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Berlin.", res.Final)
	assert.Equal(t, 1, res.ToolsExecuted)
	assert.Equal(t, "It is sunny in Berlin.", res.String())

	assert.Equal(t, "It is sunny in Berlin.", run.RC.Store.GetOr("answer", nil))
	assert.Equal(t, "Berlin", run.RC.Store.GetOr("last_city", nil))

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, core.NewSystemMessage("Be brief, Ada."), reqs[0].History[0])

	_, err = res.Structured()
	assert.ErrorIs(t, err, ErrNoOutputSchema)

	run.Drain(t)

	agentEv, ok := run.Events.Find(core.EventRequestSucceeded, "assistant")
	require.True(t, ok)
	toolEv, ok := run.Events.Find(core.EventRequestSucceeded, "weather")
	require.True(t, ok)
	assert.Equal(t, agentEv.NodeID, toolEv.ParentID)
	assert.Equal(t, 2, agentEv.Debug["model_calls"])
}

func TestToolAgent_StructuredCoercion(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city":      map[string]any{"type": "string"},
			"condition": map[string]any{"type": "string"},
		},
		"required": []string{"city", "condition"},
	}

	m := model.NewScriptedModel(
		testutil.TextTurn("Sunny in Berlin"),
		&model.Turn{Structured: json.RawMessage(`{"city":"Berlin","condition":"sunny"}`)},
	)

	a, err := NewToolAgent("reporter", m, []core.Tool{weatherTool()}, func(o *ToolAgentOptions) {
		o.OutputSchema = schema
		o.MaxToolCalls = intPtr(1)
	})
	require.NoError(t, err)

	run := testutil.NewRun(t, nil)

	res, err := engine.CallAs[*ToolAgentResult](run.RC, a.Factory(), "report")
	require.NoError(t, err)

	var report struct {
		City      string `json:"city"`
		Condition string `json:"condition"`
	}
	require.NoError(t, res.StructuredInto(&report))
	assert.Equal(t, "Berlin", report.City)
	assert.Equal(t, "sunny", report.Condition)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "structured", reqs[1].Method)
	assert.Equal(t, "Sunny in Berlin", reqs[1].History[len(reqs[1].History)-1].Content, "coercion sees the full transcript")

	run.Drain(t)
	structEv, ok := run.Events.Find(core.EventRequestSucceeded, "reporter.structured")
	require.True(t, ok)
	agentEv, ok := run.Events.Find(core.EventRequestSucceeded, "reporter")
	require.True(t, ok)
	assert.Equal(t, agentEv.NodeID, structEv.ParentID)
}

func TestToolAgent_StructuredCoercionKeepsModelCall(t *testing.T) {
	m := model.NewScriptedModel(
		testutil.ToolCallTurn(testutil.ToolCall("c1", "weather", map[string]any{"city": "Berlin"})),
		testutil.TextTurn("Sunny in Berlin"),
		&model.Turn{Structured: json.RawMessage(`{"city":"Berlin"}`)},
	)

	a, err := NewToolAgent("reporter", m, []core.Tool{weatherTool()}, func(o *ToolAgentOptions) {
		o.OutputSchema = map[string]any{"type": "object", "required": []string{"city"}}
	})
	require.NoError(t, err)

	run := testutil.NewRun(t, nil, func(o *core.RunContextOptions) { o.Limiter = core.NewModelLimiter(3) })

	res, err := engine.CallAs[*ToolAgentResult](run.RC, a.Factory(), "report")
	require.NoError(t, err)
	assert.Equal(t, "Sunny in Berlin", res.Final)

	doc, err := res.Structured()
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"Berlin"}`, string(doc))
	assert.Equal(t, 0, run.RC.Limiter.Remaining())

	run.Drain(t)
}

func TestStructuredAgent_WithoutLimiter(t *testing.T) {
	m := model.NewScriptedModel(&model.Turn{Structured: json.RawMessage(`{"ok":true}`)})
	sa := NewStructuredAgent("extract", m, map[string]any{"type": "object"})

	run := testutil.NewRun(t, nil)
	rc := *run.RC
	rc.Limiter = nil

	out, err := engine.Call(&rc, sa.Factory(), "text")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out.(json.RawMessage)))

	run.Drain(t)
}

func TestToolAgent_StructuredFailureIsLazy(t *testing.T) {
	m := model.NewScriptedModel(
		testutil.TextTurn("free text"),
		&model.Turn{Structured: json.RawMessage(`{"other":1}`)},
	)

	a, err := NewToolAgent("reporter", m, []core.Tool{weatherTool()}, func(o *ToolAgentOptions) {
		o.OutputSchema = map[string]any{"type": "object", "required": []string{"city"}}
	})
	require.NoError(t, err)

	run := testutil.NewRun(t, nil)

	res, err := engine.CallAs[*ToolAgentResult](run.RC, a.Factory(), "report")
	require.NoError(t, err, "the agent call itself succeeds")
	assert.Equal(t, "free text", res.Final)

	_, err = res.Structured()
	require.Error(t, err)
	var verr *tool.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestToolAgent_AsToolDelegation(t *testing.T) {
	inner, err := NewToolAgent("researcher", model.NewScriptedModel(testutil.TextTurn("42")), []core.Tool{weatherTool()})
	require.NoError(t, err)

	outerModel := model.NewScriptedModel(
		testutil.ToolCallTurn(testutil.ToolCall("c1", "researcher", map[string]any{"request": "answer?"})),
		testutil.TextTurn("The researcher says 42."),
	)

	outer, err := NewToolAgent("lead", outerModel, []core.Tool{inner.AsTool("Delegates research")})
	require.NoError(t, err)

	run := testutil.NewRun(t, nil)

	res, err := engine.CallAs[*ToolAgentResult](run.RC, outer.Factory(), "question")
	require.NoError(t, err)
	assert.Equal(t, "The researcher says 42.", res.Final)

	toolMsg := res.Transcript[len(res.Transcript)-2]
	assert.Equal(t, core.RoleTool, toolMsg.Role)
	assert.Equal(t, "42", toolMsg.Content)
}

func TestToolAgent_StreamEmitsChunk(t *testing.T) {
	a, err := NewToolAgent("streamer", model.NewScriptedModel(testutil.TextTurn("hello")), []core.Tool{weatherTool()}, func(o *ToolAgentOptions) {
		o.Stream = true
	})
	require.NoError(t, err)

	run := testutil.NewRun(t, nil)
	_, err = engine.Call(run.RC, a.Factory(), "hi")
	require.NoError(t, err)
	run.Drain(t)

	chunks := run.Events.ByKind(core.EventStreamChunk)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0].Chunk)
}

func TestToHistory(t *testing.T) {
	h, err := toHistory("hi")
	require.NoError(t, err)
	assert.Equal(t, []core.Message{core.NewUserMessage("hi")}, h)

	h, err = toHistory(map[string]any{"request": "do it"})
	require.NoError(t, err)
	assert.Equal(t, "do it", h[0].Content)

	h, err = toHistory(map[string]any{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, h[0].Content)

	in := []core.Message{core.NewUserMessage("a")}
	h, err = toHistory(in)
	require.NoError(t, err)
	h[0].Content = "changed"
	assert.Equal(t, "a", in[0].Content)

	_, err = toHistory(42)
	assert.Error(t, err)
}

func TestParallel(t *testing.T) {
	double := NewFunc("double", func(_ *core.RunContext, in any) (any, error) { return in.(int) * 2, nil })
	square := NewFunc("square", func(_ *core.RunContext, in any) (any, error) { return in.(int) * in.(int), nil })

	run := testutil.NewRun(t, nil)

	res, err := engine.Call(run.RC, NewParallel("fan", double, square), 3)
	require.NoError(t, err)
	assert.Equal(t, []any{6, 9}, res)
}

func TestParallel_AllBranchesCompleteOnFailure(t *testing.T) {
	boom := errors.New("boom")
	fail := NewFunc("fail", func(_ *core.RunContext, _ any) (any, error) { return nil, boom })
	mark := NewFunc("mark", func(rc *core.RunContext, _ any) (any, error) {
		rc.Store.Put("marked", true)
		return nil, nil
	})

	run := testutil.NewRun(t, nil)

	_, err := engine.Call(run.RC, NewParallel("fan", fail, mark), nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, true, run.RC.Store.GetOr("marked", false))
}

func TestSequential(t *testing.T) {
	inc := NewFunc("inc", func(_ *core.RunContext, in any) (any, error) { return in.(int) + 1, nil })
	boom := errors.New("boom")
	fail := NewFunc("fail", func(_ *core.RunContext, _ any) (any, error) { return nil, boom })
	never := NewFunc("never", func(_ *core.RunContext, _ any) (any, error) {
		t.Fatal("step after failure must not run")
		return nil, nil
	})

	run := testutil.NewRun(t, nil)

	res, err := engine.Call(run.RC, NewSequential("pipeline", inc, inc, inc), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res)

	_, err = engine.Call(run.RC, NewSequential("broken", inc, fail, never), 0)
	assert.ErrorIs(t, err, boom)
}
