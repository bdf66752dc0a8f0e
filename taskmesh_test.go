package taskmesh

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/agent"
	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/internal/testutil"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/report"
	"github.com/hupe1980/taskmesh/tool"
)

func TestRun(t *testing.T) {
	mesh := New(func(o *Options) {
		o.Runner.InitialData = map[string]any{"greeting": "hello"}
	})

	greet := agent.NewFunc("greet", func(rc *core.RunContext, input any) (any, error) {
		return rc.Store.GetOr("greeting", "").(string) + " " + input.(string), nil
	})

	out, err := mesh.Run(context.Background(), greet, "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestInvokeStreamsEventsInOrder(t *testing.T) {
	mesh := New()

	leaf := agent.NewFunc("leaf", func(rc *core.RunContext, _ any) (any, error) {
		require.NoError(t, rc.EmitChunk("partial"))
		return "leaf-done", nil
	})
	root := agent.NewFunc("root", func(rc *core.RunContext, _ any) (any, error) {
		return engine.Call(rc, leaf, nil)
	})

	runID, eventsCh, resultCh, err := mesh.Invoke(context.Background(), root, nil)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	var kinds []string
	for ev := range eventsCh {
		assert.Equal(t, runID, ev.RunID)
		kinds = append(kinds, string(ev.Kind)+":"+ev.NodeName)
	}

	assert.Equal(t, []string{
		"request.created:root",
		"request.created:leaf",
		"stream.chunk:leaf",
		"request.succeeded:leaf",
		"request.succeeded:root",
	}, kinds)

	res := <-resultCh
	require.NoError(t, res.Err)
	assert.Equal(t, "leaf-done", res.Output)
	require.NotNil(t, res.Report)
	assert.Equal(t, core.RunSucceeded, res.Report.Status)
	assert.Len(t, res.Report.Nodes, 2)
}

func TestInvokeSync_ToolAgent(t *testing.T) {
	adder := tool.NewFunctionTool("add", "Adds a and b", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"a", "b"},
	}, func(_ *core.RunContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	m := model.NewScriptedModel(
		testutil.ToolCallTurn(testutil.ToolCall("c1", "add", map[string]any{"a": 1.0, "b": 2.0})),
		testutil.TextTurn("The sum is 3."),
	)

	limit := 2
	calc, err := agent.NewToolAgent("calc", m, []core.Tool{adder}, func(o *agent.ToolAgentOptions) {
		o.MaxToolCalls = &limit
		o.OutputKey = "answer"
	})
	require.NoError(t, err)

	store := report.NewMemoryStore()
	mesh := New(func(o *Options) {
		o.Runner.Persist = true
		o.Runner.ReportStore = store
	})

	out, events, err := mesh.InvokeSync(context.Background(), calc.Factory(), "what is 1+2?")
	require.NoError(t, err)

	res, ok := out.(*agent.ToolAgentResult)
	require.True(t, ok)
	assert.Equal(t, "The sum is 3.", res.Final)
	assert.Equal(t, 1, res.ToolsExecuted)

	var toolDone bool
	for _, ev := range events {
		if ev.Kind == core.EventRequestSucceeded && ev.NodeName == "add" {
			toolDone = true
		}
	}
	assert.True(t, toolDone)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, core.RunSucceeded, list[0].Status)

	rep, err := store.Get(context.Background(), list[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, "The sum is 3.", rep.Context["answer"])
}

func TestInvokeSync_Failure(t *testing.T) {
	boom := errors.New("boom")

	mesh := New()
	_, events, err := mesh.InvokeSync(context.Background(), agent.NewFunc("fail", func(*core.RunContext, any) (any, error) {
		return nil, boom
	}), nil)

	require.ErrorIs(t, err, boom)
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventRequestFailed, events[len(events)-1].Kind)
}

func TestInvoke_NestedRunRejected(t *testing.T) {
	mesh := New()

	s, err := mesh.Runner().Start(context.Background())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, _, _, err = mesh.Invoke(s.Context(), agent.NewFunc("x", func(*core.RunContext, any) (any, error) { return nil, nil }), nil)
	assert.ErrorIs(t, err, core.ErrNestedRun)
}

func TestNewFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Run.MaxModelCalls = 1

	mesh, err := NewFromConfig(cfg, func(o *Options) { o.EventBufferSize = 4 })
	require.NoError(t, err)
	assert.Nil(t, mesh.ReportStore())

	twice := agent.NewFunc("twice", func(rc *core.RunContext, _ any) (any, error) {
		if err := rc.Limiter.Increment(); err != nil {
			return nil, err
		}
		return nil, rc.Limiter.Increment()
	})

	_, err = mesh.Run(context.Background(), twice, nil)
	assert.ErrorIs(t, err, core.ErrModelCallsExceeded)
}
