package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
)

func newRun(seed map[string]any) *core.RunContext {
	return core.NewRunContext(context.Background(), "run-1", core.NewContextStore(seed))
}

func call(t *testing.T, rc *core.RunContext, tl core.Tool, args map[string]any) (any, error) {
	t.Helper()
	return engine.Call(rc, core.ToolFactory(tl), args)
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.RunContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	assert.Equal(t, "sum", sumTool.Descriptor().Name)
	assert.Equal(t, "Add numbers", sumTool.Descriptor().Detail)

	result, err := call(t, newRun(nil), sumTool, map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	called := false
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.RunContext, _ map[string]any) (any, error) {
		called = true
		return 0, nil
	})

	_, err := call(t, newRun(nil), tTool, map[string]any{})
	require.Error(t, err)
	assert.False(t, called)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	boom := errors.New("boom")
	execTool := NewFunctionTool("fail", "Fails", nil, func(_ *core.RunContext, _ map[string]any) (any, error) {
		return nil, boom
	})

	_, err := call(t, newRun(nil), execTool, nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.ErrorIs(t, err, boom)
}

func TestFunctionTool_ForwardsCustomToolError(t *testing.T) {
	custom := NewToolError("quota", "limit reached", "RATE_LIMIT")
	qt := NewFunctionTool("quota", "", nil, func(_ *core.RunContext, _ map[string]any) (any, error) {
		return nil, custom
	})

	_, err := call(t, newRun(nil), qt, nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Same(t, custom, toolErr)
}

func TestFunctionToolFromStruct(t *testing.T) {
	type args struct {
		City string `json:"city" description:"City name"`
	}

	ft := NewFunctionToolFromStruct("weather", "Weather lookup", args{}, func(_ *core.RunContext, a map[string]any) (any, error) {
		return "sunny in " + a["city"].(string), nil
	})

	params := ft.Descriptor().Parameters
	assert.Equal(t, []string{"city"}, params["required"])

	res, err := call(t, newRun(nil), ft, map[string]any{"city": "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in Berlin", res)
}

// -------------------- NodeTool & Set --------------------

func TestNodeTool_PassesArguments(t *testing.T) {
	nt := NewNodeTool(core.ToolDescriptor{Name: "echo"}, func(input any) (core.Node, error) {
		return core.NewNodeFunc("echo", func(_ *core.RunContext) (any, error) {
			return input.(map[string]any)["msg"], nil
		}), nil
	})

	res, err := call(t, newRun(nil), nt, map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res)
}

func TestSet(t *testing.T) {
	a := NewNodeTool(core.ToolDescriptor{Name: "a"}, nil)
	b := NewNodeTool(core.ToolDescriptor{Name: "b"}, nil)

	s, err := NewSet(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.Names())
	assert.Len(t, s.Descriptors(), 2)

	got, ok := s.Lookup("b")
	assert.True(t, ok)
	assert.Same(t, b, got)

	_, ok = s.Lookup("missing")
	assert.False(t, ok)

	_, err = NewSet(a, NewNodeTool(core.ToolDescriptor{Name: "a"}, nil))
	assert.ErrorIs(t, err, ErrDuplicateTool)

	_, err = NewSet(NewNodeTool(core.ToolDescriptor{}, nil))
	assert.Error(t, err)
}

// -------------------- ContextTool --------------------

func TestContextTool(t *testing.T) {
	ct := NewContextTool()
	rc := newRun(map[string]any{"seed": 1})

	res, err := call(t, rc, ct, map[string]any{"operation": "put", "key": "city", "value": "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, true, res.(map[string]any)["success"])

	res, err = call(t, rc, ct, map[string]any{"operation": "get", "key": "city"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "city", "exists": true, "value": "Berlin"}, res)

	res, err = call(t, rc, ct, map[string]any{"operation": "list"})
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "seed"}, res.(map[string]any)["keys"])

	_, err = call(t, rc, ct, map[string]any{"operation": "delete", "key": "city"})
	require.NoError(t, err)

	res, err = call(t, rc, ct, map[string]any{"operation": "get", "key": "city"})
	require.NoError(t, err)
	assert.Equal(t, false, res.(map[string]any)["exists"])

	_, err = call(t, rc, ct, map[string]any{"operation": "get"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	_, err = call(t, rc, ct, map[string]any{})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")

	err = &ToolError{Tool: "demo", Message: "plain"}
	assert.Equal(t, "tool error in demo: plain", err.Error())
}
