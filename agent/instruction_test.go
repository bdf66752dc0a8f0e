package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(*core.RunContext) (string, error) { return m.text, m.err }

func newTestRunContext(seed map[string]any) *core.RunContext {
	return core.NewRunContext(context.Background(), "run-1", core.NewContextStore(seed))
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)
}

func TestInstruction_TemplateFromContextStore(t *testing.T) {
	inst := NewInstructionFromText("Answer in {{ .language }} for {{ default \"a guest\" .user }}.")

	got, err := inst.Resolve(newTestRunContext(map[string]any{"language": "German"}))
	require.NoError(t, err)
	assert.Equal(t, "Answer in German for a guest.", got)
}

func TestInstruction_NewInstructionFromFunc(t *testing.T) {
	inst := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		return "dynamic via func for " + rc.RunID, nil
	})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "dynamic via func for run-1", got)
}

func TestInstruction_NewInstructionFromProvider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "provider text"})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "provider text", got)
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	expectedErr := errors.New("boom")
	inst := NewInstructionFromProvider(mockProvider{err: expectedErr})

	_, err := inst.Resolve(newTestRunContext(nil))
	assert.ErrorIs(t, err, expectedErr)
}

func TestInstruction_Zero(t *testing.T) {
	assert.True(t, Instruction{}.IsZero())
	assert.False(t, NewInstructionFromText("x").IsZero())
}

func TestInstruction_Strict(t *testing.T) {
	inst := NewStrictInstruction("Summarize {{ .notes }}.")
	assert.True(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext(map[string]any{"notes": "three facts"}))
	require.NoError(t, err)
	assert.Equal(t, "Summarize three facts.", got)

	_, err = inst.Resolve(newTestRunContext(nil))
	assert.Error(t, err)

	got, err = NewInstructionFromText("Summarize {{ .notes }}.").Resolve(newTestRunContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "Summarize <no value>.", got)
}
