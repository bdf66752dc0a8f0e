package agent

import (
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
)

// Provider computes instruction text when an agent call starts.
type Provider interface {
	Instruction(*core.RunContext) (string, error)
}

// InstructionFunc adapts a function to Provider.
type InstructionFunc func(*core.RunContext) (string, error)

// Instruction implements Provider.
func (f InstructionFunc) Instruction(rc *core.RunContext) (string, error) { return f(rc) }

// Instruction is the system prompt of an agent: either a text template
// rendered against the run's context store, or a Provider.
//
//	NewInstructionFromText("Answer in {{ .language }}.")
//	NewStrictInstruction("Summarize {{ .notes }}.") // fails if notes is unset
type Instruction struct {
	text     string
	strict   bool
	provider Provider
}

// NewInstructionFromText creates a template instruction. Missing keys render
// as "<no value>"; use default to supply a fallback.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewStrictInstruction creates a template instruction whose resolution fails
// when it references a key missing from the context store.
func NewStrictInstruction(text string) Instruction { return Instruction{text: text, strict: true} }

func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return NewInstructionFromProvider(InstructionFunc(f))
}

// IsStatic reports whether the instruction is template text.
func (i Instruction) IsStatic() bool { return i.provider == nil }

func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve produces the instruction text for the call running under rc.
func (i Instruction) Resolve(rc *core.RunContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(rc)
	}

	return util.RenderTemplate(i.text, rc.Store.Snapshot(), func(o *util.TemplateOptions) {
		o.Strict = i.strict
	})
}
