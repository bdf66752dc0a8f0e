package model

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// ErrScriptExhausted is returned when a ScriptedModel has no turns left.
var ErrScriptExhausted = errors.New("scripted model: no turns left")

// Request records one call made to a ScriptedModel.
type Request struct {
	Method  string
	History []core.Message
	Tools   []core.ToolDescriptor
	Schema  map[string]any
}

// ScriptedModel replays a fixed sequence of turns and records every request.
// It is safe for concurrent use and intended for tests and examples.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	turns    []scriptedTurn
	requests []Request
}

type scriptedTurn struct {
	turn *Turn
	err  error
}

// NewScriptedModel creates a ScriptedModel that returns turns in order.
func NewScriptedModel(turns ...*Turn) *ScriptedModel {
	m := &ScriptedModel{info: Info{Name: "scripted", Provider: "mock", SupportsTools: true}}
	for _, t := range turns {
		m.turns = append(m.turns, scriptedTurn{turn: t})
	}
	return m
}

// Push appends a turn to the script.
func (m *ScriptedModel) Push(t *Turn) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, scriptedTurn{turn: t})

	return m
}

// PushError appends a failing step to the script.
func (m *ScriptedModel) PushError(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, scriptedTurn{err: err})

	return m
}

// Requests returns a copy of the recorded requests.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.requests)
}

func (m *ScriptedModel) next(ctx context.Context, req Request) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req.History = slices.Clone(req.History)
	m.requests = append(m.requests, req)

	if len(m.turns) == 0 {
		return nil, ErrScriptExhausted
	}

	step := m.turns[0]
	m.turns = m.turns[1:]

	return step.turn, step.err
}

// Chat implements Model.
func (m *ScriptedModel) Chat(ctx context.Context, history []core.Message) (*Turn, error) {
	return m.next(ctx, Request{Method: "chat", History: history})
}

// ChatWithTools implements Model.
func (m *ScriptedModel) ChatWithTools(ctx context.Context, history []core.Message, tools []core.ToolDescriptor) (*Turn, error) {
	return m.next(ctx, Request{Method: "chat_with_tools", History: history, Tools: slices.Clone(tools)})
}

// Structured implements Model.
func (m *ScriptedModel) Structured(ctx context.Context, history []core.Message, schema map[string]any) (*Turn, error) {
	return m.next(ctx, Request{Method: "structured", History: history, Schema: schema})
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
