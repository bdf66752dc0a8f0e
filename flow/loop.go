package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/tool"
)

// LoopState is a state of the tool-calling loop.
type LoopState string

const (
	StateAwaitingModel    LoopState = "awaiting_model"
	StateDispatchingTools LoopState = "dispatching_tools"
	StateForcedFinal      LoopState = "forced_final"
	StateFinished         LoopState = "finished"
)

// LoopOptions configures a Loop.
type LoopOptions struct {
	// MaxToolCalls bounds the number of tool messages in a transcript. Nil
	// means unlimited; zero forces an immediate final answer without tools.
	MaxToolCalls *int
	// Dispatcher tunes concurrent tool execution.
	Dispatcher DispatcherOptions
	// ReservedModelCalls are left in the run's model call ceiling after the
	// forced final answer of an unbounded loop, for calls the caller makes
	// once the loop finished.
	ReservedModelCalls int
	// Logger receives construction time warnings.
	Logger logging.Logger
}

// Loop drives a model through repeated tool calls until it produces a final
// answer or the tool-call budget is exhausted.
//
// State machine:
//
//	AwaitingModel    -> budget exhausted            -> ForcedFinal
//	AwaitingModel    -> model answers with content  -> Finished
//	AwaitingModel    -> model requests tool calls   -> DispatchingTools
//	DispatchingTools -> responses appended          -> AwaitingModel
//	ForcedFinal      -> one model call without tools -> Finished
//
// A Loop holds no per-run state and may be shared by concurrent calls.
type Loop struct {
	model        model.Model
	tools        *tool.Set
	dispatcher   *Dispatcher
	maxToolCalls *int
	reserved     int
}

// NewLoop constructs a Loop. An empty tool set fails with
// core.ErrEmptyToolSet.
func NewLoop(m model.Model, tools []core.Tool, optFns ...func(o *LoopOptions)) (*Loop, error) {
	opts := LoopOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if m == nil {
		return nil, errors.New("model must not be nil")
	}

	if len(tools) == 0 {
		return nil, core.ErrEmptyToolSet
	}

	set, err := tool.NewSet(tools...)
	if err != nil {
		return nil, err
	}

	if opts.MaxToolCalls != nil && *opts.MaxToolCalls < 0 {
		return nil, fmt.Errorf("max tool calls must not be negative: %d", *opts.MaxToolCalls)
	}

	if opts.MaxToolCalls == nil && opts.Logger != nil {
		opts.Logger.Warn("flow.loop.unbounded", "tools", set.Names(), "hint", "set MaxToolCalls to bound tool usage")
	}

	return &Loop{
		model:        m,
		tools:        set,
		dispatcher:   NewDispatcher(set, func(o *DispatcherOptions) { *o = opts.Dispatcher }),
		maxToolCalls: opts.MaxToolCalls,
		reserved:     max(opts.ReservedModelCalls, 0),
	}, nil
}

// Tools returns the loop's tool set.
func (l *Loop) Tools() *tool.Set { return l.tools }

// LoopResult is the outcome of one Run.
type LoopResult struct {
	// Transcript is the input history followed by every message the loop appended.
	Transcript []core.Message
	// Final is the content of the last assistant message.
	Final string
	// ToolsExecuted counts the tool calls dispatched by this run.
	ToolsExecuted int
	// ModelCalls counts the model requests issued by this run.
	ModelCalls int
	// Forced reports whether the final answer was forced by the budget.
	Forced bool
}

// Run executes the loop starting from history. history is never modified.
func (l *Loop) Run(rc *core.RunContext, history []core.Message) (*LoopResult, error) {
	res := &LoopResult{Transcript: slices.Clone(history)}
	descriptors := l.tools.Descriptors()

	for {
		if err := rc.Err(); err != nil {
			return nil, fmt.Errorf("tool loop interrupted: %w", context.Cause(rc.Context))
		}

		used := core.CountToolMessages(res.Transcript)

		if l.budgetExhausted(rc, used) {
			rc.LogDebug("flow.loop.state", "state", string(StateForcedFinal), "tool_messages", used)

			turn, err := l.callModel(rc, res, func(ctx context.Context) (*model.Turn, error) {
				return l.model.Chat(ctx, res.Transcript)
			})
			if err != nil {
				return nil, err
			}

			res.Forced = true
			res.Transcript = append(res.Transcript, core.NewAssistantMessage(turn.Content))

			return l.finish(rc, res, turn.Content), nil
		}

		rc.LogDebug("flow.loop.state", "state", string(StateAwaitingModel), "tool_messages", used)

		turn, err := l.callModel(rc, res, func(ctx context.Context) (*model.Turn, error) {
			return l.model.ChatWithTools(ctx, res.Transcript, descriptors)
		})
		if err != nil {
			return nil, err
		}

		if !turn.HasToolCalls() {
			res.Transcript = append(res.Transcript, turn.Message())
			return l.finish(rc, res, turn.Content), nil
		}

		calls := turn.ToolCalls
		if l.maxToolCalls != nil {
			if remaining := *l.maxToolCalls - used; len(calls) > remaining {
				rc.LogInfo("flow.loop.truncated", "requested", len(calls), "accepted", remaining)
				calls = calls[:remaining]
			}
		}

		res.Transcript = append(res.Transcript, core.NewToolCallMessage(turn.Content, slices.Clone(calls)))

		rc.LogDebug("flow.loop.state", "state", string(StateDispatchingTools), "calls", len(calls))

		responses, fatal := l.dispatcher.Dispatch(rc, calls)
		for _, resp := range responses {
			res.Transcript = append(res.Transcript, core.NewToolMessage(resp))
		}

		res.ToolsExecuted += len(calls)
		rc.AddDebug("tools_executed", len(calls))

		if fatal != nil {
			return nil, fatal
		}
	}
}

// budgetExhausted decides whether the next model call must be the final
// one. Without a tool budget the run's model call ceiling takes over: the
// last remaining model call, plus the reserved ones, is kept for a final
// answer.
func (l *Loop) budgetExhausted(rc *core.RunContext, used int) bool {
	if l.maxToolCalls != nil {
		return used >= *l.maxToolCalls
	}

	return rc.Limiter.AtMost(1 + l.reserved)
}

func (l *Loop) callModel(rc *core.RunContext, res *LoopResult, fn func(ctx context.Context) (*model.Turn, error)) (*model.Turn, error) {
	if err := rc.Limiter.Increment(); err != nil {
		return nil, err
	}

	res.ModelCalls++
	rc.AddDebug("model_calls", 1)

	turn, err := fn(rc.Context)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}

	if err := turn.Validate(); err != nil {
		return nil, core.NewFatalError("malformed model response", err)
	}

	if u := turn.Usage; u != nil {
		rc.AddDebug("prompt_tokens", u.PromptTokens)
		rc.AddDebug("completion_tokens", u.CompletionTokens)
		rc.AddDebug("total_tokens", u.TotalTokens)
	}

	return turn, nil
}

func (l *Loop) finish(rc *core.RunContext, res *LoopResult, final string) *LoopResult {
	res.Final = final

	rc.LogInfo(
		"flow.loop.finished",
		"state", string(StateFinished),
		"tools_executed", res.ToolsExecuted,
		"model_calls", res.ModelCalls,
		"forced_final", res.Forced,
	)

	return res
}
