// Package taskmesh provides a high-level façade over the runner, the call
// scheduler and the event bus. Most applications interact with this package
// by:
//  1. Creating a TaskMesh via New() or NewFromConfig()
//  2. Building node factories (agent.NewFunc, agent.NewToolAgent, ...)
//  3. Running them synchronously (Run, InvokeSync) or streaming the run's
//     events while it executes (Invoke)
//
// Each run gets a fresh context store and event bus; nothing leaks between
// runs. Reports of finished runs are handed to Options.OnReport and, when
// persistence is enabled, written to the configured report.Store.
package taskmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/report"
	"github.com/hupe1980/taskmesh/runner"
)

// Options configures the TaskMesh instance.
type Options struct {
	// Runner holds the run defaults (timeout, model call ceiling, reports).
	Runner runner.Options

	// EventBufferSize sets the channel buffer size used by Invoke. The bus
	// consumer blocks while the buffer is full, so Invoke callers must keep
	// reading or cancel their context.
	EventBufferSize int

	// Scheduler (defaults to a scheduler on the global telemetry providers)
	Scheduler *engine.Scheduler

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TaskMesh is the high-level façade aggregating the runner and its services.
type TaskMesh struct {
	opts   Options
	runner *runner.Runner
}

// Result is the terminal outcome of an Invoke call.
type Result struct {
	RunID  string
	Output any
	Err    error
	Report *core.RunReport
}

// New creates a new TaskMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		EventBufferSize: 100,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}

	r := runner.New(func(o *runner.Options) {
		*o = opts.Runner
		if opts.Scheduler != nil {
			o.Scheduler = opts.Scheduler
		}
		if o.Logger == nil {
			o.Logger = opts.Logger
		}
	})

	return &TaskMesh{opts: opts, runner: r}
}

// NewFromConfig creates a TaskMesh from loaded configuration.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*TaskMesh, error) {
	apply, err := cfg.RunnerOptions()
	if err != nil {
		return nil, fmt.Errorf("taskmesh: %w", err)
	}

	return New(append([]func(o *Options){func(o *Options) {
		apply(&o.Runner)
		o.Logger = o.Runner.Logger
	}}, optFns...)...), nil
}

// Runner exposes the underlying runner.
func (m *TaskMesh) Runner() *runner.Runner { return m.runner }

// ReportStore returns the store runs are persisted to, if any.
func (m *TaskMesh) ReportStore() report.Store { return m.opts.Runner.ReportStore }

// Run executes factory's node with input as the root of a new run.
func (m *TaskMesh) Run(ctx context.Context, factory core.Factory, input any) (any, error) {
	return m.runner.Run(ctx, factory, input)
}

// Invoke starts a run asynchronously. Every event of the run is delivered on
// the returned event channel, which is closed once the run has been torn
// down; the Result is sent afterwards on the result channel.
func (m *TaskMesh) Invoke(
	ctx context.Context,
	factory core.Factory,
	input any,
) (string, <-chan core.Event, <-chan Result, error) {
	var final *core.RunReport

	s, err := m.runner.Start(ctx, func(o *runner.Options) {
		next := o.OnReport
		o.OnReport = func(r *core.RunReport) {
			final = r
			if next != nil {
				next(r)
			}
		}
	})
	if err != nil {
		return "", nil, nil, err
	}

	eventsCh := make(chan core.Event, m.opts.EventBufferSize)
	resultCh := make(chan Result, 1)

	s.Subscribe(func(ev core.Event) error {
		select {
		case eventsCh <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		defer close(resultCh)

		out, err := s.Run(factory, input)

		close(eventsCh)

		resultCh <- Result{RunID: s.ID(), Output: out, Err: err, Report: final}
	}()

	return s.ID(), eventsCh, resultCh, nil
}

// InvokeSync is a synchronous helper that drains the async channels and
// returns the run output together with every event of the run.
func (m *TaskMesh) InvokeSync(ctx context.Context, factory core.Factory, input any) (any, []core.Event, error) {
	_, eventsCh, resultCh, err := m.Invoke(ctx, factory, input)
	if err != nil {
		return nil, nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}

	res := <-resultCh

	return res.Output, events, res.Err
}
