package runner

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/report"
)

// DefaultMaxModelCalls is the model call ceiling applied when Options leaves
// MaxModelCalls at zero.
const DefaultMaxModelCalls = 100

// DefaultAbortGrace is the time Session.Run waits for the call tree to
// unwind after a fatal failure when Options leaves AbortGrace at zero.
const DefaultAbortGrace = time.Second

// Options holds dependency + configuration overrides passed to New() and
// Start().
type Options struct {
	// Timeout bounds a session from Start to teardown. Zero disables it.
	Timeout time.Duration
	// AbortGrace bounds the wait for the entry node to return after a fatal
	// failure aborted the run. Nodes still running afterwards are abandoned.
	AbortGrace time.Duration
	// Persist stores the run report in ReportStore at teardown.
	Persist bool
	// ReportStore receives reports when Persist is set.
	ReportStore report.Store
	// OnReport is called once per session with the final report.
	OnReport func(r *core.RunReport)
	// InitialData seeds each session's ContextStore (deep copied).
	InitialData map[string]any
	// MaxModelCalls limits the number of model calls per run. Negative
	// values disable the ceiling.
	MaxModelCalls int
	// Scheduler drives node calls; nil selects a scheduler on the global
	// telemetry providers.
	Scheduler *engine.Scheduler
	// Logging services.
	Logger logging.Logger
}

func (o *Options) normalize() {
	if o.MaxModelCalls == 0 {
		o.MaxModelCalls = DefaultMaxModelCalls
	}
	if o.AbortGrace <= 0 {
		o.AbortGrace = DefaultAbortGrace
	}
	if o.Logger == nil {
		o.Logger = logging.NoOpLogger{}
	}
	if o.Persist && o.ReportStore == nil {
		o.ReportStore = report.NewMemoryStore()
	}
}

// Runner creates sessions and tracks the active ones. Public methods are
// safe for concurrent use.
type Runner struct {
	opts      Options
	scheduler *engine.Scheduler

	activeRuns map[string]*Session
	mu         sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxModelCalls: DefaultMaxModelCalls,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.normalize()

	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = engine.New()
	}

	return &Runner{
		opts:       opts,
		scheduler:  scheduler,
		activeRuns: make(map[string]*Session),
	}
}

// Start opens a session. optFns override the runner defaults for this
// session only. ctx must not already carry an active run.
func (r *Runner) Start(ctx context.Context, optFns ...func(o *Options)) (*Session, error) {
	if rc, ok := core.FromContext(ctx); ok {
		return nil, fmt.Errorf("%w: run %s", core.ErrNestedRun, rc.RunID)
	}

	opts := r.opts
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.normalize()

	scheduler := r.scheduler
	if opts.Scheduler != nil {
		scheduler = opts.Scheduler
	}

	s, err := newSession(ctx, scheduler, opts, r.release)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.activeRuns[s.id] = s
	r.mu.Unlock()

	s.logger.Info("runner.session.started", "timeout", opts.Timeout.String(), "persist", opts.Persist)

	return s, nil
}

// Run starts a session, runs factory's node with input as the root of the
// call tree and tears the session down.
func (r *Runner) Run(ctx context.Context, factory core.Factory, input any, optFns ...func(o *Options)) (any, error) {
	s, err := r.Start(ctx, optFns...)
	if err != nil {
		return nil, err
	}

	return s.Run(factory, input)
}

// Cancel cancels an active run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	s, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	s.cancel(context.Canceled)

	return nil
}

// Active returns the ids of sessions that have not been torn down.
func (r *Runner) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func (r *Runner) release(runID string) {
	r.mu.Lock()
	delete(r.activeRuns, runID)
	r.mu.Unlock()
}

func seedStore(initial map[string]any) *core.ContextStore {
	if len(initial) == 0 {
		return core.NewContextStore(nil)
	}

	seed := make(map[string]any, len(initial))
	if err := deepcopy.Copy(&seed, initial); err != nil {
		return core.NewContextStore(initial)
	}

	return core.NewContextStore(seed)
}
