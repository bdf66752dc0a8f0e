package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/taskmesh/bus"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/logging"
)

// Session is one run: an owned ContextStore and event bus plus the run
// context every node call of the run descends from.
type Session struct {
	id        string
	opts      Options
	scheduler *engine.Scheduler
	bus       *bus.Bus
	rc        *core.RunContext
	logger    logging.Logger
	startedAt time.Time

	cancel  context.CancelCauseFunc
	stop    context.CancelFunc
	release func(runID string)

	ran    atomic.Bool
	closed atomic.Bool

	mu      sync.Mutex
	records []core.NodeRecord

	once       sync.Once
	report     *core.RunReport
	persistErr error
}

func newSession(parent context.Context, scheduler *engine.Scheduler, opts Options, release func(string)) (*Session, error) {
	if parent == nil {
		parent = context.Background()
	}

	runID := core.NewID()
	logger := logging.With(opts.Logger, "run_id", runID)

	b := bus.New(func(o *bus.Options) { o.Logger = logger })
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("start event bus: %w", err)
	}

	ctx, cancel := context.WithCancelCause(engine.WithScheduler(parent, scheduler))

	stop := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		ctx, stop = context.WithTimeoutCause(ctx, opts.Timeout, core.ErrRunTimedOut)
	}

	s := &Session{
		id:        runID,
		opts:      opts,
		scheduler: scheduler,
		bus:       b,
		logger:    logger,
		startedAt: time.Now().UTC(),
		cancel:    cancel,
		stop:      stop,
		release:   release,
	}

	b.Subscribe(s.record)

	s.rc = core.NewRunContext(ctx, runID, seedStore(opts.InitialData), func(o *core.RunContextOptions) {
		o.Publisher = b
		o.Limiter = core.NewModelLimiter(max(opts.MaxModelCalls, 0))
		o.Logger = opts.Logger
		o.Abort = cancel
	})

	return s, nil
}

// ID returns the run id.
func (s *Session) ID() string { return s.id }

// Context returns the run's context. Top level code may pass it to
// engine.CallSync to issue calls before or instead of Run.
func (s *Session) Context() context.Context { return s.rc.Context }

// RunContext returns the root RunContext of the session.
func (s *Session) RunContext() *core.RunContext { return s.rc }

// Store returns the session's ContextStore.
func (s *Session) Store() *core.ContextStore { return s.rc.Store }

// Subscribe registers fn on the session's event bus.
func (s *Session) Subscribe(fn bus.Subscriber) { s.bus.Subscribe(fn) }

// Listen blocks until an event matching pred is delivered.
func (s *Session) Listen(ctx context.Context, pred bus.Predicate) (core.Event, error) {
	return s.bus.Listen(ctx, pred)
}

// Report returns the run report once the session has been torn down.
func (s *Session) Report() (*core.RunReport, bool) {
	if !s.closed.Load() {
		return nil, false
	}
	return s.report, s.report != nil
}

func (s *Session) record(ev core.Event) error {
	rec, ok := core.NewNodeRecord(ev)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	return nil
}

type outcome struct {
	result any
	err    error
}

// Run executes the node built by factory from input as the root of the
// session's call tree and tears the session down. A session runs once;
// later calls fail with core.ErrSessionClosed.
func (s *Session) Run(factory core.Factory, input any) (any, error) {
	if s.closed.Load() || !s.ran.CompareAndSwap(false, true) {
		return nil, core.ErrSessionClosed
	}

	done := make(chan outcome, 1)

	go func() {
		res, err := s.scheduler.Call(s.rc, factory, input)
		done <- outcome{result: res, err: err}
	}()

	var out outcome

	select {
	case out = <-done:
	case <-s.rc.Done():
		cause := context.Cause(s.rc.Context)

		if core.IsFatal(cause) {
			// the failing node is unwinding already; run.fatal is published
			grace := time.NewTimer(s.opts.AbortGrace)
			defer grace.Stop()

			select {
			case out = <-done:
			case <-grace.C:
				s.logger.Warn("runner.run.abandoned", "grace", s.opts.AbortGrace.String())
				out.err = fmt.Errorf("run %s: %w", s.id, cause)
			}
			break
		}

		if errors.Is(cause, core.ErrRunTimedOut) {
			_ = s.bus.Publish(core.NewFatalEvent(s.id, nil, cause))
			s.logger.Error("runner.run.timed_out", "timeout", s.opts.Timeout.String())
		}

		out.err = fmt.Errorf("run %s: %w", s.id, cause)
	}

	status := core.RunSucceeded

	switch {
	case out.err == nil:
	case errors.Is(out.err, core.ErrRunTimedOut):
		status = core.RunTimedOut
	default:
		status = core.RunFailed
	}

	if err := s.teardown(status, out.err); err != nil {
		s.logger.Warn("runner.report.persist_failed", "error", err.Error())
	}

	if out.err != nil {
		return nil, out.err
	}

	return out.result, nil
}

// Close tears the session down without running a node. It is idempotent and
// returns the report persistence error, if any.
func (s *Session) Close() error {
	s.ran.Store(true)
	return s.teardown(core.RunSucceeded, nil)
}

func (s *Session) teardown(status core.RunStatus, runErr error) error {
	s.once.Do(func() {
		if err := s.bus.Shutdown(); err != nil {
			s.logger.Warn("runner.bus.shutdown_failed", "error", err.Error())
		}

		s.mu.Lock()
		records := append([]core.NodeRecord(nil), s.records...)
		s.mu.Unlock()

		r := &core.RunReport{
			RunID:      s.id,
			Status:     status,
			StartedAt:  s.startedAt,
			FinishedAt: time.Now().UTC(),
			Nodes:      records,
			Context:    s.rc.Store.DeepSnapshot(),
		}
		if runErr != nil {
			r.Error = runErr.Error()
		}

		s.report = r

		s.stop()
		s.cancel(core.ErrSessionClosed)

		if s.opts.OnReport != nil {
			s.opts.OnReport(r)
		}

		if s.opts.Persist {
			if err := s.opts.ReportStore.Save(context.Background(), r); err != nil {
				s.persistErr = fmt.Errorf("persist report %s: %w", s.id, err)
			}
		}

		if s.release != nil {
			s.release(s.id)
		}

		s.closed.Store(true)

		s.logger.Info("runner.session.closed",
			"status", string(status),
			"nodes", len(records),
			"duration_ms", r.Duration().Milliseconds(),
		)
	})

	return s.persistErr
}
