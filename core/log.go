package core

import (
	"context"

	"github.com/hupe1980/taskmesh/logging"
)

// scopedLogger is embedded in RunContext. Records carry the run id and,
// inside a node call, the node name and execution id, so callers only pass
// the attributes specific to their event.
type scopedLogger struct {
	logger logging.Logger
}

func newScopedLogger(l logging.Logger, runID string) *scopedLogger {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &scopedLogger{logger: logging.With(l, "run_id", runID)}
}

// forCall binds the logger to ctx (trace correlation) and to exec.
func (s *scopedLogger) forCall(ctx context.Context, exec *Execution) *scopedLogger {
	l := logging.WithContext(s.logger, ctx)
	if exec != nil {
		l = logging.With(l, "node", exec.Name, "node_id", exec.ID)
	}
	return &scopedLogger{logger: l}
}

// Logger returns the logger with the scope attributes applied.
func (s *scopedLogger) Logger() logging.Logger { return s.logger }

func (s *scopedLogger) LogDebug(msg string, args ...any) { s.logger.Debug(msg, args...) }

func (s *scopedLogger) LogInfo(msg string, args ...any) { s.logger.Info(msg, args...) }

func (s *scopedLogger) LogWarn(msg string, args ...any) { s.logger.Warn(msg, args...) }

func (s *scopedLogger) LogError(msg string, args ...any) { s.logger.Error(msg, args...) }
