// Package logging provides a minimal logging interface and adapters for taskmesh.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the scheduler, the event bus and the runner use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging, optionally bound to a
//     context so that OpenTelemetry trace and span ids are attached
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text"})
//	r := runner.New(func(o *runner.Options) { o.Logger = logger })
//
// Messages use dotted event names ("engine.node.failed") followed by
// key/value pairs.
package logging
