package config

import (
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/taskmesh/agent"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/model/anthropic"
	"github.com/hupe1980/taskmesh/model/openai"
	"github.com/hupe1980/taskmesh/report"
	"github.com/hupe1980/taskmesh/runner"
	"github.com/hupe1980/taskmesh/telemetry"
)

// Logger builds the slog backed logger described by the log section.
func (c *Config) Logger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(c.Log.Level),
		Format:    c.Log.Format,
		Output:    os.Stderr,
		AddSource: c.Log.AddSource,
		Component: "taskmesh",
	})
}

// ReportStore opens the configured report store.
func (c *Config) ReportStore() (report.Store, error) {
	switch c.Report.Store {
	case "file":
		return report.NewFileStore(c.Report.Dir)
	case "sqlite":
		return report.OpenSQLiteStore(c.Report.DSN)
	default:
		return report.NewMemoryStore(), nil
	}
}

// RunnerOptions maps the run, report and log sections onto runner.Options.
func (c *Config) RunnerOptions() (func(o *runner.Options), error) {
	var store report.Store

	if c.Report.Persist {
		s, err := c.ReportStore()
		if err != nil {
			return nil, fmt.Errorf("report store: %w", err)
		}
		store = s
	}

	logger := c.Logger()
	scheduler := c.Scheduler(logger)

	return func(o *runner.Options) {
		o.Timeout = c.Run.Timeout
		o.AbortGrace = c.Run.AbortGrace
		if scheduler != nil {
			o.Scheduler = scheduler
		}
		o.MaxModelCalls = c.Run.MaxModelCalls
		o.InitialData = c.Run.InitialData
		o.Persist = c.Report.Persist
		o.ReportStore = store
		o.Logger = logger
	}, nil
}

// Scheduler builds a scheduler logging the call lifecycle points listed in
// log.callbacks to logger. It returns nil when none are listed.
func (c *Config) Scheduler(logger logging.Logger) *engine.Scheduler {
	if len(c.Log.Callbacks) == 0 {
		return nil
	}

	return engine.New(func(o *engine.Options) {
		for _, cb := range c.Log.Callbacks {
			o.Callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackType(cb), logger))
		}
	})
}

// ToolAgentOptions maps the agent and dispatch sections onto
// agent.ToolAgentOptions.
func (c *Config) ToolAgentOptions() func(o *agent.ToolAgentOptions) {
	return func(o *agent.ToolAgentOptions) {
		if c.Agent.MaxToolCalls >= 0 {
			limit := c.Agent.MaxToolCalls
			o.MaxToolCalls = &limit
		}
		o.Stream = c.Agent.Stream
		o.Dispatcher.MaxParallel = c.Dispatch.MaxParallel
		o.Dispatcher.LogStartEvents = c.Dispatch.LogStartEvents
	}
}

// Model builds the model adapter of the configured provider. Empty model
// names keep the adapter defaults.
func (c *Config) Model() model.Model {
	switch c.Agent.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if c.Agent.Model != "" {
				o.Model = anthropicsdk.Model(c.Agent.Model)
			}
			o.APIKey = c.Agent.APIKey
			o.Temperature = c.Agent.Temperature
			if c.Agent.MaxTokens > 0 {
				o.MaxTokens = c.Agent.MaxTokens
			}
		})
	default:
		return openai.NewModel(func(o *openai.Options) {
			if c.Agent.Model != "" {
				o.Model = c.Agent.Model
			}
			o.APIKey = c.Agent.APIKey
			o.Temperature = c.Agent.Temperature
			if c.Agent.MaxTokens > 0 {
				o.MaxCompletionTokens = c.Agent.MaxTokens
			}
		})
	}
}

// InitTelemetry installs the configured exporters globally.
func (c *Config) InitTelemetry(version string) (telemetry.ShutdownFunc, error) {
	return telemetry.Init(c.Telemetry.ServiceName, version, telemetry.Config{
		Exporter:     c.Telemetry.Exporter,
		OTLPEndpoint: c.Telemetry.OTLPEndpoint,
		OTLPInsecure: c.Telemetry.OTLPInsecure,
	})
}

