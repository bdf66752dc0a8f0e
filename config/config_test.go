package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/agent"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/report"
	"github.com/hupe1980/taskmesh/runner"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "taskmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Run.MaxModelCalls)
	assert.Equal(t, time.Duration(0), cfg.Run.Timeout)
	assert.Equal(t, "openai", cfg.Agent.Provider)
	assert.Equal(t, 10, cfg.Agent.MaxToolCalls)
	assert.Equal(t, "memory", cfg.Report.Store)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: text
run:
  timeout: 30s
  max_model_calls: 20
  initial_data:
    user: ada
agent:
  provider: anthropic
  max_tool_calls: -1
dispatch:
  max_parallel: 4
report:
  persist: true
  store: file
  dir: /tmp/reports
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.Run.Timeout)
	assert.Equal(t, 20, cfg.Run.MaxModelCalls)
	assert.Equal(t, "ada", cfg.Run.InitialData["user"])
	assert.Equal(t, "anthropic", cfg.Agent.Provider)
	assert.Equal(t, -1, cfg.Agent.MaxToolCalls)
	assert.Equal(t, 4, cfg.Dispatch.MaxParallel)
	assert.True(t, cfg.Report.Persist)
	assert.Equal(t, "file", cfg.Report.Store)
	// untouched keys keep their defaults
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
agent:
  model: gpt-4o-mini
run:
  max_model_calls: 20
`)

	t.Setenv("TASKMESH_AGENT__MODEL", "gpt-4o")
	t.Setenv("TASKMESH_RUN__MAX_MODEL_CALLS", "7")
	t.Setenv("TASKMESH_DISPATCH__LOG_START_EVENTS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
	assert.Equal(t, 7, cfg.Run.MaxModelCalls)
	assert.True(t, cfg.Dispatch.LogStartEvents)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown store", func(t *testing.T) {
		_, err := Load(writeConfig(t, "report:\n  store: redis\n"))
		assert.ErrorContains(t, err, "unknown report store")
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := Load(writeConfig(t, "agent:\n  provider: ollama\n"))
		assert.ErrorContains(t, err, "unknown agent provider")
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := Load(writeConfig(t, "telemetry:\n  exporter: zipkin\n"))
		assert.ErrorContains(t, err, "unknown telemetry exporter")
	})

	t.Run("unknown callback", func(t *testing.T) {
		_, err := Load(writeConfig(t, "log:\n  callbacks: [on_retry]\n"))
		assert.ErrorContains(t, err, "unknown log callback")
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "run.max_model_calls", envKey("TASKMESH_RUN__MAX_MODEL_CALLS"))
	assert.Equal(t, "log.level", envKey("TASKMESH_LOG__LEVEL"))
}

func TestRunnerOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
run:
  timeout: 2s
  max_model_calls: 3
report:
  persist: true
  store: sqlite
  dsn: "file:config_runner_options?mode=memory&cache=shared"
`))
	require.NoError(t, err)

	apply, err := cfg.RunnerOptions()
	require.NoError(t, err)

	var opts runner.Options
	apply(&opts)

	assert.Equal(t, 2*time.Second, opts.Timeout)
	assert.Equal(t, 3, opts.MaxModelCalls)
	assert.True(t, opts.Persist)
	require.IsType(t, &report.SQLiteStore{}, opts.ReportStore)
	assert.NotNil(t, opts.Logger)

	require.NoError(t, opts.ReportStore.(*report.SQLiteStore).Close())
}

func TestRunnerOptions_LogCallbacks(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
log:
  callbacks: [on_error, after_node]
run:
  abort_grace: 250ms
`))
	require.NoError(t, err)

	apply, err := cfg.RunnerOptions()
	require.NoError(t, err)

	var opts runner.Options
	apply(&opts)

	assert.Equal(t, 250*time.Millisecond, opts.AbortGrace)
	require.NotNil(t, opts.Scheduler)
	cbs := opts.Scheduler.Callbacks()
	assert.Equal(t, 1, cbs.Count(engine.CallbackOnError))
	assert.Equal(t, 1, cbs.Count(engine.CallbackAfterNode))
	assert.Equal(t, 0, cbs.Count(engine.CallbackBeforeNode))
}

func TestRunnerOptions_NoPersistence(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	apply, err := cfg.RunnerOptions()
	require.NoError(t, err)

	var opts runner.Options
	apply(&opts)

	assert.False(t, opts.Persist)
	assert.Nil(t, opts.ReportStore)
	assert.Nil(t, opts.Scheduler)
	assert.Equal(t, time.Second, opts.AbortGrace)
}

func TestReportStore(t *testing.T) {
	cfg := &Config{Report: ReportConfig{Store: "file", Dir: filepath.Join(t.TempDir(), "r")}}

	s, err := cfg.ReportStore()
	require.NoError(t, err)
	assert.IsType(t, &report.FileStore{}, s)

	cfg.Report.Store = "memory"
	s, err = cfg.ReportStore()
	require.NoError(t, err)
	assert.IsType(t, &report.MemoryStore{}, s)
}

func TestToolAgentOptions(t *testing.T) {
	cfg := &Config{
		Agent:    AgentConfig{MaxToolCalls: 2, Stream: true},
		Dispatch: DispatchConfig{MaxParallel: 3},
	}

	var opts agent.ToolAgentOptions
	cfg.ToolAgentOptions()(&opts)

	require.NotNil(t, opts.MaxToolCalls)
	assert.Equal(t, 2, *opts.MaxToolCalls)
	assert.True(t, opts.Stream)
	assert.Equal(t, 3, opts.Dispatcher.MaxParallel)

	cfg.Agent.MaxToolCalls = -1
	opts = agent.ToolAgentOptions{}
	cfg.ToolAgentOptions()(&opts)
	assert.Nil(t, opts.MaxToolCalls)
}

func TestModel(t *testing.T) {
	cfg := &Config{Agent: AgentConfig{Provider: "anthropic", Model: "claude-3-5-haiku-latest", APIKey: "test"}}

	m := cfg.Model()
	assert.Equal(t, model.Info{Name: "claude-3-5-haiku-latest", Provider: "anthropic", SupportsTools: true}, m.Info())

	cfg.Agent = AgentConfig{Provider: "openai", Model: "gpt-4o", APIKey: "test"}
	assert.Equal(t, "openai", cfg.Model().Info().Provider)
	assert.Equal(t, "gpt-4o", cfg.Model().Info().Name)
}

func TestInitTelemetryNone(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	shutdown, err := cfg.InitTelemetry("test")
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}
