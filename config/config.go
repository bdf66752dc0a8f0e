// Package config loads taskmesh settings from defaults, an optional YAML
// file and TASKMESH_ environment variables, and maps them onto the option
// structs of the runtime packages.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hupe1980/taskmesh/engine"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore: TASKMESH_RUN__MAX_MODEL_CALLS -> run.max_model_calls.
const EnvPrefix = "TASKMESH_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Run       RunConfig       `koanf:"run"`
	Agent     AgentConfig     `koanf:"agent"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Report    ReportConfig    `koanf:"report"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"` // json, text
	AddSource bool   `koanf:"add_source"`
	// Callbacks lists call lifecycle points logged by the scheduler:
	// before_node, after_node, on_error.
	Callbacks []string `koanf:"callbacks"`
}

type RunConfig struct {
	Timeout       time.Duration  `koanf:"timeout"`
	AbortGrace    time.Duration  `koanf:"abort_grace"`
	MaxModelCalls int            `koanf:"max_model_calls"` // <0 disables the ceiling
	InitialData   map[string]any `koanf:"initial_data"`
}

type AgentConfig struct {
	Provider     string  `koanf:"provider"` // openai, anthropic
	Model        string  `koanf:"model"`
	APIKey       string  `koanf:"api_key"`
	Temperature  float64 `koanf:"temperature"`
	MaxTokens    int64   `koanf:"max_tokens"`
	MaxToolCalls int     `koanf:"max_tool_calls"` // <0 is unlimited
	Stream       bool    `koanf:"stream"`
}

type DispatchConfig struct {
	MaxParallel    int  `koanf:"max_parallel"`
	LogStartEvents bool `koanf:"log_start_events"`
}

type ReportConfig struct {
	Persist bool   `koanf:"persist"`
	Store   string `koanf:"store"` // memory, file, sqlite
	Dir     string `koanf:"dir"`
	DSN     string `koanf:"dsn"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

func defaults(k *koanf.Koanf) {
	_ = k.Set("log.level", "info")
	_ = k.Set("log.format", "json")

	_ = k.Set("run.timeout", "0s")
	_ = k.Set("run.abort_grace", "1s")
	_ = k.Set("run.max_model_calls", 100)

	_ = k.Set("agent.provider", "openai")
	_ = k.Set("agent.temperature", 0.7)
	_ = k.Set("agent.max_tokens", 4096)
	_ = k.Set("agent.max_tool_calls", 10)

	_ = k.Set("dispatch.max_parallel", 0)

	_ = k.Set("report.persist", false)
	_ = k.Set("report.store", "memory")
	_ = k.Set("report.dir", "reports")
	_ = k.Set("report.dsn", "file:taskmesh.db")

	_ = k.Set("telemetry.exporter", "none")
	_ = k.Set("telemetry.service_name", "taskmesh")
}

// Load layers defaults, the YAML file at path (skipped when empty) and
// TASKMESH_ environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults(k)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// 2. Load from ENV (TASKMESH_AGENT__MODEL -> agent.model)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate rejects values the runtime cannot honor.
func (c *Config) Validate() error {
	switch c.Report.Store {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("config: unknown report store %q", c.Report.Store)
	}

	switch c.Telemetry.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("config: unknown telemetry exporter %q", c.Telemetry.Exporter)
	}

	switch c.Agent.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown agent provider %q", c.Agent.Provider)
	}

	for _, cb := range c.Log.Callbacks {
		switch engine.CallbackType(cb) {
		case engine.CallbackBeforeNode, engine.CallbackAfterNode, engine.CallbackOnError:
		default:
			return fmt.Errorf("config: unknown log callback %q", cb)
		}
	}

	if c.Run.Timeout < 0 {
		return fmt.Errorf("config: negative run timeout %s", c.Run.Timeout)
	}

	return nil
}
