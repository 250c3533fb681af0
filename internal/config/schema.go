// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for toolgate.
package config

import (
	"time"

	"github.com/flemzord/toolgate/internal/agent"
	"github.com/flemzord/toolgate/internal/gateway"
	"github.com/flemzord/toolgate/internal/mcp"
	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/security"
	openaicompat "github.com/flemzord/toolgate/modules/provider/openai_compatible"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Engine      EngineConfig       `yaml:"engine"`
	Agent       AgentConfig        `yaml:"agent"`
	ToolServers []mcp.ServerConfig `yaml:"tool_servers"`
	Tools       ToolsConfig        `yaml:"tools"`
	Console     ConsoleConfig      `yaml:"console"`
	Logging     LoggingConfig      `yaml:"logging"`
	Audit       AuditConfig        `yaml:"audit"`
	Admin       AdminConfig        `yaml:"admin"`
	Tracing     TracingConfig      `yaml:"tracing"`
	Security    SecurityConfig     `yaml:"security"`
}

// EngineConfig configures the reasoning engine client and its breaker.
type EngineConfig struct {
	openaicompat.Config `yaml:",inline"`

	Breaker provider.BreakerConfig `yaml:"breaker"`
}

// AgentConfig controls the execution controller.
type AgentConfig struct {
	ThreadID      string        `yaml:"thread_id"`
	MaxIterations int           `yaml:"max_iterations"`
	LoopThreshold int           `yaml:"loop_threshold"`
	EngineTimeout time.Duration `yaml:"engine_timeout"`
	SystemPrompt  string        `yaml:"system_prompt"`
}

// Controller returns the controller settings.
func (a AgentConfig) Controller() agent.Config {
	return agent.Config{
		MaxIterations: a.MaxIterations,
		LoopThreshold: a.LoopThreshold,
		EngineTimeout: a.EngineTimeout,
		SystemPrompt:  a.SystemPrompt,
	}
}

// ToolsConfig toggles the local tools.
type ToolsConfig struct {
	Calculator CalculatorConfig `yaml:"calculator"`
}

// CalculatorConfig configures the built-in calculator tool.
type CalculatorConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ConsoleConfig controls the operator console.
type ConsoleConfig struct {
	// Plain disables Markdown rendering of answers.
	Plain bool `yaml:"plain"`
	// Style is a glamour style name ("auto", "dark", "light", "notty").
	Style string `yaml:"style"`
	// Width wraps rendered answers; 0 keeps the renderer default.
	Width int `yaml:"width"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Output is "stderr", "stdout" or a file path.
	Output string `yaml:"output"`
}

// AuditConfig enables the approval audit trail. Both sinks are optional.
type AuditConfig struct {
	JSONLPath  string `yaml:"jsonl_path"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Enabled reports whether any audit sink is configured.
func (a AuditConfig) Enabled() bool {
	return a.JSONLPath != "" || a.SQLitePath != ""
}

// AdminConfig configures the optional admin HTTP server.
type AdminConfig struct {
	// Bind is a host:port; empty disables the server.
	Bind string             `yaml:"bind"`
	Auth gateway.AuthConfig `yaml:"auth"`
}

// Gateway converts the section to the admin server configuration.
func (a AdminConfig) Gateway() gateway.Config {
	return gateway.Config{Bind: a.Bind, Auth: a.Auth}
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "otlp" or "stdout".
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// SecurityConfig holds the remote tool server host policy.
type SecurityConfig struct {
	Hosts security.HostPolicyConfig `yaml:"hosts"`
}
