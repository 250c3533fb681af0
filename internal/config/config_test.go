package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/toolgate/internal/agent"
	"github.com/flemzord/toolgate/internal/mcp"
	openaicompat "github.com/flemzord/toolgate/modules/provider/openai_compatible"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}
	if cfg.Agent.ThreadID != agent.DefaultThreadID {
		t.Errorf("ThreadID = %q, want %q", cfg.Agent.ThreadID, agent.DefaultThreadID)
	}
	if cfg.Engine.Model != openaicompat.DefaultModel {
		t.Errorf("Model = %q, want %q", cfg.Engine.Model, openaicompat.DefaultModel)
	}
	if len(cfg.ToolServers) != 1 || cfg.ToolServers[0].Name != "firecrawl-mcp" {
		t.Fatalf("ToolServers = %+v, want the firecrawl-mcp server", cfg.ToolServers)
	}
	if got := cfg.ToolServers[0].RequiredCredentials; len(got) != 1 || got[0] != FirecrawlCredential {
		t.Errorf("RequiredCredentials = %v", got)
	}
	if !cfg.Tools.Calculator.Enabled {
		t.Error("calculator should be enabled by default")
	}
	if !strings.Contains(cfg.Agent.SystemPrompt, "firecrawl_search") {
		t.Error("default system prompt should carry the tool usage rules")
	}
}

func TestParse_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
version: "1"
engine:
  model: gemini-2.5-pro
  breaker:
    max_failures: 2
agent:
  max_iterations: 4
  engine_timeout: 45s
tool_servers:
  - name: docs
    transport: http
    url: https://mcp.example.com/mcp
    call_timeout: 10s
tools:
  calculator:
    enabled: false
console:
  plain: true
admin:
  bind: 127.0.0.1:9090
  auth:
    bearer_token: admin-token
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if gw := cfg.Admin.Gateway(); gw.Bind != "127.0.0.1:9090" || gw.Auth.BearerToken != "admin-token" {
		t.Errorf("Admin.Gateway() = %+v", gw)
	}
	if cfg.Engine.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q", cfg.Engine.Model)
	}
	if cfg.Engine.BaseURL != openaicompat.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default kept", cfg.Engine.BaseURL)
	}
	if cfg.Engine.Breaker.MaxFailures != 2 {
		t.Errorf("Breaker.MaxFailures = %d, want 2", cfg.Engine.Breaker.MaxFailures)
	}
	if cfg.Agent.MaxIterations != 4 {
		t.Errorf("MaxIterations = %d, want 4", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.EngineTimeout != 45*time.Second {
		t.Errorf("EngineTimeout = %v, want 45s", cfg.Agent.EngineTimeout)
	}
	if cfg.Agent.ThreadID != agent.DefaultThreadID {
		t.Errorf("ThreadID = %q, want default kept", cfg.Agent.ThreadID)
	}
	if len(cfg.ToolServers) != 1 || cfg.ToolServers[0].Name != "docs" {
		t.Fatalf("ToolServers = %+v, want the configured list to replace the default", cfg.ToolServers)
	}
	if cfg.ToolServers[0].Transport != mcp.TransportHTTP || cfg.ToolServers[0].CallTimeout != 10*time.Second {
		t.Errorf("server = %+v", cfg.ToolServers[0])
	}
	if cfg.Tools.Calculator.Enabled {
		t.Error("calculator should be disabled")
	}
	if !cfg.Console.Plain {
		t.Error("console.plain should be true")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Version != "1" || cfg.Engine.APIKeyEnv != openaicompat.DefaultAPIKeyEnv {
		t.Errorf("empty document should yield defaults, got %+v", cfg)
	}
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("engine:\n  modle: typo\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("TOOLGATE_TEST_MODEL", "from-env")

	cfg, err := Parse([]byte(`
engine:
  model: ${TOOLGATE_TEST_MODEL}
  base_url: ${TOOLGATE_TEST_UNSET_URL:-http://localhost:8080/v1}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Engine.Model != "from-env" {
		t.Errorf("Model = %q, want from-env", cfg.Engine.Model)
	}
	if cfg.Engine.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("BaseURL = %q, want default from expression", cfg.Engine.BaseURL)
	}
}

func TestParse_UnresolvedVariable(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("engine:\n  model: ${TOOLGATE_TEST_SURELY_UNSET}\n"))
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "TOOLGATE_TEST_SURELY_UNSET") {
		t.Errorf("error %q should name the variable", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("agent:\n  thread_id: ops\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.ThreadID != "ops" {
		t.Errorf("ThreadID = %q, want ops", cfg.Agent.ThreadID)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want ErrNotExist", err)
	}
}

func TestResolvePath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())

	path, err := ResolvePath("")
	if err != nil || path != "" {
		t.Fatalf("ResolvePath() = %q, %v; want nothing found", path, err)
	}

	if err := os.WriteFile(FileName, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if path, _ = ResolvePath(""); path != FileName {
		t.Errorf("ResolvePath() = %q, want working directory file", path)
	}

	xdgFile := filepath.Join(xdg, "toolgate", FileName)
	if err := os.MkdirAll(filepath.Dir(xdgFile), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(xdgFile, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if path, _ = ResolvePath(""); path != xdgFile {
		t.Errorf("ResolvePath() = %q, want %q", path, xdgFile)
	}

	if path, _ = ResolvePath(FileName); path != FileName {
		t.Errorf("explicit path = %q, want %q", path, FileName)
	}
	if _, err := ResolvePath("nope.yaml"); err == nil {
		t.Error("missing explicit path should fail")
	}
}

func TestLoadOrDefault_NoFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, path, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if cfg.Version != "1" {
		t.Errorf("Version = %q, want defaults", cfg.Version)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "missing version", mutate: func(c *Config) { c.Version = "" }, wantErr: []string{"version field is required"}},
		{name: "unsupported version", mutate: func(c *Config) { c.Version = "2" }, wantErr: []string{"unsupported version"}},
		{name: "engine model", mutate: func(c *Config) { c.Engine.Model = "" }, wantErr: []string{"model is required"}},
		{name: "thread id", mutate: func(c *Config) { c.Agent.ThreadID = " " }, wantErr: []string{"thread_id"}},
		{name: "negative iterations", mutate: func(c *Config) { c.Agent.MaxIterations = -1 }, wantErr: []string{"max_iterations"}},
		{
			name: "duplicate server",
			mutate: func(c *Config) {
				c.ToolServers = append(c.ToolServers, c.ToolServers[0])
			},
			wantErr: []string{"already used"},
		},
		{
			name: "bad server",
			mutate: func(c *Config) {
				c.ToolServers = []mcp.ServerConfig{{Name: "x", Transport: mcp.TransportHTTP}}
			},
			wantErr: []string{"tool_servers[0]"},
		},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: []string{"logging.level"}},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: []string{"logging.format"}},
		{name: "admin bind", mutate: func(c *Config) { c.Admin.Bind = "9090" }, wantErr: []string{"admin.bind"}},
		{
			name: "same audit paths",
			mutate: func(c *Config) {
				c.Audit.JSONLPath = "audit.db"
				c.Audit.SQLitePath = "audit.db"
			},
			wantErr: []string{"must differ"},
		},
		{
			name: "sample ratio",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRatio = 2
			},
			wantErr: []string{"sample_ratio"},
		},
		{
			name: "errors are aggregated",
			mutate: func(c *Config) {
				c.Version = ""
				c.Logging.Format = "xml"
			},
			wantErr: []string{"version", "logging.format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not contain %q", err.Error(), want)
				}
			}
		})
	}
}

func TestAgentConfig_Controller(t *testing.T) {
	t.Parallel()

	a := AgentConfig{MaxIterations: 3, LoopThreshold: 2, EngineTimeout: time.Second, SystemPrompt: "p"}
	got := a.Controller()
	want := agent.Config{MaxIterations: 3, LoopThreshold: 2, EngineTimeout: time.Second, SystemPrompt: "p"}
	if got != want {
		t.Errorf("Controller() = %+v, want %+v", got, want)
	}
}
