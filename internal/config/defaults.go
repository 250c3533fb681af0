package config

import (
	"github.com/flemzord/toolgate/internal/agent"
	"github.com/flemzord/toolgate/internal/mcp"
	openaicompat "github.com/flemzord/toolgate/modules/provider/openai_compatible"
)

// FirecrawlCredential is the environment variable the default web tool
// server needs.
const FirecrawlCredential = "FIRECRAWL_API_KEY"

// DefaultSystemPrompt is sent ahead of every engine call unless the
// configuration overrides it.
const DefaultSystemPrompt = `You are a helpful AI assistant with access to multiple tools.

IMPORTANT TOOL USAGE RULES:
1. When using 'firecrawl_search':
   - The 'sources' argument must be a LIST OF OBJECTS, not strings.
   - CORRECT: sources=[{"type": "web"}]
   - WRONG: sources=["web"]
   - Always set 'limit' to 1 or 2 to prevent timeouts.

2. When using 'firecrawl_scrape':
   - Ensure you provide a valid URL.

3. When using 'calculator':
   - Provide a valid mathematical expression as a string.
   - You can use operators: +, -, *, /, //, %, **, ()
   - You can use functions: abs, round, min, max, sum, pow
   - Example: "2 + 2", "(10 * 5) / 2", "pow(2, 3)"

Always choose the most appropriate tool for the user's query.
`

// Default returns the configuration used when no file is found. Loaded
// files are decoded on top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Version: "1",
		Engine: EngineConfig{
			Config: openaicompat.Config{}.WithDefaults(),
		},
		Agent: AgentConfig{
			ThreadID:      agent.DefaultThreadID,
			MaxIterations: agent.DefaultMaxIterations,
			LoopThreshold: agent.DefaultLoopThreshold,
			EngineTimeout: agent.DefaultEngineTimeout,
			SystemPrompt:  DefaultSystemPrompt,
		},
		ToolServers: []mcp.ServerConfig{{
			Name:                "firecrawl-mcp",
			Transport:           mcp.TransportStdio,
			Command:             "npx",
			Args:                []string{"-y", "firecrawl-mcp"},
			RequiredCredentials: []string{FirecrawlCredential},
		}},
		Tools: ToolsConfig{
			Calculator: CalculatorConfig{Enabled: true},
		},
		Console: ConsoleConfig{Style: "auto"},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:    "otlp",
			ServiceName: "toolgate",
			SampleRatio: 1,
		},
	}
}
