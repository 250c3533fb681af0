package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// Validate checks the structural validity of a Config and reports every
// problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if err := cfg.Engine.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	errs = append(errs, validateAgent(cfg.Agent)...)
	errs = append(errs, validateServers(cfg)...)
	errs = append(errs, validateLogging(cfg.Logging)...)

	if cfg.Console.Width < 0 {
		errs = append(errs, errors.New("config: console.width must not be negative"))
	}
	if cfg.Admin.Bind != "" {
		if _, _, err := net.SplitHostPort(cfg.Admin.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: admin.bind: %w", err))
		}
	}
	if cfg.Audit.JSONLPath != "" && cfg.Audit.JSONLPath == cfg.Audit.SQLitePath {
		errs = append(errs, errors.New("config: audit.jsonl_path and audit.sqlite_path must differ"))
	}
	if cfg.Tracing.Enabled {
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, errors.New("config: tracing.sample_ratio must be between 0 and 1"))
		}
		switch cfg.Tracing.Exporter {
		case "otlp", "stdout":
		default:
			errs = append(errs, fmt.Errorf("config: tracing.exporter %q must be otlp or stdout", cfg.Tracing.Exporter))
		}
	}

	return errors.Join(errs...)
}

func validateAgent(a AgentConfig) []error {
	var errs []error
	if strings.TrimSpace(a.ThreadID) == "" {
		errs = append(errs, errors.New("config: agent.thread_id is required"))
	}
	if a.MaxIterations < 0 {
		errs = append(errs, errors.New("config: agent.max_iterations must not be negative"))
	}
	if a.LoopThreshold < 0 {
		errs = append(errs, errors.New("config: agent.loop_threshold must not be negative"))
	}
	if a.EngineTimeout < 0 {
		errs = append(errs, errors.New("config: agent.engine_timeout must not be negative"))
	}
	return errs
}

func validateServers(cfg *Config) []error {
	var errs []error
	seen := make(map[string]int, len(cfg.ToolServers))
	for i, s := range cfg.ToolServers {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: tool_servers[%d]: %w", i, err))
		}
		if s.Name == "" {
			continue
		}
		if prev, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("config: tool_servers[%d]: name %q already used by tool_servers[%d]", i, s.Name, prev))
			continue
		}
		seen[s.Name] = i
	}
	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	if l.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
			errs = append(errs, fmt.Errorf("config: logging.level %q is not a valid level", l.Level))
		}
	}
	switch l.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format %q must be text or json", l.Format))
	}
	return errs
}
