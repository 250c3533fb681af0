package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/toolgate/internal/agent"
	"github.com/flemzord/toolgate/internal/approval"
	"github.com/flemzord/toolgate/internal/calc"
	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/console"
	"github.com/flemzord/toolgate/internal/gateway"
	"github.com/flemzord/toolgate/internal/logging"
	"github.com/flemzord/toolgate/internal/mcp"
	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/session"
	"github.com/flemzord/toolgate/internal/tool"
	"github.com/flemzord/toolgate/internal/tracing"
	auditsqlite "github.com/flemzord/toolgate/modules/audit/sqlite"
	openaicompat "github.com/flemzord/toolgate/modules/provider/openai_compatible"
)

const tracerName = "github.com/flemzord/toolgate/internal/agent"

type closer struct {
	name string
	fn   func(context.Context) error
}

// runtime holds every component of a running session.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	creds    *security.CredentialStore
	redactor *security.Redactor
	audit    *security.AuditLogger
	registry *tool.Registry
	engine   *provider.Breaker
	ctrl     *agent.Controller
	console  *console.Console
	signals  <-chan os.Signal

	// discoveryErr is kept to tell the operator that some servers are
	// missing from the catalogue.
	discoveryErr error

	closers []closer
}

func (r *runtime) onClose(name string, fn func(context.Context) error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// Close releases components in reverse order of creation.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	for _, c := range slices.Backward(r.closers) {
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", c.name, err))
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// loadCredentials reads the engine key and every tool server credential
// from the environment.
func loadCredentials(cfg *config.Config, lookup func(string) (string, bool)) *security.CredentialStore {
	creds := security.NewCredentialStoreWithLookup(lookup)
	names := []string{cfg.Engine.APIKeyEnv}
	for _, srv := range cfg.ToolServers {
		names = append(names, srv.RequiredCredentials...)
	}
	creds.LoadEnv(names...)
	return creds
}

// build wires the session components. On error everything created so far
// is released.
func build(ctx context.Context, cfg *config.Config, params RunParams) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, signals: params.Signals}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	rt.creds = loadCredentials(cfg, params.lookupEnv())
	rt.redactor = security.NewRedactor()
	rt.redactor.SyncCredentials(rt.creds)

	logger, closeLog, err := logging.New(cfg.Logging, rt.redactor)
	if err != nil {
		return nil, err
	}
	rt.onClose("log output", func(context.Context) error { return closeLog() })
	rt.logger = logger

	// The engine credential is checked before anything starts talking to
	// the outside world.
	if params.Engine == nil {
		if err := rt.creds.Require(cfg.Engine.APIKeyEnv); err != nil {
			return nil, err
		}
	}

	if err := rt.buildAudit(ctx); err != nil {
		return nil, err
	}

	tp, shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	rt.onClose("tracer", shutdownTracing)

	if err := rt.buildRegistry(ctx); err != nil {
		return nil, err
	}

	inner := params.Engine
	if inner == nil {
		key, _ := rt.creds.Get(cfg.Engine.APIKeyEnv)
		p, err := openaicompat.New(cfg.Engine.Config, key, logger)
		if err != nil {
			return nil, err
		}
		inner = p
	}
	rt.engine = provider.NewBreaker(inner, cfg.Engine.Breaker, logger)

	store := session.NewStore(logger)
	store.SetAuditLogger(rt.audit)

	rt.console = console.New(params.stdin(), params.stdout(), cfg.Console, logger)
	rt.onClose("console", func(context.Context) error {
		rt.console.Close()
		return nil
	})

	var (
		recorder agent.Recorder
		metrics  *gateway.Metrics
		reg      *prometheus.Registry
	)
	if cfg.Admin.Bind != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if metrics, err = gateway.NewMetrics(reg); err != nil {
			return nil, err
		}
		recorder = metrics
	}

	rt.ctrl = agent.NewController(agent.ControllerConfig{
		Provider: rt.engine,
		Registry: rt.registry,
		Store:    store,
		Reviewer: approval.NewGate(params.stdout(), rt.console, logger),
		Config:   cfg.Agent.Controller(),
		Logger:   logger,
		Audit:    rt.audit,
		Recorder: recorder,
		Tracer:   tp.Tracer(tracerName),
	})

	if cfg.Admin.Bind != "" {
		gw, err := gateway.New(cfg.Admin.Gateway(), gateway.Deps{
			Controller: rt.ctrl,
			ThreadID:   cfg.Agent.ThreadID,
			Catalogue:  rt.registry,
			Circuit:    rt.engine,
			Metrics:    metrics,
			Gatherer:   reg,
			Audit:      rt.audit,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		if err := gw.Start(ctx); err != nil {
			return nil, err
		}
		rt.onClose("admin server", gw.Stop)
	}

	return rt, nil
}

// buildAudit creates the audit logger with the JSONL file and the SQLite
// sink when configured.
func (r *runtime) buildAudit(ctx context.Context) error {
	cfg := r.cfg.Audit
	acfg := security.AuditLoggerConfig{
		Redactor: r.redactor,
		Logger:   r.logger.With("component", "audit"),
	}

	if cfg.JSONLPath != "" {
		f, err := openAppend(cfg.JSONLPath)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		r.onClose("audit log", func(context.Context) error { return f.Close() })
		acfg.Writer = f
	}

	if cfg.SQLitePath != "" {
		sink, err := auditsqlite.Open(ctx, auditsqlite.Config{Path: cfg.SQLitePath})
		if err != nil {
			return err
		}
		r.onClose("audit database", func(context.Context) error { return sink.Close() })
		acfg.Sinks = append(acfg.Sinks, sink)
	}

	r.audit = security.NewAuditLogger(acfg)
	return nil
}

func openAppend(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

// buildRegistry registers the local tools and discovers the configured
// tool servers. A server that fails is left out of the catalogue.
func (r *runtime) buildRegistry(ctx context.Context) error {
	r.registry = tool.NewRegistry(r.logger)
	r.registry.SetAuditLogger(r.audit)

	if r.cfg.Tools.Calculator.Enabled {
		if err := r.registry.Register(tool.SourceLocal, calc.NewTool()); err != nil {
			return err
		}
	}

	if len(r.cfg.ToolServers) == 0 {
		return nil
	}
	bridge := mcp.NewBridge(mcp.BridgeConfig{
		Servers:     r.cfg.ToolServers,
		Credentials: r.creds,
		HostPolicy:  security.NewHostPolicy(r.cfg.Security.Hosts),
		Logger:      r.logger,
		Audit:       r.audit,
	})
	r.onClose("tool servers", func(context.Context) error { return bridge.Close() })

	if err := r.registry.Discover(ctx, bridge); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("tool discovery: %w", ctx.Err())
		}
		r.logger.Warn("some tool servers are unavailable", "error", err)
		r.discoveryErr = err
	}
	return nil
}
