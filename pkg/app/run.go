// Package app wires configuration, the engine client, tool discovery and
// the operator console into an interactive session.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/toolgate/internal/agent"
	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/console"
	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/session"
	"github.com/flemzord/toolgate/internal/tool"
)

// shutdownTimeout bounds the release of components when the session ends.
const shutdownTimeout = 10 * time.Second

// ErrStartupInterrupted is returned when the operator interrupts the
// session before it is ready, typically during tool discovery.
var ErrStartupInterrupted = errors.New("app: startup interrupted")

// RunParams configures an interactive session.
type RunParams struct {
	// ConfigPath is an explicit configuration file. When empty the
	// standard locations are searched and built-in defaults are used if
	// none exists.
	ConfigPath string

	// Plain disables Markdown rendering regardless of the configuration.
	Plain bool

	Stdin  io.Reader
	Stdout io.Writer

	// LookupEnv reads credentials. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Engine replaces the configured engine client. No engine credential
	// is required when set.
	Engine provider.Provider

	// Signals delivers operator interrupts. When nil, SIGINT and SIGTERM
	// are subscribed.
	Signals <-chan os.Signal
}

func (p RunParams) stdin() io.Reader {
	if p.Stdin == nil {
		return os.Stdin
	}
	return p.Stdin
}

func (p RunParams) stdout() io.Writer {
	if p.Stdout == nil {
		return os.Stdout
	}
	return p.Stdout
}

func (p RunParams) lookupEnv() func(string) (string, bool) {
	if p.LookupEnv == nil {
		return os.LookupEnv
	}
	return p.LookupEnv
}

// LoadConfig resolves, loads and validates the configuration. The returned
// path is empty when built-in defaults are in use.
func LoadConfig(explicit string) (*config.Config, string, error) {
	cfg, path, err := config.LoadOrDefault(explicit)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Run starts an interactive session and blocks until the operator exits,
// aborts a call, or input ends. A missing engine credential or a corrupted
// session is returned as an error.
func Run(ctx context.Context, params RunParams) error {
	cfg, path, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}
	if params.Plain {
		cfg.Console.Plain = true
	}

	if params.Signals == nil {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		params.Signals = sigCh
	}

	buildCtx, stopBuild := interruptible(ctx, params.Signals)
	rt, err := build(buildCtx, cfg, params)
	interrupted := buildCtx.Err() != nil && ctx.Err() == nil
	stopBuild()
	if interrupted {
		if err == nil {
			closeRuntime(rt)
		}
		return ErrStartupInterrupted
	}
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	if path == "" {
		rt.logger.Info("no configuration file found, using built-in defaults")
	} else {
		rt.logger.Info("configuration loaded", "path", path)
	}
	return rt.loop(ctx)
}

func closeRuntime(rt *runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.Close(ctx); err != nil {
		rt.logger.Warn("shutdown incomplete", "error", err)
	}
}

// interruptible derives a context cancelled by the next signal on
// signals. stop must be called once the guarded phase is over.
func interruptible(parent context.Context, signals <-chan os.Signal) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		select {
		case <-signals:
			cancel()
		case <-done:
		}
	}()
	return ctx, func() {
		close(done)
		cancel()
	}
}

func (r *runtime) interruptible(parent context.Context) (context.Context, func()) {
	return interruptible(parent, r.signals)
}

// loop reads queries until the session ends. An interrupt during a turn
// cancels only that turn; at the query prompt it ends the session.
func (r *runtime) loop(ctx context.Context) error {
	threadID := r.cfg.Agent.ThreadID

	r.console.Summary(r.registry.Catalogue())
	if r.discoveryErr != nil {
		r.console.Notice("Some tool servers are unavailable and their tools were not loaded. See the log for details.")
	}

	for {
		promptCtx, stopPrompt := r.interruptible(ctx)
		in, err := r.console.ReadQuery(promptCtx)
		stopPrompt()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				r.console.Notice("Session ended.")
				return nil
			}
			return fmt.Errorf("reading query: %w", err)
		}

		var turn func(context.Context) (agent.Outcome, error)
		switch in.Kind {
		case console.InputExit:
			r.console.Notice("Goodbye.")
			return nil
		case console.InputTools:
			r.console.Tools(r.registry.Catalogue())
			continue
		case console.InputResume:
			turn = func(ctx context.Context) (agent.Outcome, error) {
				return r.ctrl.Resume(ctx, threadID)
			}
		default:
			text := in.Text
			turn = func(ctx context.Context) (agent.Outcome, error) {
				return r.ctrl.Submit(ctx, threadID, text)
			}
		}

		turnCtx, stopTurn := r.interruptible(ctx)
		out, err := turn(turnCtx)
		interrupted := turnCtx.Err() != nil && ctx.Err() == nil
		stopTurn()

		done, err := r.report(out, err, interrupted)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// report shows the outcome of a turn. It returns done once the session
// must end, and an error only for failures the session cannot survive.
func (r *runtime) report(out agent.Outcome, err error, interrupted bool) (done bool, fatal error) {
	switch {
	case out.Terminated, errors.Is(err, agent.ErrTerminated):
		r.console.Notice("Session terminated by operator. No further tool calls will run.")
		return true, nil
	case err == nil:
		r.console.Answer(out.Answer)
		return false, nil
	case errors.Is(err, session.ErrNoPendingSuspension),
		errors.Is(err, session.ErrCallMismatch),
		errors.Is(err, session.ErrSuspended):
		r.logger.Error("session state is inconsistent", "error", err)
		return true, fmt.Errorf("session state is inconsistent, ending session: %w", err)
	case interrupted:
		r.console.Notice(interruptedMessage)
		return false, nil
	case errors.Is(err, tool.ErrSchemaValidation):
		r.console.SchemaError(r.redactor.Redact(err.Error()) + ". Try rephrasing the query.")
		return false, nil
	}
	r.console.Error(r.operatorMessage(err))
	return false, nil
}
