// Package gateway is the optional admin HTTP surface: liveness, a status
// view of the controller, and Prometheus metrics. It never accepts
// approvals; decisions are only taken at the console.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/flemzord/toolgate/internal/agent"
	"github.com/flemzord/toolgate/internal/approval"
	"github.com/flemzord/toolgate/internal/security"
)

// Controller is the view of the execution controller the status endpoint
// reads.
type Controller interface {
	State() agent.State
	Pending(threadID string) approval.Decision
}

// Catalogue reports the size of the tool catalogue.
type Catalogue interface {
	Len() int
}

// CircuitReporter exposes the engine circuit breaker state.
type CircuitReporter interface {
	State() gobreaker.State
}

// Deps are the components the gateway reports on. Every field except
// Controller is optional.
type Deps struct {
	Controller Controller
	ThreadID   string
	Catalogue  Catalogue
	Circuit    CircuitReporter
	Metrics    *Metrics
	Gatherer   prometheus.Gatherer
	Audit      *security.AuditLogger
	Logger     *slog.Logger
}

// Gateway is the admin HTTP server.
type Gateway struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	addr      net.Addr
	startedAt time.Time
	now       func() time.Time
}

// New creates a gateway. It does not listen until Start.
func New(cfg Config, deps Deps) (*Gateway, error) {
	cfg.defaults()
	if deps.Controller == nil {
		return nil, errors.New("gateway: controller is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Bind); err != nil {
		return nil, fmt.Errorf("gateway: invalid bind address %q: %w", cfg.Bind, err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Gateway{
		config:    cfg,
		deps:      deps,
		logger:    logger.With("component", "gateway"),
		now:       time.Now,
		startedAt: time.Now(),
	}, nil
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = g.now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}
	g.addr = ln.Addr()

	go func() {
		g.logger.Info("admin server listening", "addr", g.addr.String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("admin server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started, or nil.
func (g *Gateway) Addr() net.Addr {
	return g.addr
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("admin server shutting down")
	return g.server.Shutdown(shutdownCtx)
}
