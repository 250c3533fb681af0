// Package mcp discovers tools on external Model Context Protocol servers
// and adapts them to tool.Tool.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/tool"
)

// ClientName and ClientVersion identify this process during initialize.
const (
	ClientName    = "toolgate"
	ClientVersion = "1.0.0"
)

// mcpClient is the subset of the mcp-go client used by the bridge.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type dialFunc func(ctx context.Context, srv ServerConfig, env []string) (mcpClient, error)

type serverConn struct {
	name   string
	client mcpClient
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	Servers     []ServerConfig
	Credentials *security.CredentialStore
	HostPolicy  *security.HostPolicy
	Logger      *slog.Logger
	Audit       *security.AuditLogger
}

// Bridge connects to the configured tool servers. It implements
// tool.Discoverer; connections stay open for tool calls until Close.
type Bridge struct {
	servers []ServerConfig
	creds   *security.CredentialStore
	hosts   *security.HostPolicy
	logger  *slog.Logger
	audit   *security.AuditLogger
	dial    dialFunc

	mu    sync.Mutex
	conns []serverConn
}

// NewBridge creates a bridge. Nothing is contacted until Discover.
func NewBridge(cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	creds := cfg.Credentials
	if creds == nil {
		creds = security.NewCredentialStore()
	}
	hosts := cfg.HostPolicy
	if hosts == nil {
		hosts = security.NewHostPolicy(security.HostPolicyConfig{})
	}
	return &Bridge{
		servers: cfg.Servers,
		creds:   creds,
		hosts:   hosts,
		logger:  logger.With("component", "mcp"),
		audit:   cfg.Audit,
		dial:    dial,
	}
}

// Discover connects to every server and lists its tools. Servers that fail
// are skipped; the returned error names each of them and wraps
// tool.ErrDiscoveryFailure.
func (b *Bridge) Discover(ctx context.Context) ([]tool.Discovered, error) {
	var (
		found []tool.Discovered
		errs  []error
	)
	for _, srv := range b.servers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("server %s: discovery cancelled: %w", srv.Name, err))
			continue
		}
		tools, err := b.discoverServer(ctx, srv)
		if err != nil {
			b.logger.Warn("tool server discovery failed, skipping", "server", srv.Name, "error", err)
			b.audit.Log(security.AuditEvent{
				Type:     security.EventDiscovery,
				Source:   srv.Name,
				Detail:   err.Error(),
				Metadata: map[string]string{"status": "failed"},
			})
			errs = append(errs, fmt.Errorf("server %s: %w", srv.Name, err))
			continue
		}
		b.audit.Log(security.AuditEvent{
			Type:     security.EventDiscovery,
			Source:   srv.Name,
			Metadata: map[string]string{"status": "ok", "tools": fmt.Sprint(len(tools))},
		})
		found = append(found, tool.Discovered{Source: srv.Name, Tools: tools})
	}
	if len(errs) > 0 {
		return found, fmt.Errorf("%w: %w", tool.ErrDiscoveryFailure, errors.Join(errs...))
	}
	return found, nil
}

func (b *Bridge) discoverServer(ctx context.Context, srv ServerConfig) ([]tool.Tool, error) {
	if err := srv.Validate(); err != nil {
		return nil, err
	}
	if err := b.creds.Require(srv.RequiredCredentials...); err != nil {
		return nil, err
	}
	if srv.Transport == TransportHTTP {
		if err := b.hosts.Check(srv.URL); err != nil {
			return nil, err
		}
	}

	timeout := srv.discoveryTimeout()
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := b.dial(dctx, srv, b.env(srv))
	if err != nil {
		return nil, discoveryError(dctx, ctx, timeout, err)
	}

	result, err := client.ListTools(dctx, mcp.ListToolsRequest{})
	if err != nil {
		if cerr := client.Close(); cerr != nil {
			b.logger.Debug("tool server close error", "server", srv.Name, "error", cerr)
		}
		return nil, discoveryError(dctx, ctx, timeout, fmt.Errorf("list tools: %w", err))
	}

	b.mu.Lock()
	b.conns = append(b.conns, serverConn{name: srv.Name, client: client})
	b.mu.Unlock()

	tools := make([]tool.Tool, 0, len(result.Tools))
	for _, def := range result.Tools {
		tools = append(tools, newRemoteTool(srv.Name, client, def, srv.callTimeout(), b.logger))
		b.logger.Debug("tool discovered", "server", srv.Name, "tool", def.Name)
	}
	b.logger.Info("tool server connected", "server", srv.Name, "transport", srv.Transport, "tools", len(tools))
	return tools, nil
}

// discoveryError names the discovery deadline when it, rather than the
// caller, ended the attempt.
func discoveryError(dctx, parent context.Context, timeout time.Duration, err error) error {
	if errors.Is(dctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("no response within %s: %w", timeout, err)
	}
	return err
}

// env builds the extra environment for a stdio server: configured
// variables first, then the required credentials from the store.
func (b *Bridge) env(srv ServerConfig) []string {
	vars := maps.Clone(srv.Env)
	if vars == nil {
		vars = make(map[string]string)
	}
	for _, name := range srv.RequiredCredentials {
		if v, ok := b.creds.Get(name); ok {
			vars[name] = v
		}
	}
	out := make([]string, 0, len(vars))
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		out = append(out, k+"="+vars[k])
	}
	return out
}

// Servers returns the names of connected servers.
func (b *Bridge) Servers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.conns))
	for i, c := range b.conns {
		names[i] = c.name
	}
	return names
}

// Close shuts down every server connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.client.Close(); err != nil {
			b.logger.Warn("tool server close error", "server", c.name, "error", err)
			errs = append(errs, fmt.Errorf("server %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

func dial(ctx context.Context, srv ServerConfig, env []string) (mcpClient, error) {
	var (
		c      *mcpclient.Client
		handle mcpClient
	)
	switch srv.Transport {
	case TransportStdio, "":
		var cmd *exec.Cmd
		spawn := func(_ context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
			cmd = exec.Command(command, args...)
			cmd.Env = append(os.Environ(), env...)
			return cmd, nil
		}
		var err error
		c, err = mcpclient.NewStdioMCPClientWithOptions(srv.Command, env, srv.Args, transport.WithCommandFunc(spawn))
		if err != nil {
			return nil, fmt.Errorf("start stdio server: %w", err)
		}
		handle = &stdioClient{Client: c, cmd: cmd}
	case TransportHTTP:
		t, err := transport.NewStreamableHTTP(srv.URL, transport.WithHTTPHeaders(srv.Headers))
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c = mcpclient.NewClient(t)
		// The client outlives discovery; only the handshake is bounded.
		if err := c.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		handle = c
	default:
		return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: ClientVersion}
	if _, err := c.Initialize(ctx, req); err != nil {
		if sc, ok := handle.(*stdioClient); ok {
			sc.kill()
		}
		_ = handle.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return handle, nil
}

// stdioExitGrace is how long Close waits for a stdio server to exit after
// its stdin is closed before killing it.
const stdioExitGrace = 2 * time.Second

// stdioClient keeps the server process so a server that ignores the
// closing of its stdin can still be stopped.
type stdioClient struct {
	*mcpclient.Client
	cmd *exec.Cmd
}

func (s *stdioClient) kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

func (s *stdioClient) Close() error {
	timer := time.AfterFunc(stdioExitGrace, s.kill)
	defer timer.Stop()
	return s.Client.Close()
}

var _ tool.Discoverer = (*Bridge)(nil)
