package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/toolgate/internal/tool"
)

// remoteTool exposes one server-side tool as a tool.Tool. The tool keeps
// the name the server advertised; the server name is its catalogue source.
type remoteTool struct {
	server  string
	client  mcpClient
	def     mcp.Tool
	timeout time.Duration
	logger  *slog.Logger
}

func newRemoteTool(server string, client mcpClient, def mcp.Tool, timeout time.Duration, logger *slog.Logger) *remoteTool {
	return &remoteTool{
		server:  server,
		client:  client,
		def:     def,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *remoteTool) Name() string { return r.def.Name }

func (r *remoteTool) Description() string {
	if r.def.Description != "" {
		return r.def.Description
	}
	return fmt.Sprintf("Tool %q from server %q", r.def.Name, r.server)
}

func (r *remoteTool) Schema() json.RawMessage {
	if len(r.def.RawInputSchema) > 0 {
		return r.def.RawInputSchema
	}
	schema := json.RawMessage(`{"type":"object"}`)
	if r.def.InputSchema.Properties != nil || r.def.InputSchema.Required != nil {
		if data, err := json.Marshal(r.def.InputSchema); err == nil {
			schema = data
		}
	}
	return schema
}

func (r *remoteTool) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	var params map[string]any
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &params); err != nil {
			return tool.Output{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = r.def.Name
	req.Params.Arguments = params

	r.logger.Debug("tool server call", "server", r.server, "tool", r.def.Name)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.client.CallTool(callCtx, req)
	if err != nil {
		return tool.Output{}, fmt.Errorf("%s/%s: %w", r.server, r.def.Name, err)
	}
	return tool.Output{Content: textContent(result), IsError: result.IsError}, nil
}

// textContent flattens a call result. Text parts are joined by newlines;
// other parts are rendered as JSON.
func textContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

var _ tool.Tool = (*remoteTool)(nil)
