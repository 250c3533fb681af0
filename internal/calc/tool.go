package calc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flemzord/toolgate/internal/tool"
)

// ToolName is the name the calculator is registered under.
const ToolName = "calculator"

// Tool exposes Calculate as a local tool.
type Tool struct{}

// NewTool returns the calculator tool.
func NewTool() *Tool { return &Tool{} }

func (t *Tool) Name() string { return ToolName }

func (t *Tool) Description() string {
	return "Evaluate a mathematical expression. Supports + - * / // % ** and parentheses, " +
		"plus the functions abs, round, min, max, sum and pow. Example: '(15 - 3) * 2'."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"expression": {"type": "string", "description": "The arithmetic expression to evaluate."}
		},
		"required": ["expression"]
	}`)
}

type calcArgs struct {
	Expression string `json:"expression"`
}

// Execute never returns an error: a bad expression is reported in the
// content so the reasoning engine can correct itself.
func (t *Tool) Execute(_ context.Context, args json.RawMessage) (tool.Output, error) {
	var a calcArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.Output{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	return tool.Output{Content: Calculate(a.Expression)}, nil
}

// Interface guard.
var _ tool.Tool = (*Tool)(nil)
