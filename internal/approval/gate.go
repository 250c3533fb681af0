package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/flemzord/toolgate/internal/provider"
)

// Title heads every approval box.
const Title = "SECURITY INTERRUPT: TOOL APPROVAL REQUIRED"

// DecisionPrompt is shown when waiting for the operator's verdict.
const DecisionPrompt = "Approve this action? (y/n/q): "

// Prompter reads one line of operator input after showing prompt. It must
// return ctx.Err() promptly once ctx is cancelled and io.EOF when input is
// exhausted.
type Prompter interface {
	Prompt(ctx context.Context, prompt string) (string, error)
}

// Request describes the call under review.
type Request struct {
	Call        provider.ToolCall
	Source      string
	Description string
	Position    int
	Total       int
}

// Gate shows pending calls to the operator and waits for a verdict.
type Gate struct {
	out      io.Writer
	prompter Prompter
	logger   *slog.Logger
}

// NewGate creates a gate that renders to out and reads from prompter.
func NewGate(out io.Writer, prompter Prompter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{out: out, prompter: prompter, logger: logger}
}

// Review renders req and blocks until the operator answers. There is no
// timeout. A cancelled context yields its error instead of a verdict, and
// exhausted input aborts.
func (g *Gate) Review(ctx context.Context, req Request) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Reject, err
	}
	if _, err := fmt.Fprintln(g.out, Render(req)); err != nil {
		return Reject, fmt.Errorf("rendering approval request: %w", err)
	}

	answer, err := g.prompter.Prompt(ctx, DecisionPrompt)
	switch {
	case ctx.Err() != nil:
		return Reject, ctx.Err()
	case errors.Is(err, io.EOF):
		g.logger.Warn("operator input closed during approval, aborting", "tool", req.Call.Name, "call_id", req.Call.ID)
		return Abort, nil
	case err != nil:
		return Reject, fmt.Errorf("reading approval verdict: %w", err)
	}

	v := ParseVerdict(answer)
	g.logger.Debug("approval verdict", "tool", req.Call.Name, "call_id", req.Call.ID, "verdict", v.String())
	return v, nil
}

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	labelStyle = lipgloss.NewStyle().Bold(true)
)

// Render formats req as a bordered box.
func Render(req Request) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(Title))
	b.WriteString("\n\n")

	tool := req.Call.Name
	if req.Source != "" {
		tool += " (" + req.Source + ")"
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Tool:"), tool)
	if req.Description != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Description:"), firstLine(req.Description))
	}
	if req.Total > 1 {
		fmt.Fprintf(&b, "%s %d of %d\n", labelStyle.Render("Call:"), req.Position, req.Total)
	}
	fmt.Fprintf(&b, "%s\n%s", labelStyle.Render("Arguments:"), prettyArgs(req.Call.Arguments))

	return boxStyle.Render(b.String())
}

func prettyArgs(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
