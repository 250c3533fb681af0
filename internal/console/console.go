// Package console is the operator's terminal: it reads queries, renders
// answers and reports, and serves as the line source for the approval gate.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/tool"
)

// QueryPrompt is shown when waiting for the operator's next query.
const QueryPrompt = "You: "

// emptyQueryNotice is printed when the operator submits a blank line.
const emptyQueryNotice = "Please enter a valid query."

// InputKind classifies a line read at the query prompt.
type InputKind int

// Input kinds.
const (
	InputQuery InputKind = iota
	InputExit
	InputTools
	InputResume
)

// Input is one accepted line from the query prompt.
type Input struct {
	Kind InputKind
	Text string
}

var exitKeywords = map[string]bool{"q": true, "quit": true, "exit": true}

var (
	answerLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	schemaLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	noticeStyle = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// Console reads operator input and writes everything the operator sees.
type Console struct {
	out      io.Writer
	reader   *LineReader
	renderer *glamour.TermRenderer
	logger   *slog.Logger
}

// New creates a console over in and out. Answers are rendered as Markdown
// unless cfg.Plain is set or the renderer cannot be built.
func New(in io.Reader, out io.Writer, cfg config.ConsoleConfig, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Console{
		out:    out,
		reader: NewLineReader(in, out),
		logger: logger.With("component", "console"),
	}
	if !cfg.Plain {
		r, err := newRenderer(cfg)
		if err != nil {
			c.logger.Warn("markdown rendering disabled", "error", err)
		} else {
			c.renderer = r
		}
	}
	return c
}

func newRenderer(cfg config.ConsoleConfig) (*glamour.TermRenderer, error) {
	opts := []glamour.TermRendererOption{}
	switch cfg.Style {
	case "", "auto":
		opts = append(opts, glamour.WithAutoStyle())
	default:
		opts = append(opts, glamour.WithStandardStyle(cfg.Style))
	}
	if cfg.Width > 0 {
		opts = append(opts, glamour.WithWordWrap(cfg.Width))
	}
	return glamour.NewTermRenderer(opts...)
}

// Prompt implements approval.Prompter.
func (c *Console) Prompt(ctx context.Context, prompt string) (string, error) {
	return c.reader.Prompt(ctx, prompt)
}

// ReadQuery prompts until the operator enters something usable. Blank
// lines re-prompt, exit keywords and end of input yield InputExit.
func (c *Console) ReadQuery(ctx context.Context) (Input, error) {
	for {
		raw, err := c.reader.Prompt(ctx, QueryPrompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			return Input{Kind: InputExit}, nil
		}
		if err != nil {
			return Input{}, err
		}

		text := strings.TrimSpace(raw)
		switch {
		case text == "":
			fmt.Fprintln(c.out, emptyQueryNotice)
			continue
		case exitKeywords[strings.ToLower(text)]:
			return Input{Kind: InputExit}, nil
		case text == "/tools":
			return Input{Kind: InputTools}, nil
		case text == "/resume":
			return Input{Kind: InputResume}, nil
		}
		return Input{Kind: InputQuery, Text: text}, nil
	}
}

// Answer prints the engine's final answer.
func (c *Console) Answer(text string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, answerLabel.Render("Agent:"))
	if c.renderer != nil {
		rendered, err := c.renderer.Render(text)
		if err == nil {
			fmt.Fprint(c.out, rendered)
			return
		}
		c.logger.Debug("markdown render failed, printing raw", "error", err)
	}
	fmt.Fprintln(c.out, text)
	fmt.Fprintln(c.out)
}

// Error prints an operator-facing failure.
func (c *Console) Error(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", errorLabel.Render("ERROR:"), msg)
}

// SchemaError prints a schema validation failure under its own label.
func (c *Console) SchemaError(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", schemaLabel.Render("SCHEMA ERROR:"), msg)
}

// Notice prints an informational line.
func (c *Console) Notice(msg string) {
	fmt.Fprintln(c.out, noticeStyle.Render(msg))
}

// Summary prints the startup catalogue overview.
func (c *Console) Summary(cat []tool.Descriptor) {
	var local, discovered []string
	for _, d := range cat {
		if d.Source == tool.SourceLocal {
			local = append(local, d.Name)
		} else {
			discovered = append(discovered, d.Name)
		}
	}

	fmt.Fprintln(c.out, headerStyle.Render(fmt.Sprintf("Loaded %d tools", len(cat))))
	fmt.Fprintf(c.out, "  discovered: %s\n", joinOrNone(discovered))
	fmt.Fprintf(c.out, "  local:      %s\n", joinOrNone(local))
	fmt.Fprintln(c.out, noticeStyle.Render("Type a query, /tools to list tools, or quit to exit."))
}

// Tools prints the catalogue, one tool per line.
func (c *Console) Tools(cat []tool.Descriptor) {
	if len(cat) == 0 {
		fmt.Fprintln(c.out, "No tools available.")
		return
	}
	for _, d := range cat {
		desc, _, _ := strings.Cut(strings.TrimSpace(d.Description), "\n")
		fmt.Fprintf(c.out, "  %s [%s] %s\n", headerStyle.Render(d.Name), d.Source, desc)
	}
}

// Close releases the input goroutine.
func (c *Console) Close() {
	c.reader.Close()
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
