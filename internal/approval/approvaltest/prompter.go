// Package approvaltest provides test doubles for the approval package.
package approvaltest

import (
	"context"
	"io"
	"sync"

	"github.com/flemzord/toolgate/internal/approval"
)

// ScriptedPrompter answers prompts from a fixed list, then returns io.EOF.
type ScriptedPrompter struct {
	mu      sync.Mutex
	answers []string
	prompts []string

	// Block, when true, makes Prompt wait for ctx cancellation instead of
	// answering.
	Block bool
}

// NewScriptedPrompter returns a prompter that replays answers in order.
func NewScriptedPrompter(answers ...string) *ScriptedPrompter {
	return &ScriptedPrompter{answers: answers}
}

// Prompt implements approval.Prompter.
func (p *ScriptedPrompter) Prompt(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	block := p.Block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.answers) == 0 {
		return "", io.EOF
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

// Prompts returns every prompt shown so far.
func (p *ScriptedPrompter) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

var _ approval.Prompter = (*ScriptedPrompter)(nil)
