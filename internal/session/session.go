// Package session keeps conversation history per thread together with the
// suspension marker that records which tool calls still await a decision.
package session

import (
	"time"

	"github.com/flemzord/toolgate/internal/provider"
)

// ToolResult answers one tool call. The same shape is used whether the
// tool really ran or the call was rejected.
type ToolResult struct {
	CallID  string
	Content string
}

// Suspension marks the assistant message at Index whose calls Calls[Next:]
// have not been resolved yet.
type Suspension struct {
	Index int
	Calls []provider.ToolCall
	Next  int
}

// Pending returns the next unresolved call.
func (s Suspension) Pending() provider.ToolCall { return s.Calls[s.Next] }

// Remaining returns how many calls are still unresolved.
func (s Suspension) Remaining() int { return len(s.Calls) - s.Next }

// Snapshot is a read-only deep copy of a session.
type Snapshot struct {
	ID         string
	ThreadID   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Messages   []provider.LLMMessage
	Suspension *Suspension
}

// Suspended reports whether the session is waiting on a decision.
func (s Snapshot) Suspended() bool { return s.Suspension != nil }

type session struct {
	id         string
	threadID   string
	createdAt  time.Time
	updatedAt  time.Time
	messages   []provider.LLMMessage
	suspension *Suspension
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		ThreadID:  s.threadID,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
		Messages:  make([]provider.LLMMessage, len(s.messages)),
	}
	for i, m := range s.messages {
		snap.Messages[i] = copyMessage(m)
	}
	if s.suspension != nil {
		sus := *s.suspension
		sus.Calls = copyCalls(s.suspension.Calls)
		snap.Suspension = &sus
	}
	return snap
}

func copyMessage(m provider.LLMMessage) provider.LLMMessage {
	m.ToolCalls = copyCalls(m.ToolCalls)
	return m
}

func copyCalls(calls []provider.ToolCall) []provider.ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]provider.ToolCall, len(calls))
	for i, c := range calls {
		c.Arguments = append([]byte(nil), c.Arguments...)
		out[i] = c
	}
	return out
}
