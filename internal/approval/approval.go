// Package approval decides whether a session needs an operator decision and
// collects that decision. Any answer that is not an explicit approval or
// abort counts as a rejection.
package approval

import (
	"strings"

	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/session"
)

// Verdict is the operator's answer for a single tool call.
type Verdict int

// Verdict values. The zero value is Reject so an unset verdict fails closed.
const (
	Reject Verdict = iota
	Approve
	Abort
)

func (v Verdict) String() string {
	switch v {
	case Approve:
		return "approve"
	case Abort:
		return "abort"
	default:
		return "reject"
	}
}

var (
	approveTokens = []string{"y", "yes", "approve"}
	abortTokens   = []string{"q", "quit", "exit", "abort"}
)

// ParseVerdict maps raw operator input to a verdict. Matching ignores case
// and surrounding whitespace; unrecognised or empty input rejects.
func ParseVerdict(raw string) Verdict {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, tok := range approveTokens {
		if s == tok {
			return Approve
		}
	}
	for _, tok := range abortTokens {
		if s == tok {
			return Abort
		}
	}
	return Reject
}

// DecisionKind tells whether an operator decision is required.
type DecisionKind int

// DecisionKind values.
const (
	NoActionNeeded DecisionKind = iota
	PendingApproval
)

// Decision is the result of Inspect. For PendingApproval, Call is the next
// unresolved call and Position is its 1-based index among Total calls of
// the suspended assistant message.
type Decision struct {
	Kind     DecisionKind
	Call     provider.ToolCall
	Position int
	Total    int
}

// Pending reports whether the decision requires operator input.
func (d Decision) Pending() bool { return d.Kind == PendingApproval }

// Inspect reports whether snap is waiting on an operator decision.
func Inspect(snap session.Snapshot) Decision {
	sus := snap.Suspension
	if sus == nil || sus.Remaining() <= 0 {
		return Decision{Kind: NoActionNeeded}
	}
	return Decision{
		Kind:     PendingApproval,
		Call:     sus.Pending(),
		Position: sus.Next + 1,
		Total:    len(sus.Calls),
	}
}
