// Package agent implements the execution controller: a state machine that
// drives the reasoning engine and halts at every tool call until the
// operator has decided on it.
package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flemzord/toolgate/internal/approval"
	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/tool"
)

// State is the controller's position in its state machine.
type State int32

// Controller states. Idle is the initial state and Terminated is final.
const (
	StateIdle State = iota
	StateRunning
	StateSuspendedForApproval
	StateResolving
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuspendedForApproval:
		return "suspended_for_approval"
	case StateResolving:
		return "resolving"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StopReason describes why a turn ended.
type StopReason string

// StopReason constants for turn termination.
const (
	StopReasonComplete      StopReason = "complete"
	StopReasonTerminated    StopReason = "terminated"
	StopReasonMaxIterations StopReason = "max_iterations"
	StopReasonLoopDetected  StopReason = "loop_detected"
	StopReasonSchema        StopReason = "schema_validation"
	StopReasonInterrupted   StopReason = "interrupted"
	StopReasonError         StopReason = "error"
)

// Provenance of a tool result, recorded in the audit trail only.
const (
	ProvenanceReal      = "real"
	ProvenanceSynthetic = "synthetic"
)

// ToolCallRecord tracks one resolved tool call during a turn.
type ToolCallRecord struct {
	ID         string
	Name       string
	Arguments  json.RawMessage
	Verdict    approval.Verdict
	Provenance string
	Output     tool.Output
	Duration   time.Duration
}

// Outcome is the result of a turn.
type Outcome struct {
	// Answer is the engine's final text. Empty when the turn did not
	// complete.
	Answer     string
	Terminated bool
	ToolCalls  []ToolCallRecord
	Usage      provider.TokenUsage
	Iterations int
	StopReason StopReason
}
