package agent

import (
	"time"

	"github.com/flemzord/toolgate/internal/approval"
)

// Recorder receives controller measurements. The admin surface implements
// it with Prometheus collectors.
type Recorder interface {
	EngineCall(d time.Duration, err error)
	Decision(toolName string, v approval.Verdict)
	ToolResult(toolName, provenance string, isError bool, d time.Duration)
	Turn(reason StopReason)
}

type nopRecorder struct{}

func (nopRecorder) EngineCall(time.Duration, error) {}
func (nopRecorder) Decision(string, approval.Verdict) {}
func (nopRecorder) ToolResult(string, string, bool, time.Duration) {}
func (nopRecorder) Turn(StopReason) {}
