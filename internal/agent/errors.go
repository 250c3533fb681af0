package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the controller.
var (
	ErrTerminated           = errors.New("agent: session terminated")
	ErrEmptyInput           = errors.New("agent: empty input")
	ErrEngine               = errors.New("agent: reasoning engine failed")
	ErrMaxIterationsReached = errors.New("agent: max iterations reached")
	ErrLoopDetected         = errors.New("agent: loop detected")
)

// RejectionNotice is the content of the synthetic result recorded when the
// operator rejects a call.
func RejectionNotice(toolName string) string {
	return fmt.Sprintf("User rejected the call to %s. Please try a different approach or ask the user for clarification.", toolName)
}

// InterruptedNotice is the content of the synthetic result recorded for a
// call that was still pending when the operator started a new turn.
func InterruptedNotice(toolName string) string {
	return fmt.Sprintf("The call to %s was interrupted before a decision and was not executed.", toolName)
}
