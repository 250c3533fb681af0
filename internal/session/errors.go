package session

import "errors"

var (
	// ErrNoPendingSuspension is returned by Resume when the session is not
	// waiting on any tool call.
	ErrNoPendingSuspension = errors.New("session: no pending suspension")

	// ErrSuspended is returned when a non-tool message is appended while a
	// tool call is still unresolved.
	ErrSuspended = errors.New("session: suspended awaiting tool call resolution")

	// ErrCallMismatch is returned when a resolution does not answer the
	// next pending call.
	ErrCallMismatch = errors.New("session: resolution does not match pending call")

	// ErrUnknownThread is returned by Checkpoint for a thread never seen.
	ErrUnknownThread = errors.New("session: unknown thread")

	// ErrSessionBusy is returned by Acquire when another turn holds the thread.
	ErrSessionBusy = errors.New("session: thread is busy")

	// ErrInvalidMessage is returned for messages that would break history
	// well-formedness (tool results outside Resume, calls without ids).
	ErrInvalidMessage = errors.New("session: invalid message")
)
