package app

import (
	"errors"
	"fmt"

	"github.com/flemzord/toolgate/internal/agent"
	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/session"
	"github.com/flemzord/toolgate/internal/tool"
)

const interruptedMessage = "Interrupted. A pending tool call stays pending: type /resume to review it, or enter a new query to discard it."

// operatorMessage says what failed and what to try next.
func (r *runtime) operatorMessage(err error) string {
	switch {
	case errors.Is(err, provider.ErrAuthentication):
		return fmt.Sprintf("The reasoning engine rejected the credential. Check %s.", r.cfg.Engine.APIKeyEnv)
	case errors.Is(err, provider.ErrRateLimit):
		return "The reasoning engine is rate limiting requests. Wait a moment and try again."
	case errors.Is(err, provider.ErrContextLength):
		return "The conversation no longer fits the model's context. Restart the session to begin a new one."
	case errors.Is(err, provider.ErrProviderDown):
		return "The reasoning engine is unavailable. Try again later."
	case errors.Is(err, provider.ErrInvalidResponse):
		return "The reasoning engine sent a response that could not be read. Try again."
	case errors.Is(err, agent.ErrMaxIterationsReached):
		return "The agent reached its step limit without a final answer. Try a narrower query."
	case errors.Is(err, agent.ErrLoopDetected):
		return "The agent kept repeating the same tool call. Rephrase the query."
	case errors.Is(err, agent.ErrNothingPending):
		return "No tool call is awaiting approval."
	case errors.Is(err, agent.ErrEmptyInput):
		return "Please enter a valid query."
	case errors.Is(err, session.ErrSessionBusy):
		return "Another turn is still running on this session."
	case errors.Is(err, tool.ErrInvalidSchema):
		return "A tool declares an argument schema that cannot be checked, so its calls are refused. Fix or disable its tool server: " + r.redactor.Redact(err.Error())
	case errors.Is(err, tool.ErrToolNotFound):
		return "The engine asked for a tool that is not in the catalogue. Type /tools to see what is available."
	case errors.Is(err, agent.ErrEngine):
		return "The reasoning engine call failed: " + r.redactor.Redact(err.Error())
	}
	return "Unexpected error: " + r.redactor.Redact(err.Error())
}
