// Package provider defines the boundary to the reasoning engine: the
// conversation data model shared with sessions, and the Provider interface
// that turns a history plus a tool catalogue into either a final answer or
// tool call requests.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live under modules/provider.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}
