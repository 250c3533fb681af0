// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flemzord/toolgate/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set CompleteFunc to control behavior; when it is nil, Responses are
// returned in order. All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc  func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	ModelNameFunc func() string

	// Responses is a script consumed one entry per Complete call.
	Responses []provider.CompletionResponse

	mu            sync.Mutex
	CompleteCalls int
	Requests      []provider.CompletionRequest
}

// Complete delegates to CompleteFunc or replays Responses, and records the request.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.Requests = append(m.Requests, req)
	idx := m.CompleteCalls - 1
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if idx >= len(m.Responses) {
		return provider.CompletionResponse{}, fmt.Errorf("providertest: unscripted call %d", idx+1)
	}
	return m.Responses[idx], nil
}

// ModelName delegates to ModelNameFunc.
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc != nil {
		return m.ModelNameFunc()
	}
	return "mock-model"
}

// Calls returns the number of Complete calls so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockProvider) LastRequest() provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return provider.CompletionRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// Answer returns a final-answer response.
func Answer(text string) provider.CompletionResponse {
	return provider.CompletionResponse{
		Content:      provider.PlainText(text),
		FinishReason: provider.FinishReasonStop,
	}
}

// CallTool returns a response requesting the given tool calls.
func CallTool(calls ...provider.ToolCall) provider.CompletionResponse {
	return provider.CompletionResponse{
		ToolCalls:    calls,
		FinishReason: provider.FinishReasonToolUse,
	}
}

// Call builds a ToolCall, marshalling args to JSON.
func Call(id, name string, args map[string]any) provider.ToolCall {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("providertest: marshal args: %v", err))
	}
	return provider.ToolCall{ID: id, Name: name, Arguments: raw}
}

// Interface guards.
var _ provider.Provider = (*MockProvider)(nil)
