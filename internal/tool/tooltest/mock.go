// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/toolgate/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
type MockTool struct {
	NameFunc        func() string
	DescriptionFunc func() string
	SchemaFunc      func() json.RawMessage
	ExecuteFunc     func(ctx context.Context, args json.RawMessage) (tool.Output, error)

	mu           sync.Mutex
	ExecuteCalls int
	LastArgs     json.RawMessage
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock-tool"
}

// Description implements tool.Tool.
func (m *MockTool) Description() string {
	if m.DescriptionFunc != nil {
		return m.DescriptionFunc()
	}
	return "a mock tool"
}

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	if m.SchemaFunc != nil {
		return m.SchemaFunc()
	}
	return json.RawMessage(`{"type":"object"}`)
}

// Execute implements tool.Tool.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	m.mu.Lock()
	m.ExecuteCalls++
	m.LastArgs = args
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return tool.Output{Content: "ok"}, nil
}

// Calls returns the number of Execute calls so far.
func (m *MockTool) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExecuteCalls
}

// SimpleTool creates a minimal tool for testing that echoes its name.
func SimpleTool(name string) *MockTool {
	return &MockTool{
		NameFunc:        func() string { return name },
		DescriptionFunc: func() string { return "simple test tool: " + name },
		SchemaFunc:      func() json.RawMessage { return json.RawMessage(`{"type":"object"}`) },
		ExecuteFunc: func(_ context.Context, _ json.RawMessage) (tool.Output, error) {
			return tool.Output{Content: "executed: " + name}, nil
		},
	}
}

// SchemaTool creates a tool with the given name and JSON Schema.
func SchemaTool(name, schema string) *MockTool {
	m := SimpleTool(name)
	m.SchemaFunc = func() json.RawMessage { return json.RawMessage(schema) }
	return m
}

// MockDiscoverer is a configurable mock for tool.Discoverer.
type MockDiscoverer struct {
	Found []tool.Discovered
	Err   error

	mu            sync.Mutex
	DiscoverCalls int
}

// Discover implements tool.Discoverer.
func (m *MockDiscoverer) Discover(context.Context) ([]tool.Discovered, error) {
	m.mu.Lock()
	m.DiscoverCalls++
	m.mu.Unlock()
	return m.Found, m.Err
}

// Interface guards.
var (
	_ tool.Tool       = (*MockTool)(nil)
	_ tool.Discoverer = (*MockDiscoverer)(nil)
)
