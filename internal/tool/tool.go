// Package tool defines the tool interface and the registry that merges
// statically defined tools with tools discovered on external servers.
// Tools only ever run through Registry.Invoke, after the operator approved
// the specific call.
package tool

import (
	"context"
	"encoding/json"
)

// SourceLocal is the source recorded for tools defined in this process.
const SourceLocal = "local"

// Tool is the interface that all toolgate tools must implement.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON object arguments.
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Output is the result of a tool execution.
type Output struct {
	// Content is the output text from the tool.
	Content string

	// IsError indicates whether the output represents an error condition.
	IsError bool
}

// Descriptor is the catalogue entry for a registered tool.
type Descriptor struct {
	Name        string
	Description string
	Schema      json.RawMessage

	// Source is SourceLocal or the name of the tool server that exposed it.
	Source string
}

// Discovered is the set of tools one server exposed.
type Discovered struct {
	Source string
	Tools  []Tool
}

// Discoverer lists tools on external servers. It returns whatever it could
// discover together with an error describing the servers that failed.
type Discoverer interface {
	Discover(ctx context.Context) ([]Discovered, error)
}
