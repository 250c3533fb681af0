package tool

import "errors"

var (
	// ErrToolNotFound is returned when a tool is not found in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmptyToolName is returned when a tool name is empty.
	ErrEmptyToolName = errors.New("tool name must not be empty")

	// ErrDiscoveryFailure is returned when one or more tool servers could not
	// be queried. Tools from the servers that did respond remain registered.
	ErrDiscoveryFailure = errors.New("tool discovery failed")

	// ErrSchemaValidation is returned when call arguments do not match the
	// tool's declared schema.
	ErrSchemaValidation = errors.New("tool arguments do not match schema")

	// ErrInvalidSchema is returned when a tool's own declared schema cannot
	// be compiled, so its arguments cannot be checked.
	ErrInvalidSchema = errors.New("tool declares an invalid schema")
)
