package tool

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kaptinlin/jsonschema"

	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/security"
)

type entry struct {
	tool   Tool
	source string

	// schema is nil for a tool that declares none. schemaErr is set when
	// the declared schema does not compile.
	schema    *jsonschema.Schema
	schemaErr error
}

// Registry holds the merged catalogue of local and discovered tools.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]*entry
	logger      *slog.Logger
	auditLogger *security.AuditLogger
}

// NewRegistry creates an empty tool registry. A nil logger discards output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		tools:  make(map[string]*entry),
		logger: logger,
	}
}

// SetAuditLogger configures audit logging for tool executions.
func (r *Registry) SetAuditLogger(logger *security.AuditLogger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditLogger = logger
}

// Register adds tools from source. A name that is already registered is
// overridden by the newer registration and a warning names both sources.
// It returns ErrEmptyToolName, without registering anything, if any tool
// has a blank name. Schemas are compiled here; a tool whose schema does not
// compile is still registered but every call to it fails with
// ErrInvalidSchema.
func (r *Registry) Register(source string, tools ...Tool) error {
	for _, t := range tools {
		if strings.TrimSpace(t.Name()) == "" {
			return fmt.Errorf("%w (source %s)", ErrEmptyToolName, source)
		}
	}

	entries := make([]*entry, len(tools))
	for i, t := range tools {
		e := &entry{tool: t, source: source}
		e.schema, e.schemaErr = compileSchema(t.Schema())
		if e.schemaErr != nil {
			r.logger.Warn("tool declares an invalid schema, its calls will be refused",
				"tool", t.Name(),
				"source", source,
				"error", e.schemaErr,
			)
		}
		entries[i] = e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		name := strings.TrimSpace(e.tool.Name())
		if prev, exists := r.tools[name]; exists {
			r.logger.Warn("tool name collision, last registration wins",
				"tool", name,
				"previous_source", prev.source,
				"source", source,
			)
		}
		r.tools[name] = e
	}
	return nil
}

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return jsonschema.NewCompiler().Compile([]byte(raw))
}

// Discover queries every source and registers what each returned. Failures
// do not stop the remaining sources; they are joined into a single error
// wrapping ErrDiscoveryFailure.
func (r *Registry) Discover(ctx context.Context, sources ...Discoverer) error {
	var errs []error
	for _, d := range sources {
		found, err := d.Discover(ctx)
		for _, batch := range found {
			if regErr := r.Register(batch.Source, batch.Tools...); regErr != nil {
				errs = append(errs, fmt.Errorf("%s: %w", batch.Source, regErr))
				continue
			}
			r.logger.Info("tools discovered", "source", batch.Source, "count", len(batch.Tools))
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDiscoveryFailure, errors.Join(errs...))
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.tool, nil
}

// Describe returns the catalogue entry for name.
func (r *Registry) Describe(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	return describe(name, e), true
}

func describe(name string, e *entry) Descriptor {
	return Descriptor{
		Name:        name,
		Description: e.tool.Description(),
		Schema:      e.tool.Schema(),
		Source:      e.source,
	}
}

// Catalogue returns every registered tool sorted by name.
func (r *Registry) Catalogue() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for name, e := range r.tools {
		out = append(out, describe(name, e))
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Definitions returns the catalogue in the form the reasoning engine consumes.
func (r *Registry) Definitions() []provider.ToolDefinition {
	cat := r.Catalogue()
	defs := make([]provider.ToolDefinition, len(cat))
	for i, d := range cat {
		defs[i] = provider.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema,
		}
	}
	return defs
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Validate checks args against the schema declared by the named tool.
// Mismatches wrap ErrSchemaValidation. A tool whose own schema does not
// compile fails with ErrInvalidSchema whatever the arguments.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if e.schemaErr != nil {
		return fmt.Errorf("%w: %s (source %s): %v", ErrInvalidSchema, name, e.source, e.schemaErr)
	}
	schema := e.schema

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := security.CheckPayload(args, 0, 0); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSchemaValidation, name, err)
	}
	var data any
	if err := json.Unmarshal(args, &data); err != nil {
		return fmt.Errorf("%w: %s: arguments are not valid JSON: %v", ErrSchemaValidation, name, err)
	}
	if _, ok := data.(map[string]any); !ok {
		return fmt.Errorf("%w: %s: arguments must be a JSON object", ErrSchemaValidation, name)
	}
	if schema == nil {
		return nil
	}

	result := schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%w: %s: %s", ErrSchemaValidation, name, result.Error())
	}
	return nil
}

// Invoke executes the named tool. Unknown names fail with ErrToolNotFound.
// Errors and panics raised by the tool itself are captured into an error
// Output so the reasoning engine can see them; they never surface as a Go
// error.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (out Output, err error) {
	t, err := r.Get(name)
	if err != nil {
		return Output{}, err
	}

	r.mu.RLock()
	al := r.auditLogger
	source := r.tools[name].source
	r.mu.RUnlock()

	if al != nil {
		al.Log(security.AuditEvent{
			Type:     security.EventToolCall,
			ToolName: name,
			Source:   source,
			Detail:   truncateForAudit(string(args)),
		})
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec, "stack", string(debug.Stack()))
			out = Output{Content: fmt.Sprintf("Error: tool %s panicked: %v", name, rec), IsError: true}
			err = nil
		}
		if al != nil {
			al.Log(security.AuditEvent{
				Type:     security.EventToolResult,
				ToolName: name,
				Source:   source,
				Detail:   truncateForAudit(out.Content),
				Metadata: map[string]string{
					"is_error":   fmt.Sprintf("%v", out.IsError),
					"provenance": "real",
				},
			})
		}
	}()

	out, execErr := t.Execute(ctx, args)
	if execErr != nil {
		return Output{Content: "Error: " + execErr.Error(), IsError: true}, nil
	}
	return out, nil
}

// maxAuditDetailLen is the maximum length of audit detail strings.
// Longer values are truncated to prevent log bloat from large tool outputs.
const maxAuditDetailLen = 4096

// truncateForAudit truncates a string to maxAuditDetailLen, appending
// a truncation indicator if the string was shortened.
// It walks back to a valid UTF-8 rune boundary to avoid splitting multi-byte
// characters when the cut falls mid-rune.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
