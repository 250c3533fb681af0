package security

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types covering every decision point of an approval cycle.
const (
	EventSessionCreate   EventType = "session_create"
	EventDiscovery       EventType = "discovery"
	EventApprovalRequest EventType = "approval_request"
	EventApproval        EventType = "approval"
	EventToolCall        EventType = "tool_call"
	EventToolResult      EventType = "tool_result"
	EventTurnAbandoned   EventType = "turn_abandoned"
	EventTerminate       EventType = "terminate"
	EventAdminAuth       EventType = "admin_auth"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	ThreadID  string            `json:"thread_id,omitempty"`
	CallID    string            `json:"call_id,omitempty"`
	ToolName  string            `json:"tool_name,omitempty"`
	Source    string            `json:"source,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives every audit event after redaction. Sinks are called
// under the logger's lock, in event order.
type AuditSink interface {
	Record(event AuditEvent) error
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer is the destination for JSONL output. If nil, events are only
	// dispatched to sinks and OnEvent.
	Writer io.Writer

	// Sinks receive every event in addition to Writer.
	Sinks []AuditSink

	// Redactor, if non-nil, is applied to Detail and Metadata values before writing.
	Redactor *Redactor

	// Logger reports sink and writer failures. Defaults to discarding.
	Logger *slog.Logger

	// OnEvent, if non-nil, is called for every event (used in tests).
	OnEvent func(AuditEvent)

	// Now overrides time.Now for testing. Defaults to time.Now.
	Now func() time.Time
}

// AuditLogger writes structured audit events as JSONL with optional redaction.
type AuditLogger struct {
	writer      io.Writer
	sinks       []AuditSink
	redactor    *Redactor
	logger      *slog.Logger
	onEvent     func(AuditEvent)
	now         func() time.Time
	mu          sync.Mutex
	writeErrors atomic.Int64
}

// NewAuditLogger creates an audit logger with the given configuration.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		sinks:    cfg.Sinks,
		redactor: cfg.Redactor,
		logger:   logger,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// Log writes an audit event. The timestamp is set automatically.
// If a Redactor is configured, Detail and Metadata values are redacted.
// The caller's Metadata map is never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()

	if len(event.Metadata) > 0 {
		cp := make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			cp[k] = v
		}
		event.Metadata = cp
	}

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}

	if l.writer != nil {
		if err := json.NewEncoder(l.writer).Encode(event); err != nil {
			l.writeErrors.Add(1)
			l.logger.Warn("audit write failed", "error", err)
		}
	}

	for _, s := range l.sinks {
		if err := s.Record(event); err != nil {
			l.writeErrors.Add(1)
			l.logger.Warn("audit sink failed", "error", err)
		}
	}
}

// WriteErrors returns how many writer or sink failures occurred so far.
func (l *AuditLogger) WriteErrors() int64 {
	return l.writeErrors.Load()
}
