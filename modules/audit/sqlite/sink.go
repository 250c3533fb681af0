package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/toolgate/internal/security"
)

// Sink is a security.AuditSink backed by SQLite.
type Sink struct {
	db *sql.DB
}

var _ security.AuditSink = (*Sink)(nil)

// Record implements security.AuditSink.
func (s *Sink) Record(event security.AuditEvent) error {
	meta := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("sqlite: marshal metadata: %w", err)
		}
	}

	// AuditSink does not carry a context; events are small single-row writes.
	_, err := s.db.ExecContext(context.TODO(), `
		INSERT INTO audit_events (ts, type, session_id, thread_id, call_id, tool_name, source, detail, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp.UTC().Format(time.RFC3339Nano), string(event.Type),
		event.SessionID, event.ThreadID, event.CallID, event.ToolName, event.Source,
		event.Detail, string(meta),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record audit event: %w", err)
	}
	return nil
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	ThreadID string
	Type     security.EventType
	// Limit caps the number of events returned, newest first. 0 means 100.
	Limit int
}

// Query returns matching events, newest first.
func (s *Sink) Query(ctx context.Context, f Filter) ([]security.AuditEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.ThreadID != "" {
		where = append(where, "thread_id = ?")
		args = append(args, f.ThreadID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT ts, type, session_id, thread_id, call_id, tool_name, source, detail, metadata FROM audit_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query audit events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // best-effort close

	var out []security.AuditEvent
	for rows.Next() {
		var (
			e        security.AuditEvent
			ts, typ  string
			metadata string
		)
		if err := rows.Scan(&ts, &typ, &e.SessionID, &e.ThreadID, &e.CallID, &e.ToolName, &e.Source, &e.Detail, &metadata); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit event: %w", err)
		}
		e.Type = security.EventType(typ)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("sqlite: parse timestamp %q: %w", ts, err)
		}
		if metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored events.
func (s *Sink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count audit events: %w", err)
	}
	return n, nil
}

// Close releases the database.
func (s *Sink) Close() error {
	return s.db.Close()
}
