package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/security"
)

// Store is a concurrency-safe, in-memory session store keyed by thread id.
// Sessions live as long as the process.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	leases   map[string]struct{}
	logger   *slog.Logger
	audit    *security.AuditLogger

	// now and newID are injectable for testing.
	now   func() time.Time
	newID func() string
}

// NewStore creates an empty store. A nil logger discards output.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		sessions: make(map[string]*session),
		leases:   make(map[string]struct{}),
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// SetAuditLogger records session creation in the audit trail.
func (s *Store) SetAuditLogger(al *security.AuditLogger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = al
}

func (s *Store) getOrCreateLocked(threadID string) *session {
	if sess, ok := s.sessions[threadID]; ok {
		return sess
	}
	now := s.now()
	sess := &session{
		id:        s.newID(),
		threadID:  threadID,
		createdAt: now,
		updatedAt: now,
	}
	s.sessions[threadID] = sess
	s.logger.Debug("session created", "thread_id", threadID, "session_id", sess.id)
	s.audit.Log(security.AuditEvent{
		Type:      security.EventSessionCreate,
		SessionID: sess.id,
		ThreadID:  threadID,
	})
	return sess
}

// Get returns a snapshot of the thread's session, creating it on first access.
func (s *Store) Get(threadID string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(threadID).snapshot()
}

// Checkpoint returns a deep copy of an existing session.
func (s *Store) Checkpoint(threadID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[threadID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownThread, threadID)
	}
	return sess.snapshot(), nil
}

// Append adds a user or assistant message. An assistant message carrying
// tool calls suspends the session until every call is resolved through
// Resume. Nothing but Resume may extend a suspended session.
func (s *Store) Append(threadID string, msg provider.LLMMessage) error {
	if msg.Role == provider.MessageRoleTool {
		return fmt.Errorf("%w: tool results must be recorded with Resume", ErrInvalidMessage)
	}
	if msg.Role != provider.MessageRoleAssistant && len(msg.ToolCalls) > 0 {
		return fmt.Errorf("%w: only assistant messages carry tool calls", ErrInvalidMessage)
	}
	if err := checkCalls(msg.ToolCalls); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(threadID)
	if sess.suspension != nil {
		return fmt.Errorf("%w: next call %s", ErrSuspended, sess.suspension.Pending().ID)
	}

	sess.messages = append(sess.messages, copyMessage(msg))
	sess.updatedAt = s.now()
	if len(msg.ToolCalls) > 0 {
		sess.suspension = &Suspension{
			Index: len(sess.messages) - 1,
			Calls: copyCalls(msg.ToolCalls),
		}
	}
	return nil
}

func checkCalls(calls []provider.ToolCall) error {
	seen := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		if c.ID == "" {
			return fmt.Errorf("%w: tool call %q has no id", ErrInvalidMessage, c.Name)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate tool call id %s", ErrInvalidMessage, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// Resume resolves the next pending call. A nil result only checks that a
// suspension is pending. A non-nil result must answer the pending call; it
// is appended as a tool message and the marker advances, clearing after
// the last call of the suspended message.
func (s *Store) Resume(threadID string, result *ToolResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[threadID]
	if !ok || sess.suspension == nil {
		return fmt.Errorf("%w: thread %s", ErrNoPendingSuspension, threadID)
	}
	if result == nil {
		return nil
	}

	pending := sess.suspension.Pending()
	if result.CallID != pending.ID {
		return fmt.Errorf("%w: got %s, want %s", ErrCallMismatch, result.CallID, pending.ID)
	}

	sess.messages = append(sess.messages, provider.LLMMessage{
		Role:    provider.MessageRoleTool,
		Content: provider.PlainText(result.Content),
		ToolID:  result.CallID,
	})
	sess.updatedAt = s.now()

	sess.suspension.Next++
	if sess.suspension.Next >= len(sess.suspension.Calls) {
		sess.suspension = nil
	}
	return nil
}

// Acquire takes the per-thread lease for one turn. A second concurrent
// acquire fails fast with ErrSessionBusy. The returned release is
// idempotent.
func (s *Store) Acquire(threadID string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.leases[threadID]; held {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, threadID)
	}
	s.leases[threadID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.leases, threadID)
			s.mu.Unlock()
		})
	}, nil
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
