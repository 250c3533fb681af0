package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/toolgate/internal/approval"
	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/session"
	"github.com/flemzord/toolgate/internal/tool"
)

const tracerName = "github.com/flemzord/toolgate/internal/agent"

// ErrNothingPending is returned by Resume when the thread has no call
// awaiting a decision.
var ErrNothingPending = errors.New("agent: no tool call awaiting approval")

// Reviewer collects the operator's verdict for one tool call.
type Reviewer interface {
	Review(ctx context.Context, req approval.Request) (approval.Verdict, error)
}

// ControllerConfig holds the dependencies of a Controller.
type ControllerConfig struct {
	Provider provider.Provider
	Registry *tool.Registry
	Store    *session.Store
	Reviewer Reviewer
	Config   Config

	// Optional.
	Logger   *slog.Logger
	Audit    *security.AuditLogger
	Recorder Recorder
	Tracer   trace.Tracer
}

// Controller drives one conversation at a time through the engine, the
// approval gate and the tool registry. No tool runs unless the operator
// approved that specific call.
type Controller struct {
	provider provider.Provider
	registry *tool.Registry
	store    *session.Store
	reviewer Reviewer
	cfg      Config
	logger   *slog.Logger
	audit    *security.AuditLogger
	recorder Recorder
	tracer   trace.Tracer

	turnMu sync.Mutex
	state  atomic.Int32

	// newCallID fills in call ids the engine left blank.
	newCallID func() string
}

// NewController creates a controller in the Idle state.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Controller{
		provider:  cfg.Provider,
		registry:  cfg.Registry,
		store:     cfg.Store,
		reviewer:  cfg.Reviewer,
		cfg:       cfg.Config.withDefaults(),
		logger:    logger.With("component", "agent"),
		audit:     cfg.Audit,
		recorder:  recorder,
		tracer:    tracer,
		newCallID: func() string { return "call_" + uuid.Must(uuid.NewV7()).String() },
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	if c.State() == StateTerminated {
		return
	}
	c.state.Store(int32(s))
}

// Pending reports the decision currently awaited on threadID.
func (c *Controller) Pending(threadID string) approval.Decision {
	snap, err := c.store.Checkpoint(threadID)
	if err != nil {
		return approval.Decision{Kind: approval.NoActionNeeded}
	}
	return approval.Inspect(snap)
}

// turn holds the per-turn bookkeeping.
type turn struct {
	threadID   string
	sessionID  string
	detector   *loopDetector
	usage      usageTracker
	iterations int
	records    []ToolCallRecord
}

func (t *turn) outcome(reason StopReason) Outcome {
	return Outcome{
		ToolCalls:  t.records,
		Usage:      t.usage.total(),
		Iterations: t.iterations,
		StopReason: reason,
	}
}

// Submit starts a turn with the operator's text. Calls left pending by an
// abandoned turn are first closed with a synthetic result so the history
// stays well formed.
func (c *Controller) Submit(ctx context.Context, threadID, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, ErrEmptyInput
	}
	release, err := c.begin(threadID)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	ctx, span := c.tracer.Start(ctx, "agent.submit", trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	t := c.newTurn(threadID)
	if err := c.closeAbandoned(t); err != nil {
		return c.fail(ctx, t, err)
	}
	if err := c.store.Append(threadID, provider.LLMMessage{
		Role:    provider.MessageRoleUser,
		Content: provider.PlainText(text),
	}); err != nil {
		return c.fail(ctx, t, err)
	}
	c.setState(StateRunning)
	return c.run(ctx, t)
}

// Resume re-enters the approval cycle for a turn abandoned while a call was
// pending.
func (c *Controller) Resume(ctx context.Context, threadID string) (Outcome, error) {
	release, err := c.begin(threadID)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	if !c.Pending(threadID).Pending() {
		return Outcome{}, fmt.Errorf("%w: thread %s", ErrNothingPending, threadID)
	}

	ctx, span := c.tracer.Start(ctx, "agent.resume", trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	return c.run(ctx, c.newTurn(threadID))
}

func (c *Controller) newTurn(threadID string) *turn {
	return &turn{
		threadID: threadID,
		detector: newLoopDetector(c.cfg.LoopThreshold),
	}
}

// begin serialises turns and takes the thread lease. Concurrent turns fail
// fast rather than interleave.
func (c *Controller) begin(threadID string) (func(), error) {
	if !c.turnMu.TryLock() {
		return nil, fmt.Errorf("%w: another turn is in progress", session.ErrSessionBusy)
	}
	if c.State() == StateTerminated {
		c.turnMu.Unlock()
		return nil, ErrTerminated
	}
	release, err := c.store.Acquire(threadID)
	if err != nil {
		c.turnMu.Unlock()
		return nil, err
	}
	return func() {
		release()
		c.turnMu.Unlock()
	}, nil
}

func (c *Controller) run(ctx context.Context, t *turn) (Outcome, error) {
	for {
		snap := c.store.Get(t.threadID)
		t.sessionID = snap.ID

		if d := approval.Inspect(snap); d.Pending() {
			aborted, err := c.resolve(ctx, t, d)
			if err != nil {
				return c.fail(ctx, t, err)
			}
			if aborted {
				return c.terminate(t), nil
			}
			continue
		}

		if t.iterations >= c.cfg.MaxIterations {
			return c.fail(ctx, t, fmt.Errorf("%w (%d)", ErrMaxIterationsReached, c.cfg.MaxIterations))
		}

		c.setState(StateRunning)
		resp, err := c.complete(ctx, snap.Messages)
		t.iterations++
		if err != nil {
			return c.fail(ctx, t, err)
		}
		t.usage.add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			if err := c.store.Append(t.threadID, provider.LLMMessage{
				Role:    provider.MessageRoleAssistant,
				Content: resp.Content,
			}); err != nil {
				return c.fail(ctx, t, err)
			}
			c.setState(StateIdle)
			c.recorder.Turn(StopReasonComplete)
			out := t.outcome(StopReasonComplete)
			out.Answer = resp.Content.Text()
			return out, nil
		}

		// Calls are checked before the assistant message is stored so an
		// abandoned turn never leaves unanswerable calls in the history.
		calls, err := c.admit(t, resp.ToolCalls)
		if err != nil {
			return c.fail(ctx, t, err)
		}
		if err := c.store.Append(t.threadID, provider.LLMMessage{
			Role:      provider.MessageRoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		}); err != nil {
			return c.fail(ctx, t, err)
		}
		c.setState(StateSuspendedForApproval)
		c.logger.Info("execution suspended for approval", "thread_id", t.threadID, "calls", len(calls))
	}
}

func (c *Controller) complete(ctx context.Context, history []provider.LLMMessage) (provider.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EngineTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "engine.complete",
		trace.WithAttributes(attribute.String("engine.model", c.provider.ModelName())))
	defer span.End()

	msgs := make([]provider.LLMMessage, 0, len(history)+1)
	if c.cfg.SystemPrompt != "" {
		msgs = append(msgs, provider.LLMMessage{
			Role:    provider.MessageRoleSystem,
			Content: provider.PlainText(c.cfg.SystemPrompt),
		})
	}
	msgs = append(msgs, history...)

	start := time.Now()
	resp, err := c.provider.Complete(ctx, provider.CompletionRequest{
		Messages: msgs,
		Tools:    c.registry.Definitions(),
	})
	c.recorder.EngineCall(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return provider.CompletionResponse{}, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	span.SetAttributes(attribute.Int("engine.tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

// admit fills in missing ids, validates arguments against each tool's
// schema and applies the loop guard. Unknown tool names pass through; they
// surface as an error result if the operator approves them.
func (c *Controller) admit(t *turn, calls []provider.ToolCall) ([]provider.ToolCall, error) {
	out := make([]provider.ToolCall, len(calls))
	seen := make(map[string]struct{}, len(calls))
	for i, tc := range calls {
		if _, dup := seen[tc.ID]; tc.ID == "" || dup {
			tc.ID = c.newCallID()
		}
		seen[tc.ID] = struct{}{}
		if len(tc.Arguments) == 0 {
			tc.Arguments = json.RawMessage(`{}`)
		}

		if err := c.registry.Validate(tc.Name, tc.Arguments); err != nil && !errors.Is(err, tool.ErrToolNotFound) {
			return nil, err
		}
		if t.detector.record(tc.Name, tc.Arguments) {
			return nil, fmt.Errorf("%w: %s called %d times with the same arguments", ErrLoopDetected, tc.Name, c.cfg.LoopThreshold)
		}
		out[i] = tc
	}
	return out, nil
}

// resolve asks the operator about the pending call and applies the verdict.
// It reports whether the operator aborted.
func (c *Controller) resolve(ctx context.Context, t *turn, d approval.Decision) (bool, error) {
	c.setState(StateSuspendedForApproval)
	call := d.Call
	desc, _ := c.registry.Describe(call.Name)

	c.audit.Log(security.AuditEvent{
		Type:      security.EventApprovalRequest,
		SessionID: t.sessionID,
		ThreadID:  t.threadID,
		CallID:    call.ID,
		ToolName:  call.Name,
		Source:    desc.Source,
		Detail:    string(call.Arguments),
	})

	verdict, err := c.reviewer.Review(ctx, approval.Request{
		Call:        call,
		Source:      desc.Source,
		Description: desc.Description,
		Position:    d.Position,
		Total:       d.Total,
	})
	if err != nil {
		return false, err
	}

	c.recorder.Decision(call.Name, verdict)
	c.audit.Log(security.AuditEvent{
		Type:      security.EventApproval,
		SessionID: t.sessionID,
		ThreadID:  t.threadID,
		CallID:    call.ID,
		ToolName:  call.Name,
		Source:    desc.Source,
		Metadata:  map[string]string{"verdict": verdict.String()},
	})
	trace.SpanFromContext(ctx).AddEvent("approval", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("approval.verdict", verdict.String()),
	))
	c.logger.Info("operator decision", "thread_id", t.threadID, "tool", call.Name, "call_id", call.ID, "verdict", verdict.String())

	switch verdict {
	case approval.Abort:
		return true, nil
	case approval.Approve:
		c.setState(StateResolving)
		return false, c.execute(ctx, t, call)
	default:
		c.setState(StateResolving)
		return false, c.reject(t, call, desc.Source)
	}
}

func (c *Controller) execute(ctx context.Context, t *turn, call provider.ToolCall) error {
	if err := c.store.Resume(t.threadID, nil); err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	start := time.Now()
	out, err := c.registry.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		out = tool.Output{Content: "Error: " + err.Error(), IsError: true}
	}
	elapsed := time.Since(start)
	if out.IsError {
		span.SetStatus(codes.Error, "tool returned an error")
	}
	span.End()

	c.recorder.ToolResult(call.Name, ProvenanceReal, out.IsError, elapsed)
	t.records = append(t.records, ToolCallRecord{
		ID:         call.ID,
		Name:       call.Name,
		Arguments:  call.Arguments,
		Verdict:    approval.Approve,
		Provenance: ProvenanceReal,
		Output:     out,
		Duration:   elapsed,
	})
	return c.store.Resume(t.threadID, &session.ToolResult{CallID: call.ID, Content: out.Content})
}

func (c *Controller) reject(t *turn, call provider.ToolCall, source string) error {
	out := tool.Output{Content: RejectionNotice(call.Name)}
	c.synthetic(t, call, source, out.Content)
	c.recorder.ToolResult(call.Name, ProvenanceSynthetic, false, 0)
	t.records = append(t.records, ToolCallRecord{
		ID:         call.ID,
		Name:       call.Name,
		Arguments:  call.Arguments,
		Verdict:    approval.Reject,
		Provenance: ProvenanceSynthetic,
		Output:     out,
	})
	return c.store.Resume(t.threadID, &session.ToolResult{CallID: call.ID, Content: out.Content})
}

func (c *Controller) synthetic(t *turn, call provider.ToolCall, source, content string) {
	c.audit.Log(security.AuditEvent{
		Type:      security.EventToolResult,
		SessionID: t.sessionID,
		ThreadID:  t.threadID,
		CallID:    call.ID,
		ToolName:  call.Name,
		Source:    source,
		Detail:    content,
		Metadata: map[string]string{
			"is_error":   "false",
			"provenance": ProvenanceSynthetic,
		},
	})
}

// closeAbandoned answers every call left pending on the thread.
func (c *Controller) closeAbandoned(t *turn) error {
	snap, err := c.store.Checkpoint(t.threadID)
	if errors.Is(err, session.ErrUnknownThread) {
		return nil
	}
	if err != nil {
		return err
	}
	t.sessionID = snap.ID

	for d := approval.Inspect(snap); d.Pending(); {
		call := d.Call
		content := InterruptedNotice(call.Name)
		c.audit.Log(security.AuditEvent{
			Type:      security.EventTurnAbandoned,
			SessionID: t.sessionID,
			ThreadID:  t.threadID,
			CallID:    call.ID,
			ToolName:  call.Name,
		})
		c.synthetic(t, call, "", content)
		if err := c.store.Resume(t.threadID, &session.ToolResult{CallID: call.ID, Content: content}); err != nil {
			return err
		}
		c.logger.Info("closed abandoned tool call", "thread_id", t.threadID, "tool", call.Name, "call_id", call.ID)

		if snap, err = c.store.Checkpoint(t.threadID); err != nil {
			return err
		}
		d = approval.Inspect(snap)
	}
	return nil
}

func (c *Controller) terminate(t *turn) Outcome {
	c.state.Store(int32(StateTerminated))
	c.recorder.Turn(StopReasonTerminated)
	c.audit.Log(security.AuditEvent{
		Type:      security.EventTerminate,
		SessionID: t.sessionID,
		ThreadID:  t.threadID,
	})
	c.logger.Info("session terminated by operator", "thread_id", t.threadID)

	out := t.outcome(StopReasonTerminated)
	out.Terminated = true
	return out
}

// fail abandons the turn. History up to this point is kept and any pending
// calls stay pending.
func (c *Controller) fail(ctx context.Context, t *turn, err error) (Outcome, error) {
	reason := StopReasonError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		reason = StopReasonInterrupted
	case errors.Is(err, tool.ErrSchemaValidation):
		reason = StopReasonSchema
	case errors.Is(err, ErrMaxIterationsReached):
		reason = StopReasonMaxIterations
	case errors.Is(err, ErrLoopDetected):
		reason = StopReasonLoopDetected
	}

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(reason))

	c.setState(StateIdle)
	c.recorder.Turn(reason)
	c.logger.Warn("turn abandoned", "thread_id", t.threadID, "reason", string(reason), "error", err)
	return t.outcome(reason), err
}
