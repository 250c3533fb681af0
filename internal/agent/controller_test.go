package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/toolgate/internal/approval"
	"github.com/flemzord/toolgate/internal/approval/approvaltest"
	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/provider/providertest"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/session"
	"github.com/flemzord/toolgate/internal/tool"
	"github.com/flemzord/toolgate/internal/tool/tooltest"
)

const searchSchema = `{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`

// scriptedReviewer returns verdicts in order and records every request.
// Once the script is exhausted it rejects.
type scriptedReviewer struct {
	mu       sync.Mutex
	verdicts []approval.Verdict
	seen     []approval.Request

	// before, if set, runs ahead of each verdict.
	before func(ctx context.Context, req approval.Request) error
}

func review(vs ...approval.Verdict) *scriptedReviewer {
	return &scriptedReviewer{verdicts: vs}
}

func (r *scriptedReviewer) Review(ctx context.Context, req approval.Request) (approval.Verdict, error) {
	r.mu.Lock()
	r.seen = append(r.seen, req)
	before := r.before
	r.mu.Unlock()

	if before != nil {
		if err := before(ctx, req); err != nil {
			return approval.Reject, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.verdicts) == 0 {
		return approval.Reject, nil
	}
	v := r.verdicts[0]
	r.verdicts = r.verdicts[1:]
	return v, nil
}

func (r *scriptedReviewer) requests() []approval.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]approval.Request(nil), r.seen...)
}

type harness struct {
	ctrl     *Controller
	store    *session.Store
	registry *tool.Registry
	engine   *providertest.MockProvider
	reviewer Reviewer
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []security.AuditEvent
}

func (l *eventLog) add(e security.AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(t security.EventType) []security.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []security.AuditEvent
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newHarness(t *testing.T, engine *providertest.MockProvider, reviewer Reviewer, cfg Config, tools ...tool.Tool) *harness {
	t.Helper()

	registry := tool.NewRegistry(nil)
	if err := registry.Register(tool.SourceLocal, tools...); err != nil {
		t.Fatalf("register: %v", err)
	}
	events := &eventLog{}
	store := session.NewStore(nil)
	ctrl := NewController(ControllerConfig{
		Provider: engine,
		Registry: registry,
		Store:    store,
		Reviewer: reviewer,
		Config:   cfg,
		Audit:    security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: events.add}),
	})
	return &harness{
		ctrl:     ctrl,
		store:    store,
		registry: registry,
		engine:   engine,
		reviewer: reviewer,
		events:   events,
	}
}

func lastMessage(req provider.CompletionRequest) provider.LLMMessage {
	return req.Messages[len(req.Messages)-1]
}

func TestController_FinalAnswer(t *testing.T) {
	t.Parallel()

	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{providertest.Answer("4")}}
	h := newHarness(t, engine, review(), Config{SystemPrompt: "use tools wisely"}, tooltest.SimpleTool("calculator"))

	out, err := h.ctrl.Submit(context.Background(), "t", "what is 2+2?")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Answer != "4" || out.StopReason != StopReasonComplete || out.Iterations != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if h.ctrl.State() != StateIdle {
		t.Fatalf("state = %s, want idle", h.ctrl.State())
	}

	req := engine.LastRequest()
	if len(req.Messages) != 2 || req.Messages[0].Role != provider.MessageRoleSystem || req.Messages[0].Content.Text() != "use tools wisely" {
		t.Fatalf("engine messages = %+v", req.Messages)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "calculator" {
		t.Fatalf("engine tools = %+v", req.Tools)
	}

	snap, _ := h.store.Checkpoint("t")
	if len(snap.Messages) != 2 || snap.Messages[1].Role != provider.MessageRoleAssistant {
		t.Fatalf("history = %+v", snap.Messages)
	}
	for _, m := range snap.Messages {
		if m.Role == provider.MessageRoleSystem {
			t.Fatal("system prompt must not be stored in the session")
		}
	}
}

func TestController_EmptyInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &providertest.MockProvider{}, review(), Config{})
	for _, in := range []string{"", "   ", "\n"} {
		if _, err := h.ctrl.Submit(context.Background(), "t", in); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("Submit(%q) err = %v, want ErrEmptyInput", in, err)
		}
	}
	if h.engine.Calls() != 0 {
		t.Fatal("engine must not be driven for empty input")
	}
}

func TestController_ApproveRunsToolExactlyOnceAfterApproval(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
		providertest.Answer("found it"),
	}}
	r := review(approval.Approve)
	r.before = func(_ context.Context, req approval.Request) error {
		if n := search.Calls(); n != 0 {
			return fmt.Errorf("tool ran %d times before approval", n)
		}
		if req.Call.Name != "search" || req.Source != tool.SourceLocal {
			return fmt.Errorf("unexpected request %+v", req)
		}
		return nil
	}
	h := newHarness(t, engine, r, Config{}, search)

	out, err := h.ctrl.Submit(context.Background(), "t", "search x")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Answer != "found it" {
		t.Fatalf("answer = %q", out.Answer)
	}
	if search.Calls() != 1 {
		t.Fatalf("tool calls = %d, want 1", search.Calls())
	}
	if got := string(search.LastArgs); got != `{"query":"x"}` {
		t.Fatalf("tool args = %s", got)
	}

	redrive := engine.Requests[1]
	last := lastMessage(redrive)
	if last.Role != provider.MessageRoleTool || last.ToolID != "c1" || last.Content.Text() != "executed: search" {
		t.Fatalf("re-drive did not carry the real result: %+v", last)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Provenance != ProvenanceReal || out.ToolCalls[0].Verdict != approval.Approve {
		t.Fatalf("records = %+v", out.ToolCalls)
	}
}

func TestController_RejectNeverExecutes(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
		providertest.Answer("ok, I will not search"),
	}}
	h := newHarness(t, engine, review(approval.Reject), Config{}, search)

	out, err := h.ctrl.Submit(context.Background(), "t", "search x")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if search.Calls() != 0 {
		t.Fatalf("rejected tool ran %d times", search.Calls())
	}

	last := lastMessage(engine.Requests[1])
	if last.Role != provider.MessageRoleTool || last.ToolID != "c1" {
		t.Fatalf("expected synthetic tool result, got %+v", last)
	}
	if text := last.Content.Text(); text != RejectionNotice("search") || !strings.Contains(text, "search") || !strings.Contains(text, "rejected") {
		t.Fatalf("rejection text = %q", text)
	}

	snap, _ := h.store.Checkpoint("t")
	var results int
	for _, m := range snap.Messages {
		if m.Role == provider.MessageRoleTool && m.ToolID == "c1" {
			results++
		}
	}
	if results != 1 {
		t.Fatalf("synthetic results for c1 = %d, want 1", results)
	}
	if out.ToolCalls[0].Provenance != ProvenanceSynthetic {
		t.Fatalf("provenance = %q", out.ToolCalls[0].Provenance)
	}

	synth := h.events.ofType(security.EventToolResult)
	if len(synth) != 1 || synth[0].Metadata["provenance"] != ProvenanceSynthetic {
		t.Fatalf("tool_result audit events = %+v", synth)
	}
}

func TestController_AmbiguousInputFailsClosed(t *testing.T) {
	t.Parallel()

	for _, answer := range []string{"", "  ", "n", "no", "maybe", "yes please", "ok", "1", "approved"} {
		t.Run(fmt.Sprintf("%q", answer), func(t *testing.T) {
			t.Parallel()

			search := tooltest.SchemaTool("search", searchSchema)
			engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
				providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
				providertest.Answer("fine"),
			}}
			gate := approval.NewGate(&bytes.Buffer{}, approvaltest.NewScriptedPrompter(answer), nil)
			h := newHarness(t, engine, gate, Config{}, search)

			if _, err := h.ctrl.Submit(context.Background(), "t", "search x"); err != nil {
				t.Fatalf("submit: %v", err)
			}
			if search.Calls() != 0 {
				t.Fatalf("input %q executed the tool", answer)
			}
			if got := lastMessage(engine.Requests[1]).Content.Text(); got != RejectionNotice("search") {
				t.Fatalf("input %q produced %q", answer, got)
			}
		})
	}
}

func TestController_AbortTerminates(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
	}}
	h := newHarness(t, engine, review(approval.Abort), Config{}, search)

	out, err := h.ctrl.Submit(context.Background(), "t", "search x")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Terminated || out.StopReason != StopReasonTerminated {
		t.Fatalf("outcome = %+v", out)
	}
	if h.ctrl.State() != StateTerminated {
		t.Fatalf("state = %s", h.ctrl.State())
	}
	if search.Calls() != 0 {
		t.Fatal("aborted call must not run")
	}
	if _, err := h.ctrl.Submit(context.Background(), "t", "again"); !errors.Is(err, ErrTerminated) {
		t.Fatalf("submit after abort: %v", err)
	}
	if _, err := h.ctrl.Resume(context.Background(), "t"); !errors.Is(err, ErrTerminated) {
		t.Fatalf("resume after abort: %v", err)
	}
	if len(h.events.ofType(security.EventTerminate)) != 1 {
		t.Fatal("terminate not audited")
	}
}

func TestController_SchemaFailureAbandonsTurnBeforeStoring(t *testing.T) {
	t.Parallel()

	calc := tooltest.SchemaTool("calculator", `{"type":"object","properties":{"expression":{"type":"string"}},"required":["expression"]}`)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "calculator", map[string]any{"expression": 5})),
		providertest.Answer("4"),
	}}
	r := review(approval.Approve)
	h := newHarness(t, engine, r, Config{}, calc)

	out, err := h.ctrl.Submit(context.Background(), "t", "2+2")
	if !errors.Is(err, tool.ErrSchemaValidation) {
		t.Fatalf("expected ErrSchemaValidation, got %v", err)
	}
	if out.StopReason != StopReasonSchema {
		t.Fatalf("stop reason = %s", out.StopReason)
	}
	if len(r.requests()) != 0 || calc.Calls() != 0 {
		t.Fatal("invalid call must never reach the operator or the tool")
	}
	if h.ctrl.State() != StateIdle {
		t.Fatalf("state = %s", h.ctrl.State())
	}

	snap, _ := h.store.Checkpoint("t")
	if snap.Suspended() || len(snap.Messages) != 1 || snap.Messages[0].Role != provider.MessageRoleUser {
		t.Fatalf("history = %+v", snap.Messages)
	}

	// The session is still usable.
	out, err = h.ctrl.Submit(context.Background(), "t", "try again")
	if err != nil || out.Answer != "4" {
		t.Fatalf("next turn: %+v, %v", out, err)
	}
}

func TestController_InvalidToolSchemaRefusesCall(t *testing.T) {
	t.Parallel()

	broken := tooltest.SchemaTool("search", `{"type": "object",`)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
	}}
	r := review(approval.Approve)
	h := newHarness(t, engine, r, Config{}, broken)

	out, err := h.ctrl.Submit(context.Background(), "t", "look it up")
	if !errors.Is(err, tool.ErrInvalidSchema) || errors.Is(err, tool.ErrSchemaValidation) {
		t.Fatalf("err = %v, want ErrInvalidSchema only", err)
	}
	if out.StopReason == StopReasonSchema {
		t.Fatal("a broken tool schema must not be reported as bad arguments")
	}
	if len(r.requests()) != 0 || broken.Calls() != 0 {
		t.Fatal("unchecked call must never reach the operator or the tool")
	}
}

func TestController_MultipleCallsReviewedInOrder(t *testing.T) {
	t.Parallel()

	first := tooltest.SchemaTool("search", searchSchema)
	second := tooltest.SimpleTool("scrape")
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(
			providertest.Call("c1", "search", map[string]any{"query": "x"}),
			providertest.Call("c2", "scrape", map[string]any{"url": "https://example.com"}),
		),
		providertest.Answer("done"),
	}}
	r := review(approval.Approve, approval.Reject)
	r.before = func(context.Context, approval.Request) error {
		if n := engine.Calls(); n != 1 {
			return fmt.Errorf("engine re-driven before every call was resolved (%d calls)", n)
		}
		return nil
	}
	h := newHarness(t, engine, r, Config{}, first, second)

	if _, err := h.ctrl.Submit(context.Background(), "t", "look it up"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	seen := r.requests()
	if len(seen) != 2 {
		t.Fatalf("reviews = %d, want 2", len(seen))
	}
	if seen[0].Call.ID != "c1" || seen[0].Position != 1 || seen[0].Total != 2 {
		t.Fatalf("first review = %+v", seen[0])
	}
	if seen[1].Call.ID != "c2" || seen[1].Position != 2 || seen[1].Total != 2 {
		t.Fatalf("second review = %+v", seen[1])
	}
	if first.Calls() != 1 || second.Calls() != 0 {
		t.Fatalf("executions: search=%d scrape=%d", first.Calls(), second.Calls())
	}

	msgs := engine.Requests[1].Messages
	if len(msgs) != 4 {
		t.Fatalf("re-drive messages = %d, want 4", len(msgs))
	}
	if msgs[2].ToolID != "c1" || msgs[3].ToolID != "c2" || msgs[3].Content.Text() != RejectionNotice("scrape") {
		t.Fatalf("tool results out of order: %+v", msgs[2:])
	}
}

func TestController_InterruptDuringReviewKeepsPendingCall(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
		providertest.Answer("resumed"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	r := review(approval.Approve)
	r.before = func(ctx context.Context, _ approval.Request) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	h := newHarness(t, engine, r, Config{}, search)

	out, err := h.ctrl.Submit(ctx, "t", "search x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if out.StopReason != StopReasonInterrupted {
		t.Fatalf("stop reason = %s", out.StopReason)
	}
	if h.ctrl.State() != StateIdle {
		t.Fatalf("state = %s, want idle", h.ctrl.State())
	}
	if search.Calls() != 0 {
		t.Fatal("tool ran despite interrupt")
	}
	if d := h.ctrl.Pending("t"); !d.Pending() || d.Call.ID != "c1" {
		t.Fatalf("pending = %+v", d)
	}

	r.mu.Lock()
	r.before = nil
	r.mu.Unlock()

	out, err = h.ctrl.Resume(context.Background(), "t")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if out.Answer != "resumed" || search.Calls() != 1 {
		t.Fatalf("resume outcome = %+v, tool calls = %d", out, search.Calls())
	}
	if h.ctrl.Pending("t").Pending() {
		t.Fatal("call still pending after resume")
	}
}

func TestController_NewSubmitClosesAbandonedCalls(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
		providertest.Answer("new topic"),
	}}
	r := review()
	r.before = func(context.Context, approval.Request) error { return context.Canceled }
	h := newHarness(t, engine, r, Config{}, search)

	if _, err := h.ctrl.Submit(context.Background(), "t", "search x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected interrupt, got %v", err)
	}

	out, err := h.ctrl.Submit(context.Background(), "t", "never mind, something else")
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if out.Answer != "new topic" || search.Calls() != 0 {
		t.Fatalf("outcome = %+v, tool calls = %d", out, search.Calls())
	}

	msgs := engine.Requests[1].Messages
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if msgs[2].Role != provider.MessageRoleTool || msgs[2].ToolID != "c1" || msgs[2].Content.Text() != InterruptedNotice("search") {
		t.Fatalf("abandoned call not closed: %+v", msgs[2])
	}
	if msgs[3].Role != provider.MessageRoleUser {
		t.Fatalf("expected the new user message last, got %+v", msgs[3])
	}
	if len(h.events.ofType(security.EventTurnAbandoned)) != 1 {
		t.Fatal("abandoned call not audited")
	}
}

func TestController_EngineFailureKeepsHistory(t *testing.T) {
	t.Parallel()

	engine := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, provider.ErrProviderDown
		},
	}
	h := newHarness(t, engine, review(), Config{})

	_, err := h.ctrl.Submit(context.Background(), "t", "hello")
	if !errors.Is(err, ErrEngine) || !errors.Is(err, provider.ErrProviderDown) {
		t.Fatalf("err = %v", err)
	}
	if h.ctrl.State() != StateIdle {
		t.Fatalf("state = %s", h.ctrl.State())
	}
	snap, _ := h.store.Checkpoint("t")
	if len(snap.Messages) != 1 || snap.Messages[0].Content.Text() != "hello" {
		t.Fatalf("history = %+v", snap.Messages)
	}
}

func TestController_EngineTimeout(t *testing.T) {
	t.Parallel()

	engine := &providertest.MockProvider{
		CompleteFunc: func(ctx context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			<-ctx.Done()
			return provider.CompletionResponse{}, ctx.Err()
		},
	}
	h := newHarness(t, engine, review(), Config{EngineTimeout: 10 * time.Millisecond})

	out, err := h.ctrl.Submit(context.Background(), "t", "hello")
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrEngine) {
		t.Fatalf("err = %v", err)
	}
	if out.StopReason != StopReasonError {
		t.Fatalf("stop reason = %s", out.StopReason)
	}
}

func TestController_LoopDetected(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	engine := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return providertest.CallTool(provider.ToolCall{Name: "search", Arguments: json.RawMessage(`{"query":"x"}`)}), nil
		},
	}
	h := newHarness(t, engine, review(approval.Approve, approval.Approve, approval.Approve), Config{LoopThreshold: 2}, search)

	out, err := h.ctrl.Submit(context.Background(), "t", "search forever")
	if !errors.Is(err, ErrLoopDetected) {
		t.Fatalf("expected ErrLoopDetected, got %v", err)
	}
	if out.StopReason != StopReasonLoopDetected || search.Calls() != 1 {
		t.Fatalf("outcome = %+v, tool calls = %d", out, search.Calls())
	}
	if h.ctrl.Pending("t").Pending() {
		t.Fatal("looping call must not be stored")
	}
}

func TestController_MaxIterations(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	var n int
	engine := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			n++
			return providertest.CallTool(providertest.Call(fmt.Sprintf("c%d", n), "search", map[string]any{"query": fmt.Sprint(n)})), nil
		},
	}
	h := newHarness(t, engine, review(approval.Approve, approval.Approve, approval.Approve), Config{MaxIterations: 2}, search)

	out, err := h.ctrl.Submit(context.Background(), "t", "keep going")
	if !errors.Is(err, ErrMaxIterationsReached) {
		t.Fatalf("expected ErrMaxIterationsReached, got %v", err)
	}
	if out.Iterations != 2 || engine.Calls() != 2 || search.Calls() != 2 {
		t.Fatalf("iterations=%d engine=%d tool=%d", out.Iterations, engine.Calls(), search.Calls())
	}
}

func TestController_ThreadsAreIndependent(t *testing.T) {
	t.Parallel()

	engine := &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			return providertest.Answer(fmt.Sprintf("seen %d", len(req.Messages))), nil
		},
	}
	h := newHarness(t, engine, review(), Config{})

	if _, err := h.ctrl.Submit(context.Background(), "A", "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.Submit(context.Background(), "A", "two"); err != nil {
		t.Fatal(err)
	}
	out, err := h.ctrl.Submit(context.Background(), "B", "first")
	if err != nil {
		t.Fatal(err)
	}
	if out.Answer != "seen 1" {
		t.Fatalf("thread B saw thread A's history: %q", out.Answer)
	}

	a, _ := h.store.Checkpoint("A")
	b, _ := h.store.Checkpoint("B")
	if len(a.Messages) != 4 || len(b.Messages) != 2 || a.ID == b.ID {
		t.Fatalf("A=%d msgs, B=%d msgs", len(a.Messages), len(b.Messages))
	}
}

func TestController_RedriveIsDeterministic(t *testing.T) {
	t.Parallel()

	engine := &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			var parts []string
			for _, m := range req.Messages {
				parts = append(parts, string(m.Role)+":"+m.Content.Text())
			}
			return providertest.Answer(strings.Join(parts, "|")), nil
		},
	}
	h := newHarness(t, engine, review(), Config{})

	first, err := h.ctrl.Submit(context.Background(), "x", "same question")
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.ctrl.Submit(context.Background(), "y", "same question")
	if err != nil {
		t.Fatal(err)
	}
	if first.Answer != second.Answer {
		t.Fatalf("answers differ: %q vs %q", first.Answer, second.Answer)
	}

	if _, err := h.ctrl.Resume(context.Background(), "x"); !errors.Is(err, ErrNothingPending) {
		t.Fatalf("resume without pending call: %v", err)
	}
}

func TestController_ConcurrentTurnFailsFast(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
		providertest.Answer("done"),
	}}

	entered := make(chan struct{})
	proceed := make(chan struct{})
	r := review(approval.Reject)
	r.before = func(context.Context, approval.Request) error {
		close(entered)
		<-proceed
		return nil
	}
	h := newHarness(t, engine, r, Config{}, search)

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Submit(context.Background(), "t", "search x")
		done <- err
	}()

	<-entered
	if h.ctrl.State() != StateSuspendedForApproval {
		t.Errorf("state while reviewing = %s", h.ctrl.State())
	}
	if _, err := h.ctrl.Submit(context.Background(), "t", "interleave"); !errors.Is(err, session.ErrSessionBusy) {
		t.Errorf("concurrent submit: %v", err)
	}
	close(proceed)

	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
}

func TestController_BlankCallIDIsFilled(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(provider.ToolCall{Name: "search", Arguments: json.RawMessage(`{"query":"x"}`)}),
		providertest.Answer("done"),
	}}
	h := newHarness(t, engine, review(approval.Approve), Config{}, search)
	h.ctrl.newCallID = func() string { return "call-generated" }

	if _, err := h.ctrl.Submit(context.Background(), "t", "search"); err != nil {
		t.Fatal(err)
	}
	msgs := engine.Requests[1].Messages
	if msgs[1].ToolCalls[0].ID != "call-generated" || msgs[2].ToolID != "call-generated" {
		t.Fatalf("generated id not used consistently: %+v", msgs[1:])
	}
}

func TestController_UnknownToolBecomesErrorResult(t *testing.T) {
	t.Parallel()

	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "ghost", map[string]any{})),
		providertest.Answer("sorry"),
	}}
	h := newHarness(t, engine, review(approval.Approve), Config{})

	out, err := h.ctrl.Submit(context.Background(), "t", "use ghost")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Answer != "sorry" {
		t.Fatalf("answer = %q", out.Answer)
	}
	last := lastMessage(engine.Requests[1])
	if !strings.HasPrefix(last.Content.Text(), "Error: ") || !strings.Contains(last.Content.Text(), "ghost") {
		t.Fatalf("result = %q", last.Content.Text())
	}
	if !out.ToolCalls[0].Output.IsError {
		t.Fatal("record should be marked as error")
	}
}

func TestController_ToolErrorIsCapturedAsResult(t *testing.T) {
	t.Parallel()

	broken := tooltest.SchemaTool("search", searchSchema)
	broken.ExecuteFunc = func(context.Context, json.RawMessage) (tool.Output, error) {
		return tool.Output{}, errors.New("upstream 503")
	}
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
		providertest.Answer("the search failed"),
	}}
	h := newHarness(t, engine, review(approval.Approve), Config{}, broken)

	if _, err := h.ctrl.Submit(context.Background(), "t", "search"); err != nil {
		t.Fatalf("tool errors must not abandon the turn: %v", err)
	}
	if got := lastMessage(engine.Requests[1]).Content.Text(); got != "Error: upstream 503" {
		t.Fatalf("result = %q", got)
	}
}

func TestController_AuditsDecisions(t *testing.T) {
	t.Parallel()

	search := tooltest.SchemaTool("search", searchSchema)
	engine := &providertest.MockProvider{Responses: []provider.CompletionResponse{
		providertest.CallTool(providertest.Call("c1", "search", map[string]any{"query": "x"})),
		providertest.Answer("done"),
	}}
	h := newHarness(t, engine, review(approval.Approve), Config{}, search)

	if _, err := h.ctrl.Submit(context.Background(), "t", "search"); err != nil {
		t.Fatal(err)
	}

	reqs := h.events.ofType(security.EventApprovalRequest)
	if len(reqs) != 1 || reqs[0].CallID != "c1" || reqs[0].Source != tool.SourceLocal {
		t.Fatalf("approval_request events = %+v", reqs)
	}
	decisions := h.events.ofType(security.EventApproval)
	if len(decisions) != 1 || decisions[0].Metadata["verdict"] != "approve" {
		t.Fatalf("approval events = %+v", decisions)
	}
	if reqs[0].SessionID == "" || reqs[0].SessionID != decisions[0].SessionID {
		t.Fatalf("session id not recorded: %q / %q", reqs[0].SessionID, decisions[0].SessionID)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := map[State]string{
		StateIdle:                 "idle",
		StateRunning:              "running",
		StateSuspendedForApproval: "suspended_for_approval",
		StateResolving:            "resolving",
		StateTerminated:           "terminated",
		State(42):                 "state(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, want)
		}
	}
}
