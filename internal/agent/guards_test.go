package agent

import (
	"encoding/json"
	"testing"

	"github.com/flemzord/toolgate/internal/provider"
)

func TestLoopDetector_BelowThreshold(t *testing.T) {
	t.Parallel()
	d := newLoopDetector(3)

	if d.record("read", json.RawMessage(`{"file":"a.txt"}`)) {
		t.Error("expected no loop on first call")
	}
	if d.record("read", json.RawMessage(`{"file":"a.txt"}`)) {
		t.Error("expected no loop on second call")
	}
}

func TestLoopDetector_AtThreshold(t *testing.T) {
	t.Parallel()
	d := newLoopDetector(3)

	d.record("read", json.RawMessage(`{"file":"a.txt"}`))
	d.record("read", json.RawMessage(`{"file":"a.txt"}`))

	if !d.record("read", json.RawMessage(`{"file":"a.txt"}`)) {
		t.Error("expected loop detected at threshold")
	}
}

func TestLoopDetector_DifferentArgs(t *testing.T) {
	t.Parallel()
	d := newLoopDetector(2)

	d.record("read", json.RawMessage(`{"file":"a.txt"}`))
	if d.record("read", json.RawMessage(`{"file":"b.txt"}`)) {
		t.Error("different args should not trigger loop")
	}
}

func TestLoopDetector_Reset(t *testing.T) {
	t.Parallel()
	d := newLoopDetector(2)

	d.record("read", json.RawMessage(`{"file":"a.txt"}`))
	d.reset()

	if d.record("read", json.RawMessage(`{"file":"a.txt"}`)) {
		t.Error("expected no loop after reset")
	}
}

func TestLoopDetector_KeyOrderInsensitive(t *testing.T) {
	t.Parallel()
	d := newLoopDetector(2)

	d.record("calculator", json.RawMessage(`{"a":1,"b":2}`))
	if !d.record("calculator", json.RawMessage(`{ "b": 2, "a": 1 }`)) {
		t.Error("reordered keys should count as the same call")
	}
}

func TestLoopDetector_InvalidJSONFallsBackToRaw(t *testing.T) {
	t.Parallel()
	d := newLoopDetector(2)

	d.record("calculator", json.RawMessage(`not json`))
	if !d.record("calculator", json.RawMessage(`not json`)) {
		t.Error("identical raw payloads should be detected")
	}
}

func TestUsageTracker_Add(t *testing.T) {
	t.Parallel()
	var tr usageTracker

	tr.add(provider.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150})
	tr.add(provider.TokenUsage{PromptTokens: 200, CompletionTokens: 100, TotalTokens: 300})

	got := tr.total()
	if got.PromptTokens != 300 {
		t.Errorf("PromptTokens = %d, want 300", got.PromptTokens)
	}
	if got.CompletionTokens != 150 {
		t.Errorf("CompletionTokens = %d, want 150", got.CompletionTokens)
	}
	if got.TotalTokens != 450 {
		t.Errorf("TotalTokens = %d, want 450", got.TotalTokens)
	}
}
