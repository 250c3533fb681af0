package agent

import (
	"encoding/json"

	"github.com/flemzord/toolgate/internal/provider"
)

// loopDetector tracks repeated identical tool calls within a turn.
type loopDetector struct {
	threshold int
	counts    map[string]int
}

func newLoopDetector(threshold int) *loopDetector {
	return &loopDetector{
		threshold: threshold,
		counts:    make(map[string]int),
	}
}

// normalizeArgs returns a canonical JSON representation of args so that
// payloads differing only in key order or whitespace compare equal.
func normalizeArgs(args json.RawMessage) string {
	var m any
	if err := json.Unmarshal(args, &m); err != nil {
		return string(args)
	}
	normalized, err := json.Marshal(m)
	if err != nil {
		return string(args)
	}
	return string(normalized)
}

// record registers a tool call and reports whether the loop threshold
// has been reached for this exact call signature.
func (d *loopDetector) record(name string, args json.RawMessage) bool {
	key := name + ":" + normalizeArgs(args)
	d.counts[key]++
	return d.counts[key] >= d.threshold
}

func (d *loopDetector) reset() {
	clear(d.counts)
}

// usageTracker accumulates token usage across the engine calls of a turn.
// It is owned by a single turn and is not safe for concurrent use.
type usageTracker struct {
	usage provider.TokenUsage
}

func (t *usageTracker) add(usage provider.TokenUsage) {
	t.usage.PromptTokens += usage.PromptTokens
	t.usage.CompletionTokens += usage.CompletionTokens
	t.usage.TotalTokens += usage.TotalTokens
}

func (t *usageTracker) total() provider.TokenUsage {
	return t.usage
}
