package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/toolgate/internal/agent"
	"github.com/flemzord/toolgate/internal/approval"
)

const namespace = "toolgate"

// Metrics implements agent.Recorder with Prometheus collectors.
type Metrics struct {
	engineCalls    *prometheus.CounterVec
	engineDuration prometheus.Histogram
	decisions      *prometheus.CounterVec
	toolResults    *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	turns          *prometheus.CounterVec
}

var _ agent.Recorder = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		engineCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_calls_total",
			Help:      "Reasoning engine calls by outcome.",
		}, []string{"outcome"}),
		engineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_call_duration_seconds",
			Help:      "Latency of reasoning engine calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9),
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Operator verdicts by tool.",
		}, []string{"tool", "verdict"}),
		toolResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_results_total",
			Help:      "Tool results stored in the conversation, real or synthetic.",
		}, []string{"tool", "provenance", "is_error"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Execution time of approved tool calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Finished turns by stop reason.",
		}, []string{"reason"}),
	}

	for _, c := range []prometheus.Collector{
		m.engineCalls, m.engineDuration, m.decisions, m.toolResults, m.toolDuration, m.turns,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// EngineCall implements agent.Recorder.
func (m *Metrics) EngineCall(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.engineCalls.WithLabelValues(outcome).Inc()
	m.engineDuration.Observe(d.Seconds())
}

// Decision implements agent.Recorder.
func (m *Metrics) Decision(toolName string, v approval.Verdict) {
	m.decisions.WithLabelValues(toolName, v.String()).Inc()
}

// ToolResult implements agent.Recorder. Only real executions feed the
// duration histogram.
func (m *Metrics) ToolResult(toolName, provenance string, isError bool, d time.Duration) {
	m.toolResults.WithLabelValues(toolName, provenance, strconv.FormatBool(isError)).Inc()
	if provenance == agent.ProvenanceReal {
		m.toolDuration.WithLabelValues(toolName).Observe(d.Seconds())
	}
}

// Turn implements agent.Recorder.
func (m *Metrics) Turn(reason agent.StopReason) {
	m.turns.WithLabelValues(string(reason)).Inc()
}
