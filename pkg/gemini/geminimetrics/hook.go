// Package geminimetrics exports orchestrator activity as Prometheus metrics.
package geminimetrics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngoclaw/gemini-go/pkg/gemini"
)

const namespace = "gemini"

// Hook is a gemini.Hook that records counters and latencies for every
// exchange it observes. One Hook may be shared by concurrent exchanges.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	hook := geminimetrics.NewHook(reg)
//	orch := gemini.NewOrchestrator(client, handlers, gemini.WithHooks(hook))
type Hook struct {
	gemini.NoOpHook

	generateCalls   *prometheus.CounterVec
	generateLatency *prometheus.HistogramVec
	tokens          *prometheus.CounterVec
	functionCalls   *prometheus.CounterVec
	functionLatency *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	exchanges       *prometheus.CounterVec
	rounds          prometheus.Histogram
}

var _ gemini.Hook = (*Hook)(nil)

// NewHook creates the collectors and registers them with reg.
func NewHook(reg prometheus.Registerer) *Hook {
	h := &Hook{
		generateCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generate_calls_total",
			Help:      "Model calls made by the function-calling loop.",
		}, []string{"model"}),
		generateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_duration_seconds",
			Help:      "Latency of successful model calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"model"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported in usage metadata.",
		}, []string{"type"}),
		functionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_calls_total",
			Help:      "Local handler invocations.",
		}, []string{"function", "outcome"}),
		functionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "function_duration_seconds",
			Help:      "Latency of local handler invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed exchanges by error kind.",
		}, []string{"kind"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Finished exchanges by result.",
		}, []string{"result"}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_rounds",
			Help:      "Function-calling rounds per finished exchange.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
	}
	reg.MustRegister(
		h.generateCalls, h.generateLatency, h.tokens,
		h.functionCalls, h.functionLatency,
		h.errors, h.exchanges, h.rounds,
	)
	return h
}

func (h *Hook) BeforeGenerate(_ context.Context, model string, _ *gemini.GenerateContentRequest, _ int) {
	h.generateCalls.WithLabelValues(model).Inc()
}

func (h *Hook) AfterGenerate(_ context.Context, resp *gemini.GenerateContentResponse, _ int, elapsed time.Duration) {
	model := ""
	if resp != nil {
		model = resp.ModelVersion
	}
	h.generateLatency.WithLabelValues(model).Observe(elapsed.Seconds())
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	u := resp.UsageMetadata
	h.tokens.WithLabelValues("prompt").Add(float64(u.PromptTokenCount))
	h.tokens.WithLabelValues("candidates").Add(float64(u.CandidatesTokenCount))
}

func (h *Hook) AfterFunctionCall(_ context.Context, call gemini.FunctionCall, _ json.RawMessage, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	h.functionCalls.WithLabelValues(call.Name, outcome).Inc()
	h.functionLatency.WithLabelValues(call.Name).Observe(elapsed.Seconds())
}

func (h *Hook) OnError(_ context.Context, err error, snap gemini.RunSnapshot) {
	kind := "other"
	if e, ok := gemini.AsError(err); ok {
		kind = e.Kind.String()
	}
	h.errors.WithLabelValues(kind).Inc()
	h.exchanges.WithLabelValues("failed").Inc()
	h.rounds.Observe(float64(snap.Round))
}

func (h *Hook) OnComplete(_ context.Context, _ *gemini.GenerateContentResponse, snap gemini.RunSnapshot) {
	h.exchanges.WithLabelValues("done").Inc()
	h.rounds.Observe(float64(snap.Round))
}
