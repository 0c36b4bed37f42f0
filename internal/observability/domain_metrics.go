package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	promptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataagent_prompts_total",
			Help: "Total number of prompts handled, by run mode and outcome.",
		},
		[]string{"run_mode", "outcome"},
	)
	gateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataagent_gate_decisions_total",
			Help: "Confidence gate decisions by route.",
		},
		[]string{"route"},
	)
	executorDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataagent_executor_duration_seconds",
			Help:    "Executor wall time by run mode.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"run_mode"},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataagent_llm_calls_total",
			Help: "LLM API calls by provider and status.",
		},
		[]string{"provider", "status"},
	)
	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataagent_llm_tokens_total",
			Help: "LLM tokens consumed by provider and kind (prompt, completion).",
		},
		[]string{"provider", "kind"},
	)
	llmCostUSDTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dataagent_llm_cost_usd_total",
			Help: "Estimated LLM spend in USD.",
		},
	)
	sqlExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataagent_sql_executions_total",
			Help: "Warehouse SQL executions by status.",
		},
		[]string{"status"},
	)
	sqlExecutionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataagent_sql_execution_latency_ms",
			Help:    "Warehouse SQL execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	embeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataagent_embedding_cache_total",
			Help: "Prompt embedding cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		promptsTotal,
		gateDecisionsTotal,
		executorDurationSeconds,
		llmCallsTotal,
		llmTokensTotal,
		llmCostUSDTotal,
		sqlExecutionsTotal,
		sqlExecutionLatencyMs,
		embeddingCacheTotal,
	)
}

func ObservePrompt(runMode string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	promptsTotal.WithLabelValues(runMode, outcome).Inc()
}

func ObserveGateDecision(route string) {
	gateDecisionsTotal.WithLabelValues(route).Inc()
}

func ObserveExecutor(runMode string, elapsed time.Duration) {
	executorDurationSeconds.WithLabelValues(runMode).Observe(elapsed.Seconds())
}

func ObserveLLMCall(provider string, err error, promptTokens, completionTokens int, costUSD float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmCallsTotal.WithLabelValues(provider, status).Inc()
	if promptTokens > 0 {
		llmTokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		llmTokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		llmCostUSDTotal.Add(costUSD)
	}
}

func ObserveSQLExecution(err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	sqlExecutionsTotal.WithLabelValues(status).Inc()
	sqlExecutionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveEmbeddingCache(hit bool) {
	if hit {
		embeddingCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	embeddingCacheTotal.WithLabelValues("miss").Inc()
}
