package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCostUSD,
		aiCallsLatencyMs,
		aiRetries,
		aiGuardBlocks,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCostUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cost_usd",
			Help: "Estimated USD spent per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"provider", "model", "success"},
	)

	aiRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_call_retries_total",
			Help: "Retries of transient provider failures per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiGuardBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_guard_blocks_total",
			Help: "Requests rejected by guardrails, labeled by reason.",
		},
		[]string{"provider", "model", "reason"}, // 'cap', 'rate_limit'
	)
)

func ObserveChatUsage(provider, model string, tokensIn, tokensOut int, latencyMs int, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

// AddChatCost records estimated spend. Cost is derived from pricing, not
// reported by providers, so it is observed where the estimate is made rather
// than at the adapter boundary.
func AddChatCost(provider, model string, usd float64) {
	aiCostUSD.WithLabelValues(norm(provider), norm(model)).Add(usd)
}

func IncRetry(provider, model string) {
	aiRetries.WithLabelValues(norm(provider), norm(model)).Inc()
}

func GuardBlocked(provider, model, reason string) {
	aiGuardBlocks.WithLabelValues(norm(provider), norm(model), norm(reason)).Inc()
}
