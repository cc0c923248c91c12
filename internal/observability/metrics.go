package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics centralizes the Prometheus instrumentation surfaced at
// GET /metrics (§1.2 of SPEC_FULL.md). One instance is constructed at
// process start and shared read-mostly across handlers (§5 global state).
type Metrics struct {
	WebhookReceived    *prometheus.CounterVec
	WebhookDuration    *prometheus.HistogramVec
	RateLimitRejected  *prometheus.CounterVec
	OrchestratorTurns  *prometheus.CounterVec
	OrchestratorTurnDuration *prometheus.HistogramVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec
	ToolExecutionCounter  *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec
	CRMCallDuration    *prometheus.HistogramVec
	CRMCallCounter     *prometheus.CounterVec
	ActiveSessions     *prometheus.GaugeVec
	RetentionDeleted   *prometheus.CounterVec
	ErrorCounter       *prometheus.CounterVec
}

// NewMetrics registers all metrics against the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate-registration panics across
// parallel test binaries.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convoy_webhook_received_total",
			Help: "Total inbound webhook requests by channel and outcome.",
		}, []string{"channel", "status"}),

		WebhookDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "convoy_webhook_duration_seconds",
			Help:    "Webhook handling latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"channel"}),

		RateLimitRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convoy_ratelimit_rejected_total",
			Help: "Requests rejected by the ingress rate limiter by path class.",
		}, []string{"path_class"}),

		OrchestratorTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convoy_orchestrator_turns_total",
			Help: "Orchestrator turns by resulting session state.",
		}, []string{"state"}),

		OrchestratorTurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "convoy_orchestrator_turn_duration_seconds",
			Help:    "Full orchestrator turn latency, tenant-resolution through commit.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"channel"}),

		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "convoy_llm_request_duration_seconds",
			Help:    "LLM provider call latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider", "model"}),

		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convoy_llm_requests_total",
			Help: "LLM provider calls by provider, model, and status.",
		}, []string{"provider", "model", "status"}),

		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convoy_tool_executions_total",
			Help: "Tool invocations by tool name and status.",
		}, []string{"tool_name", "status"}),

		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "convoy_tool_execution_duration_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool_name"}),

		CRMCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "convoy_crm_call_duration_seconds",
			Help:    "CRM vendor adapter call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"crm_kind", "operation"}),

		CRMCallCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convoy_crm_calls_total",
			Help: "CRM vendor adapter calls by kind, operation, and status.",
		}, []string{"crm_kind", "operation", "status"}),

		ActiveSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "convoy_active_sessions",
			Help: "Current hot-store session count by channel.",
		}, []string{"channel"}),

		RetentionDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convoy_retention_deleted_total",
			Help: "Rows deleted by the retention engine by table and tenant plan.",
		}, []string{"table", "plan"}),

		ErrorCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convoy_errors_total",
			Help: "Errors by component and error class (§7 taxonomy).",
		}, []string{"component", "error_class"}),
	}
}
