// Package metrics holds the Prometheus instrumentation for both
// moderation flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the moderation pipelines.
type Metrics struct {
	// Flow A content pipeline
	ContentProcessed *prometheus.CounterVec
	TierDuration     *prometheus.HistogramVec
	CombinedRisk     prometheus.Histogram
	ScorerFallbacks  prometheus.Counter
	DeadLetters      *prometheus.CounterVec

	// Review queue
	QueueDepth  *prometheus.GaugeVec
	SLABreaches prometheus.Counter

	// Flow B chat pipeline
	ChatDecisions   *prometheus.CounterVec
	ChatLatency     prometheus.Histogram
	ChatRateLimited prometheus.Counter
	StateSweeps     prometheus.Counter
	UsersEvicted    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ContentProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_content_processed_total",
				Help: "Content items processed by Flow A",
			},
			[]string{"decision", "tier"}, // decision: approved, rejected, escalated
		),

		TierDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moderation_tier_duration_seconds",
				Help:    "Per-tier processing latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
			},
			[]string{"tier"}, // tier1_triage, tier2_ml, tier3_human
		),

		CombinedRisk: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moderation_combined_risk_score",
				Help:    "Distribution of combined risk scores at decision time",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),

		ScorerFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_scorer_fallbacks_total",
				Help: "Times the ML tier was unavailable and triage-only fallback ran",
			},
		),

		DeadLetters: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_dead_letters_total",
				Help: "Records routed to the dead-letter sink",
			},
			[]string{"kind"}, // error kind
		),

		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "moderation_review_queue_depth",
				Help: "Human review queue depth by priority",
			},
			[]string{"priority"}, // low, medium, high, urgent, critical
		),

		SLABreaches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_review_sla_breaches_total",
				Help: "Review tasks that crossed their SLA deadline",
			},
		),

		ChatDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_chat_decisions_total",
				Help: "Chat messages decided by Flow B",
			},
			[]string{"decision"}, // allow, reject
		),

		ChatLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moderation_chat_latency_seconds",
				Help:    "Flow B per-message decision latency",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
		),

		ChatRateLimited: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_chat_rate_limited_total",
				Help: "Chat messages rejected by the per-user rate limit",
			},
		),

		StateSweeps: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_state_sweeps_total",
				Help: "Idle-state sweep passes run by the stream processor",
			},
		),

		UsersEvicted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_state_users_evicted_total",
				Help: "Idle user states evicted by sweeps",
			},
		),
	}
}

// RecordContent records a Flow A terminal decision.
func (m *Metrics) RecordContent(decision, tier string, duration float64) {
	m.ContentProcessed.WithLabelValues(decision, tier).Inc()
	m.TierDuration.WithLabelValues(tier).Observe(duration)
}

// RecordCombinedRisk records the combined score behind a routing decision.
func (m *Metrics) RecordCombinedRisk(score float64) {
	m.CombinedRisk.Observe(score)
}

// RecordFallback records a triage-only degradation.
func (m *Metrics) RecordFallback() {
	m.ScorerFallbacks.Inc()
}

// RecordDeadLetter records a record sent to the dead-letter sink.
func (m *Metrics) RecordDeadLetter(kind string) {
	m.DeadLetters.WithLabelValues(kind).Inc()
}

// RecordSLABreach records a review task crossing its SLA deadline.
func (m *Metrics) RecordSLABreach() {
	m.SLABreaches.Inc()
}

// UpdateQueueDepth sets the review queue gauge for one priority.
func (m *Metrics) UpdateQueueDepth(priority string, depth int) {
	m.QueueDepth.WithLabelValues(priority).Set(float64(depth))
}

// RecordChatDecision records a Flow B outcome.
func (m *Metrics) RecordChatDecision(decision string, latency float64, rateLimited bool) {
	m.ChatDecisions.WithLabelValues(decision).Inc()
	m.ChatLatency.Observe(latency)
	if rateLimited {
		m.ChatRateLimited.Inc()
	}
}

// RecordSweep records an idle-state sweep and its eviction count.
func (m *Metrics) RecordSweep(evicted int) {
	m.StateSweeps.Inc()
	m.UsersEvicted.Add(float64(evicted))
}
