package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver maps call-path events onto Prometheus collectors.
//
// Labels:
//   - voxa_fallback_attempts_total: chain (nlu|tts), attempt, outcome (success|error|skipped)
//   - voxa_sync_steps_total: step, outcome
//   - voxa_session_transitions_total: to
//   - voxa_webhooks_total: source, event
//   - voxa_turn_latency_seconds: no labels
type PrometheusObserver struct {
	Attempts    *prometheus.CounterVec
	SyncSteps   *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Webhooks    *prometheus.CounterVec
	TurnLatency prometheus.Histogram
	RateLimits  *prometheus.CounterVec
}

// NewPrometheusObserver registers collectors on reg; nil uses the default registerer.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusObserver{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxa_fallback_attempts_total",
			Help: "Fallback chain attempts by chain, attempt and outcome",
		}, []string{"chain", "attempt", "outcome"}),
		SyncSteps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxa_sync_steps_total",
			Help: "Reconciliation steps by step and outcome",
		}, []string{"step", "outcome"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxa_session_transitions_total",
			Help: "Call-session state transitions by target state",
		}, []string{"to"}),
		Webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxa_webhooks_total",
			Help: "Inbound provider webhooks by source and normalized event",
		}, []string{"source", "event"}),
		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxa_turn_latency_seconds",
			Help:    "Time from utterance receipt to rendered reply",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}),
		RateLimits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxa_provider_rate_limits_total",
			Help: "Provider rate limit and breaker denials",
		}, []string{"provider", "kind"}),
	}
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	t := ev.Tags
	switch ev.Name {
	case EventNLUAttempt:
		p.Attempts.WithLabelValues("nlu", t["attempt"], t["outcome"]).Inc()
	case EventTTSAttempt:
		p.Attempts.WithLabelValues("tts", t["attempt"], t["outcome"]).Inc()
	case EventSyncStep:
		p.SyncSteps.WithLabelValues(t["step"], t["outcome"]).Inc()
	case EventStateChange:
		p.Transitions.WithLabelValues(t["to"]).Inc()
	case EventWebhook:
		p.Webhooks.WithLabelValues(t["source"], t["event"]).Inc()
	case EventTurnLatency:
		p.TurnLatency.Observe(ev.Value)
	case EventRateLimit, EventBreakerDenied:
		p.RateLimits.WithLabelValues(t["provider"], ev.Name).Inc()
	}
}
