package metrics

import "time"

// Event names emitted by the call path and the reconciliation engine.
const (
	EventNLUAttempt    = "nlu_attempt"
	EventTTSAttempt    = "tts_attempt"
	EventSyncStep      = "sync_step"
	EventStateChange   = "session_state_change"
	EventWebhook       = "webhook_received"
	EventTurnLatency   = "turn_latency"
	EventBreakerDenied = "breaker_denied"
	EventRateLimit     = "rate_limit"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record is a shorthand for emitting a tagged event now.
func Record(obs Observer, name string, value float64, tags map[string]string) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}
