package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusObserverCountsAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg)

	Record(obs, EventNLUAttempt, 1, map[string]string{"attempt": "external", "outcome": "error"})
	Record(obs, EventNLUAttempt, 1, map[string]string{"attempt": "language_model", "outcome": "success"})
	Record(obs, EventSyncStep, 1, map[string]string{"step": "import_phone_numbers", "outcome": "error"})

	if got := testutil.ToFloat64(obs.Attempts.WithLabelValues("nlu", "external", "error")); got != 1 {
		t.Fatalf("expected 1 external error, got %v", got)
	}
	if got := testutil.ToFloat64(obs.SyncSteps.WithLabelValues("import_phone_numbers", "error")); got != 1 {
		t.Fatalf("expected 1 failed sync step, got %v", got)
	}
}

func TestAsyncObserverDrainFlushes(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 8)
	for i := 0; i < 5; i++ {
		Record(async, EventWebhook, 1, map[string]string{"source": "vapi"})
	}
	if err := async.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := mem.Count(EventWebhook, map[string]string{"source": "vapi"}); got != 5 {
		t.Fatalf("expected 5 events after drain, got %d", got)
	}
	async.RecordEvent(MetricsEvent{Name: EventWebhook})
	if got := len(mem.Events()); got != 5 {
		t.Fatalf("expected no events after drain, got %d", got)
	}
}
