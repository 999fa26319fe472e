package observers

import (
	"testing"
	"time"

	"github.com/harunnryd/voxa/pkg/metrics"
)

func stateEvent(callID, from, to string, at time.Time) metrics.MetricsEvent {
	return metrics.MetricsEvent{
		Name: metrics.EventStateChange,
		Time: at,
		Tags: map[string]string{"call_id": callID, "from": from, "to": to},
	}
}

func TestLatencyObserverEmitsTurnLatency(t *testing.T) {
	mem := metrics.NewMemoryObserver()
	obs := NewLatencyObserver(mem, nil)
	base := time.Unix(100, 0)

	obs.RecordEvent(stateEvent("c1", "LISTENING", "PROCESSING", base))
	obs.RecordEvent(stateEvent("c1", "PROCESSING", "RESPONDING", base.Add(300*time.Millisecond)))
	obs.RecordEvent(stateEvent("c1", "RESPONDING", "LISTENING", base.Add(800*time.Millisecond)))

	events := mem.Events()
	if len(events) != 1 || events[0].Name != metrics.EventTurnLatency {
		t.Fatalf("expected one latency event, got %+v", events)
	}
	if events[0].Value != 0.8 {
		t.Fatalf("expected 0.8s, got %v", events[0].Value)
	}
	if obs.Pending() != 0 {
		t.Fatalf("expected no pending turns")
	}
}

func TestMultiObserverSkipsNil(t *testing.T) {
	a := metrics.NewMemoryObserver()
	m := NewMultiObserver(a, nil)
	m.RecordEvent(metrics.MetricsEvent{Name: "x"})
	if len(a.Events()) != 1 {
		t.Fatalf("expected event delivered")
	}
}
