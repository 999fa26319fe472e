package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/voxa/pkg/metrics"
)

// LatencyObserver derives per-turn latency from session state changes:
// a turn starts when a call enters PROCESSING and finishes when it leaves RESPONDING.
type LatencyObserver struct {
	mu     sync.Mutex
	starts map[string]time.Time
	next   metrics.Observer
	log    *slog.Logger
}

func NewLatencyObserver(next metrics.Observer, log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	if next == nil {
		next = metrics.NoopObserver{}
	}
	return &LatencyObserver{starts: make(map[string]time.Time), next: next, log: log}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	if ev.Name != metrics.EventStateChange || ev.Tags == nil {
		return
	}
	callID := ev.Tags["call_id"]
	if callID == "" {
		return
	}
	o.mu.Lock()
	switch ev.Tags["to"] {
	case "PROCESSING":
		o.starts[callID] = ev.Time
		o.mu.Unlock()
		return
	case "LISTENING", "ENDED", "ERROR":
		start, ok := o.starts[callID]
		delete(o.starts, callID)
		o.mu.Unlock()
		if !ok || ev.Tags["from"] != "RESPONDING" {
			return
		}
		elapsed := ev.Time.Sub(start)
		o.log.Info("turn_latency", "call_id", callID, "latency_ms", elapsed.Milliseconds())
		o.next.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventTurnLatency,
			Time:  ev.Time,
			Value: elapsed.Seconds(),
			Tags:  map[string]string{"call_id": callID},
		})
		return
	}
	o.mu.Unlock()
}

// Pending reports how many calls have an open turn.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.starts)
}
