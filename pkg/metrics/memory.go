package metrics

import "sync"

// MemoryObserver keeps every event; used by tests to assert on fallback paths.
type MemoryObserver struct {
	mu     sync.Mutex
	events []MetricsEvent
}

func NewMemoryObserver() *MemoryObserver {
	return &MemoryObserver{}
}

func (m *MemoryObserver) RecordEvent(ev MetricsEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *MemoryObserver) Events() []MetricsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MetricsEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns how many events match name and every given tag.
func (m *MemoryObserver) Count(name string, tags map[string]string) int {
	n := 0
	for _, ev := range m.Events() {
		if ev.Name != name {
			continue
		}
		match := true
		for k, v := range tags {
			if ev.Tags[k] != v {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}
