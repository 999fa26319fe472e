package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver moves event recording off the webhook goroutine.
// Events are dropped, not queued, once the buffer is full.
type AsyncObserver struct {
	inner   Observer
	ch      chan MetricsEvent
	done    chan struct{}
	dropped atomic.Int64
	closed  atomic.Bool
	once    sync.Once
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	if inner == nil {
		inner = NoopObserver{}
	}
	a := &AsyncObserver{
		inner: inner,
		ch:    make(chan MetricsEvent, buffer),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil || a.closed.Load() {
		return
	}
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Drain stops intake and waits for buffered events to reach the inner observer.
func (a *AsyncObserver) Drain() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.ch)
	})
	<-a.done
	return nil
}

func (a *AsyncObserver) loop() {
	defer close(a.done)
	for ev := range a.ch {
		a.inner.RecordEvent(ev)
	}
}
