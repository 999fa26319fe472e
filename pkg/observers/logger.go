package observers

import (
	"context"
	"log/slog"

	"github.com/harunnryd/voxa/pkg/metrics"
)

// LoggerObserver writes every metrics event as a debug record.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	attrs := make([]slog.Attr, 0, 2+len(ev.Tags)+len(ev.Fields))
	attrs = append(attrs, slog.String("event", ev.Name), slog.Float64("value", ev.Value))
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(context.Background(), slog.LevelDebug, "metrics", attrs...)
}

// MultiObserver fans one event out to several observers.
type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}
