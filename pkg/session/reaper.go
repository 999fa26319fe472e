package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultIdleTTL        = 30 * time.Minute
	DefaultReaperSchedule = "@every 1m"
)

// Reaper ends sessions that stopped receiving events.
type Reaper struct {
	machine  *Machine
	ttl      time.Duration
	schedule string
	cron     *cron.Cron
	log      *slog.Logger
}

func NewReaper(m *Machine, ttl time.Duration, schedule string, log *slog.Logger) *Reaper {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if schedule == "" {
		schedule = DefaultReaperSchedule
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{machine: m, ttl: ttl, schedule: schedule, log: log}
}

// ReapIdle ends every open session idle for longer than the TTL and returns how many it ended.
func (r *Reaper) ReapIdle(ctx context.Context) (int, error) {
	cutoff := r.machine.now().UTC().Add(-r.ttl)
	idle, err := r.machine.store.ListIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	ended := 0
	for _, s := range idle {
		if err := r.machine.HandleCallEnd(ctx, CallEndEvent{CallID: s.CallID, EndedReason: EndedReasonIdle}); err != nil {
			r.log.Error("reaper_end_failed", "call_id", s.CallID, "error", err)
			continue
		}
		ended++
	}
	if ended > 0 {
		r.log.Info("reaper_sessions_ended", "count", ended)
	}
	return ended, nil
}

// Start runs ReapIdle on the cron schedule until Stop.
func (r *Reaper) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() {
		if _, err := r.ReapIdle(ctx); err != nil {
			r.log.Error("reaper_run_failed", "error", err)
		}
	}); err != nil {
		return err
	}
	r.cron = c
	c.Start()
	r.log.Info("reaper_started", "schedule", r.schedule, "idle_ttl", r.ttl.String())
	return nil
}

// Stop waits for a running sweep to finish.
func (r *Reaper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
