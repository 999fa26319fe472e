package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/robfig/cron/v3"
)

type Config struct {
	// Schedule is a cron spec; empty disables scheduled syncs.
	Schedule string   `mapstructure:"schedule"`
	Tenants  []string `mapstructure:"tenants"`
}

// Scheduler runs a full sync for each configured tenant on a cron schedule.
type Scheduler struct {
	engine *Engine
	cfg    Config
	cron   *cron.Cron
	log    *slog.Logger

	mu   sync.Mutex
	last map[string]domain.FullSyncResult
}

func NewScheduler(e *Engine, cfg Config, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{engine: e, cfg: cfg, log: log, last: map[string]domain.FullSyncResult{}}
}

// Enabled reports whether a schedule, tenants and a remote are all present.
func (s *Scheduler) Enabled() bool {
	return s.cfg.Schedule != "" && len(s.cfg.Tenants) > 0 && s.engine.Configured()
}

// RunOnce syncs every tenant in order.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, tenant := range s.cfg.Tenants {
		res := s.engine.FullSync(ctx, tenant)
		s.mu.Lock()
		s.last[tenant] = res
		s.mu.Unlock()
		if !res.Success {
			s.log.Warn("scheduled_sync_incomplete", "tenant_id", tenant, "errors", len(res.Errors))
		}
	}
}

// Last returns the most recent scheduled result for a tenant.
func (s *Scheduler) Last(tenant string) (domain.FullSyncResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.last[tenant]
	return res, ok
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.Enabled() {
		s.log.Info("scheduled_sync_disabled")
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info("scheduled_sync_started", "schedule", s.cfg.Schedule, "tenants", len(s.cfg.Tenants))
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
