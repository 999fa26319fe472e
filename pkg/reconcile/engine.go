// Package reconcile keeps local agents and phone numbers aligned with the hosted
// voice-agent platform. Every operation is additive: records are created or
// relinked, never removed on either side.
package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/providers/vapi"
	"github.com/harunnryd/voxa/pkg/resilience"
	"github.com/harunnryd/voxa/pkg/store"
)

const (
	StepPhonesFromRemote = "phone_numbers_from_remote"
	StepPhonesToRemote   = "phone_numbers_to_remote"
	StepAgentsFromRemote = "assistants_from_remote"
	StepAgentsToRemote   = "agents_to_remote"

	importedVoice    = "Polly.Matthew"
	importedGreeting = "Hello! How can I help you?"
)

// Remote is the subset of the platform API reconciliation needs. There is no
// delete operation on purpose.
type Remote interface {
	ListPhoneNumbers(ctx context.Context) ([]vapi.PhoneNumber, error)
	ListAssistants(ctx context.Context) ([]vapi.Assistant, error)
	GetAssistant(ctx context.Context, id string) (*vapi.Assistant, error)
	CreateAssistant(ctx context.Context, a vapi.Assistant) (*vapi.Assistant, error)
}

type Engine struct {
	remote Remote
	store  store.Store
	retry  resilience.RetryPolicy
	obs    metrics.Observer
	log    *slog.Logger
	now    func() time.Time
}

// New builds an engine. A nil remote yields an engine whose every operation
// returns a NotConfiguredError.
func New(remote Remote, st store.Store, obs metrics.Observer, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Engine{
		remote: remote,
		store:  st,
		retry:  resilience.NewRetryPolicy(3, 250*time.Millisecond),
		obs:    obs,
		log:    log.With("component", "reconcile"),
		now:    time.Now,
	}
}

func (e *Engine) Configured() bool { return e.remote != nil }

func (e *Engine) ready() error {
	if e.remote == nil {
		return errorsx.NotConfigured("providers.vapi")
	}
	return nil
}

func (e *Engine) remotePhones(ctx context.Context) ([]vapi.PhoneNumber, error) {
	return resilience.Retry(ctx, e.retry, e.remote.ListPhoneNumbers)
}

func (e *Engine) remoteAssistants(ctx context.Context) ([]vapi.Assistant, error) {
	return resilience.Retry(ctx, e.retry, e.remote.ListAssistants)
}

// ImportPhoneNumbers upserts every remote number by its number string and
// links it to the tenant when it is new.
func (e *Engine) ImportPhoneNumbers(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	res := domain.NewSyncResult()
	if err := e.ready(); err != nil {
		return res, err
	}
	remote, err := e.remotePhones(ctx)
	if err != nil {
		return res, e.stepFailed(StepPhonesFromRemote, err)
	}
	e.log.Info("sync_remote_phone_numbers", "tenant_id", tenantID, "count", len(remote))
	for _, rp := range remote {
		number, err := domain.NormalizeNumber(rp.Number)
		if err != nil {
			res.Fail(rp.Number, err)
			continue
		}
		created, err := e.store.UpsertPhoneNumber(ctx, domain.PhoneNumberRecord{
			TenantID:          tenantID,
			Number:            number,
			CountryCode:       domain.CountryCodeFor(number),
			RemotePhoneID:     rp.ID,
			RemoteAssistantID: rp.AssistantID,
		})
		if err != nil {
			res.Fail(number, err)
			e.log.Error("sync_phone_number_failed", "number", number, "error", err)
			continue
		}
		if created {
			res.Imported++
		} else {
			res.Updated++
		}
	}
	e.stepDone(StepPhonesFromRemote, res)
	return res, nil
}

// ExportPhoneNumbers links local numbers that have no remote id to the remote
// number with the same string. Remote numbers are never created.
func (e *Engine) ExportPhoneNumbers(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	res := domain.NewSyncResult()
	if err := e.ready(); err != nil {
		return res, err
	}
	local, err := e.store.ListPhoneNumbers(ctx, tenantID)
	if err != nil {
		return res, e.stepFailed(StepPhonesToRemote, err)
	}
	remote, err := e.remotePhones(ctx)
	if err != nil {
		return res, e.stepFailed(StepPhonesToRemote, err)
	}
	byNumber := make(map[string]vapi.PhoneNumber, len(remote))
	for _, rp := range remote {
		if n, err := domain.NormalizeNumber(rp.Number); err == nil {
			byNumber[n] = rp
		}
	}
	for _, rec := range local {
		rp, ok := byNumber[rec.Number]
		if !ok {
			e.log.Warn("sync_phone_number_not_remote", "number", rec.Number)
			res.Skipped++
			continue
		}
		if rec.RemotePhoneID != "" {
			res.Skipped++
			continue
		}
		rec.RemotePhoneID = rp.ID
		rec.RemoteAssistantID = rp.AssistantID
		if _, err := e.store.UpsertPhoneNumber(ctx, rec); err != nil {
			res.Fail(rec.Number, err)
			e.log.Error("sync_phone_number_failed", "number", rec.Number, "error", err)
			continue
		}
		res.Updated++
	}
	e.stepDone(StepPhonesToRemote, res)
	return res, nil
}

// ImportAssistants upserts a local agent per remote assistant, keyed by the remote id.
func (e *Engine) ImportAssistants(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	res := domain.NewSyncResult()
	if err := e.ready(); err != nil {
		return res, err
	}
	remote, err := e.remoteAssistants(ctx)
	if err != nil {
		return res, e.stepFailed(StepAgentsFromRemote, err)
	}
	e.log.Info("sync_remote_assistants", "tenant_id", tenantID, "count", len(remote))
	for _, a := range remote {
		if a.ID == "" {
			res.Skipped++
			continue
		}
		created, err := e.store.UpsertAgentByRemoteID(ctx, agentFromAssistant(tenantID, a))
		if err != nil {
			res.Fail(a.Name, err)
			e.log.Error("sync_assistant_failed", "assistant_id", a.ID, "error", err)
			continue
		}
		if created {
			res.Imported++
		} else {
			res.Updated++
		}
	}
	e.stepDone(StepAgentsFromRemote, res)
	return res, nil
}

func agentFromAssistant(tenantID string, a vapi.Assistant) domain.AgentConfig {
	greeting := a.FirstMessage
	if strings.TrimSpace(greeting) == "" {
		greeting = importedGreeting
	}
	name := a.Name
	if name == "" {
		name = a.ID
	}
	return domain.AgentConfig{
		TenantID:          tenantID,
		Name:              name,
		Description:       "Imported from Vapi: " + name,
		Greeting:          greeting,
		Language:          a.Language(),
		Voice:             importedVoice,
		ElevenLabsVoice:   a.VoiceID(),
		Personality:       a.SystemPrompt(),
		RemoteAssistantID: a.ID,
		Status:            "active",
	}
}

// ExportAgents creates a remote assistant for every unlinked agent, and
// recreates linked ones whose assistant no longer exists remotely.
// Created counts as imported, recreated as updated, verified as skipped.
func (e *Engine) ExportAgents(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	res := domain.NewSyncResult()
	if err := e.ready(); err != nil {
		return res, err
	}
	agents, err := e.store.ListAgents(ctx, tenantID)
	if err != nil {
		return res, e.stepFailed(StepAgentsToRemote, err)
	}
	for _, agent := range agents {
		log := e.log.With("agent_id", agent.ID)
		recreate := false
		if agent.RemoteAssistantID != "" {
			_, err := resilience.Retry(ctx, e.retry, func(ctx context.Context) (*vapi.Assistant, error) {
				return e.remote.GetAssistant(ctx, agent.RemoteAssistantID)
			})
			if err == nil {
				res.Skipped++
				continue
			}
			if !errorsx.IsNotFound(err) {
				res.Fail(agent.Name, err)
				log.Error("sync_agent_verify_failed", "assistant_id", agent.RemoteAssistantID, "error", err)
				continue
			}
			recreate = true
		}
		created, err := e.remote.CreateAssistant(ctx, vapi.AssistantFromAgent(agent))
		if err != nil {
			res.Fail(agent.Name, err)
			log.Error("sync_agent_create_failed", "error", err)
			continue
		}
		if err := e.store.SetAgentRemoteID(ctx, agent.ID, created.ID); err != nil {
			res.Fail(agent.Name, err)
			log.Error("sync_agent_link_failed", "assistant_id", created.ID, "error", err)
			continue
		}
		if recreate {
			log.Info("sync_agent_recreated", "assistant_id", created.ID)
			res.Updated++
		} else {
			log.Info("sync_agent_created", "assistant_id", created.ID)
			res.Imported++
		}
	}
	e.stepDone(StepAgentsToRemote, res)
	return res, nil
}

// FullSync runs the four steps in order and keeps going when one fails.
// Completed steps are never rolled back.
func (e *Engine) FullSync(ctx context.Context, tenantID string) domain.FullSyncResult {
	out := domain.FullSyncResult{Success: true, Errors: []domain.StepError{}, StartTime: e.now().UTC()}
	steps := []struct {
		name string
		run  func(context.Context, string) (domain.SyncResult, error)
		dst  **domain.SyncResult
	}{
		{StepPhonesFromRemote, e.ImportPhoneNumbers, &out.PhonesImported},
		{StepPhonesToRemote, e.ExportPhoneNumbers, &out.PhonesExported},
		{StepAgentsFromRemote, e.ImportAssistants, &out.AgentsImported},
		{StepAgentsToRemote, e.ExportAgents, &out.AgentsExported},
	}
	e.log.Info("sync_full_started", "tenant_id", tenantID)
	for _, step := range steps {
		res, err := step.run(ctx, tenantID)
		if err != nil {
			out.Success = false
			out.Errors = append(out.Errors, domain.StepError{Step: step.name, Error: err.Error()})
			continue
		}
		r := res
		*step.dst = &r
	}
	out.EndTime = e.now().UTC()
	out.DurationMillis = out.EndTime.Sub(out.StartTime).Milliseconds()
	e.log.Info("sync_full_finished", "tenant_id", tenantID, "success", out.Success,
		"errors", len(out.Errors), "duration_ms", out.DurationMillis)
	return out
}

// Status compares local and remote totals.
func (e *Engine) Status(ctx context.Context, tenantID string) (domain.SyncStatus, error) {
	if err := e.ready(); err != nil {
		return domain.SyncStatus{}, err
	}
	phones, err := e.store.ListPhoneNumbers(ctx, tenantID)
	if err != nil {
		return domain.SyncStatus{}, err
	}
	agents, err := e.store.ListAgents(ctx, tenantID)
	if err != nil {
		return domain.SyncStatus{}, err
	}

	type listing struct {
		n   int
		err error
	}
	phoneCh := make(chan listing, 1)
	go func() {
		list, err := e.remotePhones(ctx)
		phoneCh <- listing{len(list), err}
	}()
	assistants, err := e.remoteAssistants(ctx)
	remotePhones := <-phoneCh
	if remotePhones.err != nil {
		return domain.SyncStatus{}, remotePhones.err
	}
	if err != nil {
		return domain.SyncStatus{}, err
	}

	st := domain.SyncStatus{
		PhoneNumbers: domain.CountPair{Local: len(phones), Remote: remotePhones.n},
		Agents:       domain.CountPair{Local: len(agents), Remote: len(assistants)},
		Timestamp:    e.now().UTC(),
	}
	st.PhoneNumbers.InSync = st.PhoneNumbers.Local == st.PhoneNumbers.Remote
	st.Agents.InSync = st.Agents.Local == st.Agents.Remote
	st.OverallSync = st.PhoneNumbers.InSync && st.Agents.InSync
	return st, nil
}

func (e *Engine) stepFailed(step string, err error) error {
	metrics.Record(e.obs, metrics.EventSyncStep, 1, map[string]string{"step": step, "outcome": "failed"})
	e.log.Error("sync_step_failed", "step", step, "error", err)
	return errorsx.Wrapf(err, errorsx.ReasonSyncStep, "%s", step)
}

func (e *Engine) stepDone(step string, res domain.SyncResult) {
	outcome := "ok"
	if len(res.Errors) > 0 {
		outcome = "partial"
	}
	metrics.Record(e.obs, metrics.EventSyncStep, 1, map[string]string{"step": step, "outcome": outcome})
	e.log.Info("sync_step_finished", "step", step,
		"imported", res.Imported, "updated", res.Updated, "skipped", res.Skipped, "errors", len(res.Errors))
}
