package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/providers/vapi"
	"github.com/harunnryd/voxa/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu         sync.Mutex
	phones     []vapi.PhoneNumber
	assistants map[string]vapi.Assistant
	calls      map[string]int
	failPhones int
	seq        int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{assistants: map[string]vapi.Assistant{}, calls: map[string]int{}}
}

func (f *fakeRemote) record(op string) {
	f.calls[op]++
}

func (f *fakeRemote) ListPhoneNumbers(context.Context) ([]vapi.PhoneNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListPhoneNumbers")
	if f.failPhones > 0 {
		f.failPhones--
		return nil, errors.New("vapi: bad gateway")
	}
	return append([]vapi.PhoneNumber(nil), f.phones...), nil
}

func (f *fakeRemote) ListAssistants(context.Context) ([]vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListAssistants")
	out := make([]vapi.Assistant, 0, len(f.assistants))
	for _, a := range f.assistants {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeRemote) GetAssistant(_ context.Context, id string) (*vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetAssistant")
	a, ok := f.assistants[id]
	if !ok {
		return nil, errorsx.NotFound("assistant", id)
	}
	return &a, nil
}

func (f *fakeRemote) CreateAssistant(_ context.Context, a vapi.Assistant) (*vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateAssistant")
	f.seq++
	a.ID = fmt.Sprintf("asst-new-%d", f.seq)
	f.assistants[a.ID] = a
	return &a, nil
}

func (f *fakeRemote) deletes() int {
	n := 0
	for op, c := range f.calls {
		if strings.HasPrefix(op, "Delete") || strings.HasPrefix(op, "Release") {
			n += c
		}
	}
	return n
}

func TestImportPhoneNumbersIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	remote := newFakeRemote()
	remote.phones = []vapi.PhoneNumber{
		{ID: "ph-1", Number: "+15550001111", AssistantID: "asst-1"},
		{ID: "ph-2", Number: "+442071234567"},
		{ID: "ph-3", Number: "not a number"},
	}
	e := New(remote, st, nil, nil)
	ctx := context.Background()

	res, err := e.ImportPhoneNumbers(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "not a number", res.Errors[0].Item)

	res, err = e.ImportPhoneNumbers(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, 2, res.Updated)

	rec, err := st.GetPhoneNumber(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, "t1", rec.TenantID)
	assert.Equal(t, "+1", rec.CountryCode)
	assert.Equal(t, "ph-1", rec.RemotePhoneID)
	assert.Equal(t, "asst-1", rec.RemoteAssistantID)
}

func TestExportPhoneNumbersLinksOnly(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.SavePhoneNumber(ctx, domain.PhoneNumberRecord{TenantID: "t1", Number: "+15550001111", AgentID: "a1"}))
	require.NoError(t, st.SavePhoneNumber(ctx, domain.PhoneNumberRecord{TenantID: "t1", Number: "+15550002222"}))
	remote := newFakeRemote()
	remote.phones = []vapi.PhoneNumber{{ID: "ph-1", Number: "+1 555 000 1111", AssistantID: "asst-1"}}
	e := New(remote, st, nil, nil)

	res, err := e.ExportPhoneNumbers(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Skipped)

	rec, err := st.GetPhoneNumber(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, "ph-1", rec.RemotePhoneID)
	assert.Equal(t, "a1", rec.AgentID)

	res, err = e.ExportPhoneNumbers(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, res.Updated)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, remote.deletes())
}

func TestImportAssistants(t *testing.T) {
	st := store.NewMemoryStore()
	remote := newFakeRemote()
	remote.assistants["asst-1"] = vapi.Assistant{
		ID: "asst-1", Name: "Front Desk",
		Model:       &vapi.Model{SystemPrompt: "Warm and brief."},
		Voice:       &vapi.Voice{VoiceID: "voice-9"},
		Transcriber: &vapi.Transcriber{Language: "es"},
	}
	e := New(remote, st, nil, nil)
	ctx := context.Background()

	res, err := e.ImportAssistants(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	agent, err := st.GetAgentByRemoteID(ctx, "asst-1")
	require.NoError(t, err)
	assert.Equal(t, "Imported from Vapi: Front Desk", agent.Description)
	assert.Equal(t, importedGreeting, agent.Greeting)
	assert.Equal(t, "es", agent.Language)
	assert.Equal(t, importedVoice, agent.Voice)
	assert.Equal(t, "voice-9", agent.ElevenLabsVoice)
	assert.Equal(t, "Warm and brief.", agent.Personality)
	assert.Equal(t, "t1", agent.TenantID)

	a := remote.assistants["asst-1"]
	a.Name = "Reception"
	remote.assistants["asst-1"] = a
	res, err = e.ImportAssistants(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, 1, res.Updated)

	agent, err = st.GetAgentByRemoteID(ctx, "asst-1")
	require.NoError(t, err)
	assert.Equal(t, "Reception", agent.Name)
}

func TestExportAgentsCreatesAndRecreates(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.SaveAgent(ctx, domain.AgentConfig{ID: "a1", TenantID: "t1", Name: "New", Greeting: "Hi"}))
	require.NoError(t, st.SaveAgent(ctx, domain.AgentConfig{ID: "a2", TenantID: "t1", Name: "Stale", RemoteAssistantID: "asst-gone"}))
	require.NoError(t, st.SaveAgent(ctx, domain.AgentConfig{ID: "a3", TenantID: "t1", Name: "Fine", RemoteAssistantID: "asst-ok"}))
	remote := newFakeRemote()
	remote.assistants["asst-ok"] = vapi.Assistant{ID: "asst-ok", Name: "Fine"}
	e := New(remote, st, nil, nil)

	res, err := e.ExportAgents(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Skipped)

	a1, err := st.GetAgent(ctx, "a1")
	require.NoError(t, err)
	require.NotEmpty(t, a1.RemoteAssistantID)
	created := remote.assistants[a1.RemoteAssistantID]
	assert.Equal(t, "Hi", created.FirstMessage)
	assert.Equal(t, vapi.DefaultVoiceID, created.VoiceID())

	a2, err := st.GetAgent(ctx, "a2")
	require.NoError(t, err)
	assert.NotEqual(t, "asst-gone", a2.RemoteAssistantID)

	res, err = e.ExportAgents(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 2, remote.calls["CreateAssistant"])
	assert.Zero(t, remote.deletes())
}

func TestFullSyncContinuesPastFailedStep(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.SavePhoneNumber(ctx, domain.PhoneNumberRecord{TenantID: "t1", Number: "+15550001111"}))
	require.NoError(t, st.SaveAgent(ctx, domain.AgentConfig{ID: "a1", TenantID: "t1", Name: "Local"}))
	remote := newFakeRemote()
	remote.phones = []vapi.PhoneNumber{{ID: "ph-1", Number: "+15550001111"}}
	remote.assistants["asst-1"] = vapi.Assistant{ID: "asst-1", Name: "Remote"}
	remote.failPhones = 1
	obs := metrics.NewMemoryObserver()
	e := New(remote, st, obs, nil)

	out := e.FullSync(ctx, "t1")
	assert.False(t, out.Success)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, StepPhonesFromRemote, out.Errors[0].Step)
	assert.Nil(t, out.PhonesImported)

	require.NotNil(t, out.PhonesExported)
	assert.Equal(t, 1, out.PhonesExported.Updated)
	require.NotNil(t, out.AgentsImported)
	assert.Equal(t, 1, out.AgentsImported.Imported)
	require.NotNil(t, out.AgentsExported)
	assert.Equal(t, 1, out.AgentsExported.Imported)
	assert.Equal(t, 1, out.AgentsExported.Skipped)
	assert.False(t, out.EndTime.Before(out.StartTime))

	assert.Equal(t, 1, obs.Count(metrics.EventSyncStep, map[string]string{"outcome": "failed"}))
	assert.Equal(t, 3, obs.Count(metrics.EventSyncStep, map[string]string{"outcome": "ok"}))
	assert.Zero(t, remote.deletes())

	out = e.FullSync(ctx, "t1")
	assert.True(t, out.Success)
	assert.Zero(t, out.PhonesImported.Imported)
	assert.Zero(t, out.AgentsImported.Imported)
	assert.Zero(t, out.AgentsExported.Imported)
}

func TestStatusComparesCounts(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.SavePhoneNumber(ctx, domain.PhoneNumberRecord{TenantID: "t1", Number: "+15550001111"}))
	remote := newFakeRemote()
	remote.phones = []vapi.PhoneNumber{{ID: "ph-1", Number: "+15550001111"}}
	remote.assistants["asst-1"] = vapi.Assistant{ID: "asst-1"}
	e := New(remote, st, nil, nil)

	status, err := e.Status(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, status.PhoneNumbers.InSync)
	assert.False(t, status.Agents.InSync)
	assert.Equal(t, 1, status.Agents.Remote)
	assert.False(t, status.OverallSync)
}

func TestNotConfigured(t *testing.T) {
	e := New(nil, store.NewMemoryStore(), nil, nil)
	ctx := context.Background()
	_, err := e.ImportPhoneNumbers(ctx, "t1")
	assert.True(t, errorsx.IsNotConfigured(err))
	_, err = e.ExportAgents(ctx, "t1")
	assert.True(t, errorsx.IsNotConfigured(err))
	_, err = e.Status(ctx, "t1")
	assert.True(t, errorsx.IsNotConfigured(err))

	out := e.FullSync(ctx, "t1")
	assert.False(t, out.Success)
	assert.Len(t, out.Errors, 4)

	s := NewScheduler(e, Config{Schedule: "@every 1h", Tenants: []string{"t1"}}, nil)
	assert.False(t, s.Enabled())
	require.NoError(t, s.Start(ctx))
	s.Stop()
}

func TestSchedulerRunOnceKeepsLastResult(t *testing.T) {
	remote := newFakeRemote()
	e := New(remote, store.NewMemoryStore(), nil, nil)
	s := NewScheduler(e, Config{Schedule: "@every 1h", Tenants: []string{"t1", "t2"}}, nil)
	assert.True(t, s.Enabled())

	s.RunOnce(context.Background())
	res, ok := s.Last("t2")
	require.True(t, ok)
	assert.True(t, res.Success)
	_, ok = s.Last("t3")
	assert.False(t, ok)
}
