package store

import (
	"context"
	"testing"
	"time"

	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreAgents(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created, err := s.UpsertAgentByRemoteID(ctx, domain.AgentConfig{
				TenantID: "t1", Name: "Front Desk", Greeting: "Hi", Language: "en",
				RemoteAssistantID: "asst-1", SystemPrompt: "be kind",
			})
			require.NoError(t, err)
			assert.True(t, created)

			created, err = s.UpsertAgentByRemoteID(ctx, domain.AgentConfig{
				TenantID: "t1", Name: "Reception", Greeting: "Hello", Language: "es",
				RemoteAssistantID: "asst-1", SystemPrompt: "ignored",
			})
			require.NoError(t, err)
			assert.False(t, created)

			got, err := s.GetAgentByRemoteID(ctx, "asst-1")
			require.NoError(t, err)
			assert.Equal(t, "Reception", got.Name)
			assert.Equal(t, "es", got.Language)
			assert.Equal(t, "be kind", got.SystemPrompt)

			list, err := s.ListAgents(ctx, "t1")
			require.NoError(t, err)
			assert.Len(t, list, 1)

			require.NoError(t, s.SetAgentRemoteID(ctx, got.ID, "asst-2"))
			_, err = s.GetAgentByRemoteID(ctx, "asst-1")
			assert.True(t, errorsx.IsNotFound(err))

			err = s.SetAgentRemoteID(ctx, "missing", "x")
			assert.True(t, errorsx.IsNotFound(err))
		})
	}
}

func TestStorePhoneNumbers(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SaveAgent(ctx, domain.AgentConfig{ID: "a1", TenantID: "t1", Name: "Desk"}))
			require.NoError(t, s.SavePhoneNumber(ctx, domain.PhoneNumberRecord{
				TenantID: "t1", Number: "+15551234567", CountryCode: "US", AgentID: "a1",
			}))

			created, err := s.UpsertPhoneNumber(ctx, domain.PhoneNumberRecord{
				TenantID: "t1", Number: "+15551234567", RemotePhoneID: "ph-1", RemoteAssistantID: "asst-1",
			})
			require.NoError(t, err)
			assert.False(t, created)

			rec, err := s.GetPhoneNumberByRemoteID(ctx, "ph-1")
			require.NoError(t, err)
			assert.Equal(t, "a1", rec.AgentID)
			assert.Equal(t, "asst-1", rec.RemoteAssistantID)

			created, err = s.UpsertPhoneNumber(ctx, domain.PhoneNumberRecord{
				TenantID: "t1", Number: "+15551234567", RemotePhoneID: "ph-1",
			})
			require.NoError(t, err)
			assert.False(t, created)
			rec, err = s.GetPhoneNumber(ctx, "+15551234567")
			require.NoError(t, err)
			assert.Equal(t, "asst-1", rec.RemoteAssistantID, "an empty remote assistant id keeps the existing link")

			created, err = s.UpsertPhoneNumber(ctx, domain.PhoneNumberRecord{
				TenantID: "t1", Number: "+442071234567", CountryCode: "GB", RemotePhoneID: "ph-2",
			})
			require.NoError(t, err)
			assert.True(t, created)

			all, err := s.ListPhoneNumbers(ctx, "t1")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			_, err = s.GetPhoneNumber(ctx, "+10000000000")
			assert.True(t, errorsx.IsNotFound(err))
		})
	}
}

func TestStoreSessionsAndTurns(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SaveAgent(ctx, domain.AgentConfig{ID: "a1", TenantID: "t1", Name: "Desk"}))
			now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

			cs, err := domain.NewCallSession("call-1", "a1", "+15550001111", domain.DirectionInbound, now)
			require.NoError(t, err)
			cs.State = "LISTENING"
			created, err := s.CreateSession(ctx, cs)
			require.NoError(t, err)
			assert.True(t, created)

			created, err = s.CreateSession(ctx, cs)
			require.NoError(t, err)
			assert.False(t, created)

			cs.ConversationState = "help_request"
			cs.CollectedInfo["intent"] = "help_request"
			cs.AgentID = "someone-else"
			require.NoError(t, s.UpdateSession(ctx, cs))

			got, err := s.GetSession(ctx, "call-1")
			require.NoError(t, err)
			assert.Equal(t, "help_request", got.ConversationState)
			assert.Equal(t, "a1", got.AgentID)
			assert.Equal(t, "help_request", got.CollectedInfo["intent"])

			for i, msg := range []string{"hello", "hi there", "bye"} {
				speaker := domain.SpeakerCaller
				if i%2 == 1 {
					speaker = domain.SpeakerAgent
				}
				turn := &domain.ConversationTurn{CallID: "call-1", Speaker: speaker, Message: msg}
				require.NoError(t, s.AppendTurn(ctx, turn))
				assert.Equal(t, i+1, turn.TurnNumber)
			}
			turns, err := s.ListTurns(ctx, "call-1", 2)
			require.NoError(t, err)
			require.Len(t, turns, 2)
			assert.Equal(t, 2, turns[0].TurnNumber)
			assert.Equal(t, "bye", turns[1].Message)

			err = s.AppendTurn(ctx, &domain.ConversationTurn{CallID: "call-1", Speaker: "robot"})
			assert.True(t, errorsx.IsValidation(err))

			idle, err := s.ListIdleSessions(ctx, now.Add(time.Minute))
			require.NoError(t, err)
			assert.Len(t, idle, 1)

			got.State = domain.SessionStateEnded
			require.NoError(t, s.UpdateSession(ctx, got))
			idle, err = s.ListIdleSessions(ctx, now.Add(time.Minute))
			require.NoError(t, err)
			assert.Empty(t, idle)
		})
	}
}

func TestStoreRecentCallsAndCustomers(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SaveAgent(ctx, domain.AgentConfig{ID: "a1", TenantID: "t1", Name: "Desk"}))
			base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			for i, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
				cs, err := domain.NewCallSession(id, "a1", "+15550001111", domain.DirectionInbound, base.Add(time.Duration(i)*time.Hour))
				require.NoError(t, err)
				_, err = s.CreateSession(ctx, cs)
				require.NoError(t, err)
			}
			recent, err := s.RecentCalls(ctx, "+15550001111", "c5", 3)
			require.NoError(t, err)
			require.Len(t, recent, 3)
			assert.Equal(t, "c4", recent[0].CallID)
			assert.Equal(t, "Desk", recent[0].AgentName)

			c, err := s.GetOrCreateCustomer(ctx, "+15550001111", "")
			require.NoError(t, err)
			assert.Equal(t, "en", c.LanguagePreference)
			assert.Zero(t, c.TotalCalls)

			require.NoError(t, s.RecordCustomerCall(ctx, "+15550001111", base))
			c, err = s.GetOrCreateCustomer(ctx, "+15550001111", "es")
			require.NoError(t, err)
			assert.Equal(t, 1, c.TotalCalls)
			assert.Equal(t, "en", c.LanguagePreference)
			require.NotNil(t, c.LastCallDate)
		})
	}
}

func TestStoreSearchKnowledge(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SaveKnowledge(ctx, domain.KnowledgeEntry{AgentID: "a1", Title: "Opening hours", Content: "We open at 9am", Priority: 1}))
			require.NoError(t, s.SaveKnowledge(ctx, domain.KnowledgeEntry{AgentID: "a1", Title: "Refunds", Content: "Refund within 30 days", Priority: 5}))
			require.NoError(t, s.SaveKnowledge(ctx, domain.KnowledgeEntry{AgentID: "a1", Title: "Old refunds", Content: "refund", Priority: 9, Status: "archived"}))
			require.NoError(t, s.SaveKnowledge(ctx, domain.KnowledgeEntry{AgentID: "a2", Title: "Refunds", Content: "other agent"}))

			got, err := s.SearchKnowledge(ctx, "a1", "can I get a refund please", 5)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "Refunds", got[0].Title)

			got, err = s.SearchKnowledge(ctx, "a1", "ok", 5)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}
