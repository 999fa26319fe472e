package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
)

// MemoryStore is a mutex-guarded Store for tests and single-process development.
type MemoryStore struct {
	mu        sync.RWMutex
	agents    map[string]domain.AgentConfig
	numbers   map[string]domain.PhoneNumberRecord
	sessions  map[string]domain.CallSession
	turns     map[string][]domain.ConversationTurn
	customers map[string]domain.CustomerProfile
	knowledge map[string][]domain.KnowledgeEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:    make(map[string]domain.AgentConfig),
		numbers:   make(map[string]domain.PhoneNumberRecord),
		sessions:  make(map[string]domain.CallSession),
		turns:     make(map[string][]domain.ConversationTurn),
		customers: make(map[string]domain.CustomerProfile),
		knowledge: make(map[string][]domain.KnowledgeEntry),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetAgent(_ context.Context, id string) (*domain.AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, errorsx.NotFound("agent", id)
	}
	return cloneAgent(a), nil
}

func (m *MemoryStore) GetAgentByRemoteID(_ context.Context, remoteID string) (*domain.AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if remoteID != "" && a.RemoteAssistantID == remoteID {
			return cloneAgent(a), nil
		}
	}
	return nil, errorsx.NotFound("agent", remoteID)
}

func (m *MemoryStore) ListAgents(_ context.Context, tenantID string) ([]domain.AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.AgentConfig, 0)
	for _, a := range m.agents {
		if tenantID == "" || a.TenantID == tenantID {
			out = append(out, *cloneAgent(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) SaveAgent(_ context.Context, agent domain.AgentConfig) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if err := agent.Validate(); err != nil {
		return err
	}
	agent.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	m.agents[agent.ID] = *cloneAgent(agent)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) UpsertAgentByRemoteID(_ context.Context, agent domain.AgentConfig) (bool, error) {
	if agent.RemoteAssistantID == "" {
		return false, errorsx.Invalid("remote_assistant_id", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.agents {
		if existing.RemoteAssistantID != agent.RemoteAssistantID {
			continue
		}
		existing.Name = agent.Name
		existing.Greeting = agent.Greeting
		existing.Language = agent.Language
		existing.ElevenLabsVoice = agent.ElevenLabsVoice
		existing.UpdatedAt = time.Now().UTC()
		m.agents[id] = existing
		return false, nil
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if err := agent.Validate(); err != nil {
		return false, err
	}
	agent.UpdatedAt = time.Now().UTC()
	m.agents[agent.ID] = *cloneAgent(agent)
	return true, nil
}

func (m *MemoryStore) SetAgentRemoteID(_ context.Context, id, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return errorsx.NotFound("agent", id)
	}
	a.RemoteAssistantID = remoteID
	a.UpdatedAt = time.Now().UTC()
	m.agents[id] = a
	return nil
}

func (m *MemoryStore) GetPhoneNumber(_ context.Context, number string) (*domain.PhoneNumberRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.numbers[number]
	if !ok {
		return nil, errorsx.NotFound("phone_number", number)
	}
	return &rec, nil
}

func (m *MemoryStore) GetPhoneNumberByRemoteID(_ context.Context, remoteID string) (*domain.PhoneNumberRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.numbers {
		if remoteID != "" && rec.RemotePhoneID == remoteID {
			r := rec
			return &r, nil
		}
	}
	return nil, errorsx.NotFound("phone_number", remoteID)
}

func (m *MemoryStore) ListPhoneNumbers(_ context.Context, tenantID string) ([]domain.PhoneNumberRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PhoneNumberRecord, 0)
	for _, rec := range m.numbers {
		if tenantID == "" || rec.TenantID == tenantID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryStore) SavePhoneNumber(_ context.Context, rec domain.PhoneNumberRecord) error {
	if rec.Number == "" {
		return errorsx.Invalid("number", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.numbers[rec.Number]; ok && rec.ID == "" {
		rec.ID = existing.ID
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.UpdatedAt = time.Now().UTC()
	m.numbers[rec.Number] = rec
	return nil
}

func (m *MemoryStore) UpsertPhoneNumber(_ context.Context, rec domain.PhoneNumberRecord) (bool, error) {
	if rec.Number == "" {
		return false, errorsx.Invalid("number", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.numbers[rec.Number]; ok {
		if rec.RemotePhoneID != "" {
			existing.RemotePhoneID = rec.RemotePhoneID
		}
		if rec.RemoteAssistantID != "" {
			existing.RemoteAssistantID = rec.RemoteAssistantID
		}
		existing.UpdatedAt = now
		m.numbers[rec.Number] = existing
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.UpdatedAt = now
	m.numbers[rec.Number] = rec
	return true, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *domain.CallSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.CallID]; ok {
		return false, nil
	}
	m.sessions[s.CallID] = cloneSession(*s)
	return true, nil
}

func (m *MemoryStore) GetSession(_ context.Context, callID string) (*domain.CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[callID]
	if !ok {
		return nil, errorsx.NotFound("session", callID)
	}
	c := cloneSession(s)
	return &c, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, s *domain.CallSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[s.CallID]
	if !ok {
		return errorsx.NotFound("session", s.CallID)
	}
	next := cloneSession(*s)
	next.AgentID = existing.AgentID
	next.TenantID = existing.TenantID
	next.Direction = existing.Direction
	m.sessions[s.CallID] = next
	return nil
}

func (m *MemoryStore) ListIdleSessions(_ context.Context, before time.Time) ([]domain.CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CallSession, 0)
	for _, s := range m.sessions {
		if s.State == domain.SessionStateEnded || s.State == domain.SessionStateError {
			continue
		}
		if s.LastActivity.Before(before) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.Before(out[j].LastActivity) })
	return out, nil
}

func (m *MemoryStore) RecentCalls(_ context.Context, phone, excludeCallID string, limit int) ([]domain.CallSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CallSummary, 0)
	for _, s := range m.sessions {
		if s.CustomerPhone != phone || s.CallID == excludeCallID {
			continue
		}
		out = append(out, domain.CallSummary{
			CallID:      s.CallID,
			AgentName:   m.agents[s.AgentID].Name,
			StartedAt:   s.StartedAt,
			Duration:    s.Duration,
			EndedReason: s.EndedReason,
			Status:      s.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendTurn(_ context.Context, turn *domain.ConversationTurn) error {
	if err := turn.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	turn.TurnNumber = len(m.turns[turn.CallID]) + 1
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	m.turns[turn.CallID] = append(m.turns[turn.CallID], *turn)
	return nil
}

func (m *MemoryStore) ListTurns(_ context.Context, callID string, limit int) ([]domain.ConversationTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.turns[callID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.ConversationTurn, len(all))
	copy(out, all)
	return out, nil
}

func (m *MemoryStore) GetOrCreateCustomer(_ context.Context, phone, language string) (*domain.CustomerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.customers[phone]; ok {
		return &c, nil
	}
	if language == "" {
		language = "en"
	}
	c := domain.CustomerProfile{Phone: phone, LanguagePreference: language, CreatedAt: time.Now().UTC()}
	m.customers[phone] = c
	return &c, nil
}

func (m *MemoryStore) RecordCustomerCall(_ context.Context, phone string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[phone]
	if !ok {
		return errorsx.NotFound("customer", phone)
	}
	c.TotalCalls++
	at = at.UTC()
	c.LastCallDate = &at
	m.customers[phone] = c
	return nil
}

func (m *MemoryStore) SaveKnowledge(_ context.Context, entry domain.KnowledgeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = "active"
	}
	m.mu.Lock()
	m.knowledge[entry.AgentID] = append(m.knowledge[entry.AgentID], entry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SearchKnowledge(_ context.Context, agentID, query string, limit int) ([]domain.KnowledgeEntry, error) {
	m.mu.RLock()
	entries := append([]domain.KnowledgeEntry(nil), m.knowledge[agentID]...)
	m.mu.RUnlock()
	return matchKnowledge(entries, query, limit), nil
}

func cloneAgent(a domain.AgentConfig) *domain.AgentConfig {
	a.Intents = append([]string(nil), a.Intents...)
	return &a
}

func cloneSession(s domain.CallSession) domain.CallSession {
	s.Context = cloneMap(s.Context)
	s.CollectedInfo = cloneMap(s.CollectedInfo)
	s.PendingActions = append([]string(nil), s.PendingActions...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		s.EndedAt = &t
	}
	return s
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
