package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/domain"
)

// Agents is the agent registry.
type Agents interface {
	GetAgent(ctx context.Context, id string) (*domain.AgentConfig, error)
	GetAgentByRemoteID(ctx context.Context, remoteID string) (*domain.AgentConfig, error)
	ListAgents(ctx context.Context, tenantID string) ([]domain.AgentConfig, error)
	SaveAgent(ctx context.Context, agent domain.AgentConfig) error
	// UpsertAgentByRemoteID inserts or updates the agent linked to agent.RemoteAssistantID.
	// On update only name, greeting, language and voice are overwritten.
	UpsertAgentByRemoteID(ctx context.Context, agent domain.AgentConfig) (created bool, err error)
	SetAgentRemoteID(ctx context.Context, id, remoteID string) error
}

// PhoneNumbers is the phone-number registry. Number is the natural key.
type PhoneNumbers interface {
	GetPhoneNumber(ctx context.Context, number string) (*domain.PhoneNumberRecord, error)
	GetPhoneNumberByRemoteID(ctx context.Context, remoteID string) (*domain.PhoneNumberRecord, error)
	ListPhoneNumbers(ctx context.Context, tenantID string) ([]domain.PhoneNumberRecord, error)
	SavePhoneNumber(ctx context.Context, rec domain.PhoneNumberRecord) error
	// UpsertPhoneNumber inserts rec or, when the number exists, overwrites its
	// remote links. Empty link values keep the stored ones.
	UpsertPhoneNumber(ctx context.Context, rec domain.PhoneNumberRecord) (created bool, err error)
}

// Sessions stores call sessions. Sessions are never deleted.
type Sessions interface {
	// CreateSession is a no-op returning false when the call id already exists.
	CreateSession(ctx context.Context, s *domain.CallSession) (created bool, err error)
	GetSession(ctx context.Context, callID string) (*domain.CallSession, error)
	// UpdateSession persists every mutable field; the agent link is never rewritten.
	UpdateSession(ctx context.Context, s *domain.CallSession) error
	ListIdleSessions(ctx context.Context, before time.Time) ([]domain.CallSession, error)
	RecentCalls(ctx context.Context, phone, excludeCallID string, limit int) ([]domain.CallSummary, error)
}

// Turns is the append-only conversation log.
type Turns interface {
	// AppendTurn assigns the next contiguous turn number and stores the turn.
	AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error
	// ListTurns returns the last limit turns in ascending order; limit <= 0 means all.
	ListTurns(ctx context.Context, callID string, limit int) ([]domain.ConversationTurn, error)
}

type Customers interface {
	GetOrCreateCustomer(ctx context.Context, phone, language string) (*domain.CustomerProfile, error)
	RecordCustomerCall(ctx context.Context, phone string, at time.Time) error
}

type Knowledge interface {
	SaveKnowledge(ctx context.Context, entry domain.KnowledgeEntry) error
	SearchKnowledge(ctx context.Context, agentID, query string, limit int) ([]domain.KnowledgeEntry, error)
}

// Store is everything the call path and the reconciliation engine persist.
type Store interface {
	Agents
	PhoneNumbers
	Sessions
	Turns
	Customers
	Knowledge
	Close() error
}

// matchKnowledge keeps active entries whose title or content contains a query keyword,
// ordered by priority.
func matchKnowledge(entries []domain.KnowledgeEntry, query string, limit int) []domain.KnowledgeEntry {
	terms := keywords(query)
	if len(terms) == 0 {
		return nil
	}
	out := make([]domain.KnowledgeEntry, 0)
	for _, e := range entries {
		if e.Status != "" && e.Status != "active" {
			continue
		}
		hay := strings.ToLower(e.Title + " " + e.Content)
		for _, term := range terms {
			if strings.Contains(hay, term) {
				out = append(out, e)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "you": {}, "your": {}, "are": {}, "can": {},
	"what": {}, "how": {}, "with": {}, "this": {}, "that": {}, "have": {}, "need": {},
}

func keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}
