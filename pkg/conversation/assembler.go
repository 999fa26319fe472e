// Package conversation assembles and caches the per-call context handed to the
// language-understanding chain.
package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/voxa/pkg/cache"
	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/redact"
	"github.com/harunnryd/voxa/pkg/store"
)

const (
	DefaultTTL            = 300 * time.Second
	DefaultRecentCalls    = 3
	DefaultHistoryTurns   = 10
	DefaultKnowledgeLimit = 3
)

// CallContext is everything known about a call at the moment of a turn.
type CallContext struct {
	Customer    domain.CustomerProfile    `json:"customer"`
	RecentCalls []domain.CallSummary      `json:"recent_calls"`
	Session     domain.CallSession        `json:"session"`
	History     []domain.ConversationTurn `json:"history"`
	Agent       domain.AgentConfig        `json:"agent"`
	Knowledge   []domain.KnowledgeEntry   `json:"knowledge"`
	AssembledAt time.Time                 `json:"assembled_at"`
}

// SessionUpdate is merged into the stored session. Empty fields are left alone.
type SessionUpdate struct {
	ConversationState string
	Language          string
	Context           map[string]any
	CollectedInfo     map[string]any
	PendingActions    []string
}

type Options struct {
	TTL            time.Duration `mapstructure:"ttl"`
	RecentCalls    int           `mapstructure:"recent_calls"`
	HistoryTurns   int           `mapstructure:"history_turns"`
	KnowledgeLimit int           `mapstructure:"knowledge_limit"`
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.RecentCalls <= 0 {
		o.RecentCalls = DefaultRecentCalls
	}
	if o.HistoryTurns <= 0 {
		o.HistoryTurns = DefaultHistoryTurns
	}
	if o.KnowledgeLimit <= 0 {
		o.KnowledgeLimit = DefaultKnowledgeLimit
	}
	return o
}

// Assembler builds CallContext values from the store and caches them under context:<callID>.
// Every mutation evicts the cached value.
type Assembler struct {
	store store.Store
	cache cache.Cache
	opts  Options
	log   *slog.Logger
	now   func() time.Time
}

func NewAssembler(st store.Store, c cache.Cache, opts Options, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &Assembler{store: st, cache: c, opts: opts.withDefaults(), log: log, now: time.Now}
}

func cacheKey(callID string) string {
	return "context:" + callID
}

// GetCallContext returns the cached context or assembles it. Read failures
// degrade the affected section instead of failing the call.
func (a *Assembler) GetCallContext(ctx context.Context, callID, customerPhone, agentID string) (*CallContext, error) {
	if callID == "" {
		return nil, errorsx.Invalid("call_id", "required")
	}
	key := cacheKey(callID)
	var cached CallContext
	hit, err := a.cache.Get(ctx, key, &cached)
	if err != nil {
		a.log.Warn("context_cache_read_failed", "call_id", callID, "error", err)
	} else if hit {
		a.log.Debug("context_cache_hit", "call_id", callID)
		return &cached, nil
	}

	a.log.Info("context_build", "call_id", callID, "customer", redact.Number(customerPhone))
	cc := &CallContext{
		Customer:    a.customer(ctx, customerPhone),
		RecentCalls: a.recentCalls(ctx, customerPhone, callID),
		Session:     a.session(ctx, callID, agentID, customerPhone),
		History:     a.history(ctx, callID),
		Agent:       a.agent(ctx, agentID),
		Knowledge:   []domain.KnowledgeEntry{},
		AssembledAt: a.now().UTC(),
	}
	if err := a.cache.Set(ctx, key, cc, a.opts.TTL); err != nil {
		a.log.Warn("context_cache_write_failed", "call_id", callID, "error", err)
	}
	return cc, nil
}

func (a *Assembler) customer(ctx context.Context, phone string) domain.CustomerProfile {
	if phone == "" {
		return domain.CustomerProfile{LanguagePreference: "en"}
	}
	c, err := a.store.GetOrCreateCustomer(ctx, phone, "")
	if err != nil {
		a.log.Error("context_customer_failed", "customer", redact.Number(phone), "error", err)
		return domain.CustomerProfile{Phone: phone}
	}
	return *c
}

func (a *Assembler) recentCalls(ctx context.Context, phone, callID string) []domain.CallSummary {
	if phone == "" {
		return []domain.CallSummary{}
	}
	calls, err := a.store.RecentCalls(ctx, phone, callID, a.opts.RecentCalls)
	if err != nil {
		a.log.Error("context_recent_calls_failed", "call_id", callID, "error", err)
		return []domain.CallSummary{}
	}
	return calls
}

func (a *Assembler) session(ctx context.Context, callID, agentID, phone string) domain.CallSession {
	fallback := domain.CallSession{
		CallID:            callID,
		AgentID:           agentID,
		ConversationState: domain.DefaultConversationState,
		Context:           map[string]any{},
		CollectedInfo:     map[string]any{},
	}
	s, err := a.store.GetSession(ctx, callID)
	if err == nil {
		return *s
	}
	if !errorsx.IsNotFound(err) {
		a.log.Error("context_session_failed", "call_id", callID, "error", err)
		return fallback
	}
	fresh, err := domain.NewCallSession(callID, agentID, phone, domain.DirectionInbound, a.now().UTC())
	if err != nil {
		return fallback
	}
	if _, err := a.store.CreateSession(ctx, fresh); err != nil {
		a.log.Error("context_session_create_failed", "call_id", callID, "error", err)
		return fallback
	}
	return *fresh
}

func (a *Assembler) history(ctx context.Context, callID string) []domain.ConversationTurn {
	turns, err := a.store.ListTurns(ctx, callID, a.opts.HistoryTurns)
	if err != nil {
		a.log.Error("context_history_failed", "call_id", callID, "error", err)
		return []domain.ConversationTurn{}
	}
	return turns
}

func (a *Assembler) agent(ctx context.Context, agentID string) domain.AgentConfig {
	fallback := domain.AgentConfig{ID: agentID, Name: "AI Agent", Personality: "professional", Language: "en"}
	if agentID == "" {
		return fallback
	}
	ag, err := a.store.GetAgent(ctx, agentID)
	if err != nil {
		a.log.Error("context_agent_failed", "agent_id", agentID, "error", err)
		return fallback
	}
	return *ag
}

// AddConversationTurn stores the next numbered turn and evicts the cached context.
func (a *Assembler) AddConversationTurn(ctx context.Context, callID string, turn *domain.ConversationTurn) error {
	turn.CallID = callID
	if turn.Timestamp.IsZero() {
		turn.Timestamp = a.now().UTC()
	}
	if err := a.store.AppendTurn(ctx, turn); err != nil {
		return err
	}
	a.Invalidate(ctx, callID)
	a.log.Debug("context_turn_added", "call_id", callID, "turn", turn.TurnNumber, "speaker", string(turn.Speaker))
	return nil
}

// UpdateSessionContext merges update into the stored session and evicts the cached context.
func (a *Assembler) UpdateSessionContext(ctx context.Context, callID string, update SessionUpdate) (*domain.CallSession, error) {
	s, err := a.store.GetSession(ctx, callID)
	if err != nil {
		return nil, err
	}
	Merge(s, update)
	s.LastActivity = a.now().UTC()
	if err := a.store.UpdateSession(ctx, s); err != nil {
		return nil, err
	}
	a.Invalidate(ctx, callID)
	return s, nil
}

// Merge applies update onto s in place.
func Merge(s *domain.CallSession, update SessionUpdate) {
	if update.ConversationState != "" {
		s.ConversationState = update.ConversationState
	}
	if update.Language != "" {
		s.Language = update.Language
	}
	if len(update.Context) > 0 {
		if s.Context == nil {
			s.Context = map[string]any{}
		}
		for k, v := range update.Context {
			s.Context[k] = v
		}
	}
	if len(update.CollectedInfo) > 0 {
		if s.CollectedInfo == nil {
			s.CollectedInfo = map[string]any{}
		}
		for k, v := range update.CollectedInfo {
			s.CollectedInfo[k] = v
		}
	}
	if update.PendingActions != nil {
		s.PendingActions = update.PendingActions
	}
}

// Invalidate drops the cached context of a call.
func (a *Assembler) Invalidate(ctx context.Context, callID string) {
	if err := a.cache.Delete(ctx, cacheKey(callID)); err != nil {
		a.log.Warn("context_cache_evict_failed", "call_id", callID, "error", err)
	}
}

// SearchKnowledge returns the top entries of an agent matching query by keyword.
func (a *Assembler) SearchKnowledge(ctx context.Context, agentID, query string) ([]domain.KnowledgeEntry, error) {
	if agentID == "" {
		return []domain.KnowledgeEntry{}, nil
	}
	return a.store.SearchKnowledge(ctx, agentID, query, a.opts.KnowledgeLimit)
}
